// Package sets has the small generic set used for path bookkeeping during
// builds.
package sets

import (
	"cmp"
	"slices"
)

// Set of comparable keys.
type Set[T comparable] map[T]struct{}

func New[T comparable](vals ...T) Set[T] {
	s := make(Set[T], len(vals))
	s.Add(vals...)
	return s
}

// Add inserts every value.
func (s Set[T]) Add(vals ...T) {
	for _, v := range vals {
		s[v] = struct{}{}
	}
}

func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

func (s Set[T]) Delete(v T) { delete(s, v) }

func (s Set[T]) Len() int { return len(s) }

// Merge adds every member of other to s.
func (s Set[T]) Merge(other Set[T]) {
	for k := range other {
		s[k] = struct{}{}
	}
}

// Sorted returns the members in ascending order, the order in which paths
// are persisted and reported.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	out := make([]T, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
