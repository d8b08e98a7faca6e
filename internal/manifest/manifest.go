// Package manifest persists the artifact table (output path, sources, content
// hash) between builds and keeps a history of build results.
package manifest

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

// Artifact is the stored state of one output file.
type Artifact struct {
	Output  string
	Sources []string
	// Hash is the sha256 hex digest of the last written content.
	Hash    string
	Written time.Time
}

// BuildRecord is one row of build history.
type BuildRecord struct {
	ID       string
	Mode     string
	Outcome  string
	Revision string
	Variant  string
	Written  int
	Skipped  int
	Removed  int
	Failed   int
	Started  time.Time
	Elapsed  time.Duration
}

// Store persists artifacts and build history.
type Store interface {
	// Load returns every stored artifact keyed by output path.
	Load(ctx context.Context) (map[string]Artifact, error)
	// Save replaces the stored artifact table.
	Save(ctx context.Context, artifacts map[string]Artifact) error
	// AppendBuild adds a history row.
	AppendBuild(ctx context.Context, rec BuildRecord) error
	// Builds returns the most recent history rows, newest first.
	Builds(ctx context.Context, limit int) ([]BuildRecord, error)
	Close() error
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]Artifact
	builds    []BuildRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: make(map[string]Artifact)}
}

func (m *MemoryStore) Load(_ context.Context) (map[string]Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.artifacts), nil
}

func (m *MemoryStore) Save(_ context.Context, artifacts map[string]Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts = maps.Clone(artifacts)
	if m.artifacts == nil {
		m.artifacts = make(map[string]Artifact)
	}
	return nil
}

func (m *MemoryStore) AppendBuild(_ context.Context, rec BuildRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.builds = append(m.builds, rec)
	return nil
}

func (m *MemoryStore) Builds(_ context.Context, limit int) ([]BuildRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]BuildRecord, 0, len(m.builds))
	for i := len(m.builds) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.builds[i])
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

// Outputs returns the keys of artifacts, sorted.
func Outputs(artifacts map[string]Artifact) []string {
	out := make([]string, 0, len(artifacts))
	for k := range artifacts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
