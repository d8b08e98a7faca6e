// Package build orchestrates full and incremental site builds.
//
// A Scheduler owns the content set, the template store, the dependency graph
// and the artifact table of one build session. Builds run one at a time:
//
//	full:        Idle -> Scanning -> Rendering -> Writing -> Idle
//	incremental: Idle -> Invalidating -> Rendering -> Writing -> Idle
//
// Parsing and rendering fan out over a bounded worker pool; every mutation of
// the graph and the artifact table happens on the goroutine running the
// build. Build-fatal errors abort before the Writing phase so the output tree
// is left as it was. Page-local errors exclude the page and remove its stale
// output while the rest of the build proceeds.
package build
