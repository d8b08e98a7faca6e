package build

import (
	"time"

	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
)

// Outcome summarises a build.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFatal   Outcome = "fatal"
)

// Failure is one page-local error.
type Failure struct {
	// Source is the content file that failed.
	Source string
	// Artifact is the output path, empty when the source could not be routed.
	Artifact string
	Err      error
}

// Kind is the error category reported in summaries.
func (f Failure) Kind() string {
	return string(ferrors.GetCategory(f.Err))
}

// BuildResult reports one build pass.
type BuildResult struct {
	ID   string
	Mode Mode
	// Reason explains why an incremental request ran as a full build.
	Reason string

	// Succeeded lists every artifact that is up to date after the build,
	// whether it was written or skipped as unchanged.
	Succeeded []string
	Written   []string
	Skipped   []string
	Removed   []string
	Failed    []Failure
	// Fatal is set when the build aborted before writing.
	Fatal error

	Started time.Time
	Elapsed time.Duration
}

// Outcome classifies the result.
func (r *BuildResult) Outcome() Outcome {
	switch {
	case r.Fatal != nil:
		return OutcomeFatal
	case len(r.Failed) > 0:
		return OutcomePartial
	default:
		return OutcomeSuccess
	}
}

// ExitCode maps the outcome to a process exit status: 0 success, 1 partial,
// 2 fatal.
func (r *BuildResult) ExitCode() int {
	switch r.Outcome() {
	case OutcomeFatal:
		return 2
	case OutcomePartial:
		return 1
	default:
		return 0
	}
}
