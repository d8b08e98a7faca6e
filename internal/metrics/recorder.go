package metrics

import "time"

// ArtifactLabel enumerates per-artifact results for counters.
type ArtifactLabel string

const (
	ArtifactWritten ArtifactLabel = "written"
	ArtifactSkipped ArtifactLabel = "skipped"
	ArtifactRemoved ArtifactLabel = "removed"
	ArtifactFailed  ArtifactLabel = "failed"
)

// Recorder defines observability hooks for builds. Implementations may
// forward to Prometheus or anything else; NoopRecorder is the default.
type Recorder interface {
	ObservePhaseDuration(phase string, d time.Duration)
	ObserveBuildDuration(mode string, d time.Duration)
	IncBuildOutcome(mode, outcome string)
	AddArtifacts(result ArtifactLabel, n int)
	ObserveWatchBatch(changes int)
	SetGraphArtifacts(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePhaseDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(string, time.Duration) {}
func (NoopRecorder) IncBuildOutcome(string, string)             {}
func (NoopRecorder) AddArtifacts(ArtifactLabel, int)            {}
func (NoopRecorder) ObserveWatchBatch(int)                      {}
func (NoopRecorder) SetGraphArtifacts(int)                      {}
