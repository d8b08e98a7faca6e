package build

// State is the scheduler's current phase.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateInvalidating
	StateRendering
	StateWriting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateInvalidating:
		return "invalidating"
	case StateRendering:
		return "rendering"
	case StateWriting:
		return "writing"
	default:
		return "unknown"
	}
}

// Mode distinguishes full from incremental builds.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)
