package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyMode       = "mode"
	KeyState      = "state"
	KeyPath       = "path"
	KeyArtifact   = "artifact"
	KeyTemplate   = "template"
	KeyChange     = "change"
	KeyCount      = "count"
	KeyVariant    = "variant"
	KeyDurationMS = "duration_ms"
	KeyOutcome    = "outcome"
	KeyKind       = "kind"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Mode(m string) slog.Attr         { return slog.String(KeyMode, m) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Artifact(a string) slog.Attr     { return slog.String(KeyArtifact, a) }
func Template(name string) slog.Attr  { return slog.String(KeyTemplate, name) }
func Change(kind string) slog.Attr    { return slog.String(KeyChange, kind) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Variant(v string) slog.Attr      { return slog.String(KeyVariant, v) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Outcome(o string) slog.Attr      { return slog.String(KeyOutcome, o) }
func Kind(k string) slog.Attr         { return slog.String(KeyKind, k) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
