package errors

// ErrorCategory classifies an error. Categories double as the error kinds
// reported in build summaries.
type ErrorCategory string

const (
	// Content errors.
	CategoryMalformedFrontMatter ErrorCategory = "malformed_front_matter"

	// Template structure errors (build-fatal).
	CategoryTemplateCycle   ErrorCategory = "template_cycle"
	CategoryUnresolvedBlock ErrorCategory = "unresolved_block"
	CategoryTemplateSyntax  ErrorCategory = "template_syntax"
	CategoryOutputCollision ErrorCategory = "output_collision"

	// Render errors (page-local).
	CategoryMissingVariable ErrorCategory = "missing_variable"
	CategoryTypeMismatch    ErrorCategory = "type_mismatch"

	// Infrastructure.
	CategoryIO         ErrorCategory = "io"
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryRuntime    ErrorCategory = "runtime"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity indicates the impact level of an error.
type ErrorSeverity string

const (
	SeverityFatal ErrorSeverity = "fatal" // Aborts the whole build
	SeverityError ErrorSeverity = "error" // Fails the current page
)

// ErrorContext provides structured context for errors.
type ErrorContext map[string]any

// Set adds or updates a context value.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	c[key] = value
	return c
}

// Get retrieves a context value.
func (c ErrorContext) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	value, exists := c[key]
	return value, exists
}

// GetString retrieves a string context value.
func (c ErrorContext) GetString(key string) (string, bool) {
	if value, exists := c.Get(key); exists {
		if str, ok := value.(string); ok {
			return str, true
		}
	}
	return "", false
}
