package errors

// ErrorBuilder provides a fluent API for creating ClassifiedError instances.
type ErrorBuilder struct {
	category ErrorCategory
	severity ErrorSeverity
	message  string
	cause    error
	context  ErrorContext
}

// NewError creates a new ErrorBuilder with the specified category and message.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{
		category: category,
		severity: SeverityError,
		message:  message,
		context:  make(ErrorContext),
	}
}

// WrapError creates a new ErrorBuilder that wraps an existing error.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	b := NewError(category, message)
	b.cause = err
	return b
}

// WithSeverity sets the error severity.
func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.severity = severity
	return b
}

// WithContext adds a context key-value pair.
func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.context = b.context.Set(key, value)
	return b
}

// Fatal sets the severity to fatal.
func (b *ErrorBuilder) Fatal() *ErrorBuilder {
	return b.WithSeverity(SeverityFatal)
}

// Build creates the final ClassifiedError.
func (b *ErrorBuilder) Build() *ClassifiedError {
	return &ClassifiedError{
		category: b.category,
		severity: b.severity,
		message:  b.message,
		cause:    b.cause,
		context:  b.context,
	}
}

// Convenience constructors for the build taxonomy.

// MalformedFrontMatter creates a page-local front matter error.
func MalformedFrontMatter(message string) *ErrorBuilder {
	return NewError(CategoryMalformedFrontMatter, message)
}

// TemplateCycle creates a build-fatal inheritance/include cycle error.
func TemplateCycle(message string) *ErrorBuilder {
	return NewError(CategoryTemplateCycle, message).Fatal()
}

// UnresolvedBlock creates a build-fatal unresolved block error.
func UnresolvedBlock(message string) *ErrorBuilder {
	return NewError(CategoryUnresolvedBlock, message).Fatal()
}

// TemplateSyntax creates a build-fatal template parse error.
func TemplateSyntax(message string) *ErrorBuilder {
	return NewError(CategoryTemplateSyntax, message).Fatal()
}

// OutputCollision creates a build-fatal routing collision error.
func OutputCollision(message string) *ErrorBuilder {
	return NewError(CategoryOutputCollision, message).Fatal()
}

// MissingVariable creates a page-local missing variable error.
func MissingVariable(message string) *ErrorBuilder {
	return NewError(CategoryMissingVariable, message)
}

// TypeMismatch creates a page-local variant type mismatch error.
func TypeMismatch(message string) *ErrorBuilder {
	return NewError(CategoryTypeMismatch, message)
}

// IOFailure creates an I/O error. Callers mark it Fatal when the failing
// source is a template.
func IOFailure(message string) *ErrorBuilder {
	return NewError(CategoryIO, message)
}

// ConfigError creates a configuration error.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal()
}

// ValidationError creates a validation error.
func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal()
}

// RuntimeError creates a runtime error.
func RuntimeError(message string) *ErrorBuilder {
	return NewError(CategoryRuntime, message).Fatal()
}

// InternalError creates an internal error.
func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message).Fatal()
}
