// Package errors provides the classified error primitives used across mdsite.
//
// Every failure the build pipeline reports is a ClassifiedError carrying a
// category (the error kind shown to users), a severity and structured context.
// Fatal severity marks build-fatal failures: the scheduler aborts before any
// output is written. Anything less severe is page-local.
//
// Example usage:
//
//	err := errors.TemplateCycle("cycle in template inheritance").
//		WithContext("template", name).
//		WithContext("chain", chain).
//		Build()
package errors
