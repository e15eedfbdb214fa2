package errors

import (
	stderrors "errors"
	"fmt"
)

// CodeError is the structured error type for codeindex.
type CodeError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *CodeError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CodeError) Unwrap() error {
	return e.Cause
}

// Is matches another CodeError by code.
func (e *CodeError) Is(target error) bool {
	if t, ok := target.(*CodeError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *CodeError) WithDetail(key, value string) *CodeError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *CodeError) WithSuggestion(suggestion string) *CodeError {
	e.Suggestion = suggestion
	return e
}

// New creates a CodeError. Category, severity and the retryable flag are derived from the code.
func New(code string, message string, cause error) *CodeError {
	return &CodeError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CodeError from an existing error, reusing its message.
func Wrap(code string, err error) *CodeError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Wrapf creates a CodeError with a formatted message around err.
func Wrapf(code string, err error, format string, args ...any) *CodeError {
	if err == nil {
		return nil
	}
	return New(code, fmt.Sprintf(format, args...)+": "+err.Error(), err)
}

// As finds the first CodeError in err's chain.
func As(err error) (*CodeError, bool) {
	var ce *CodeError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsRetryable reports whether any CodeError in the chain is retryable.
func IsRetryable(err error) bool {
	for ; err != nil; err = stderrors.Unwrap(err) {
		if ce, ok := err.(*CodeError); ok && ce.Retryable {
			return true
		}
	}
	return false
}

// IsFatal reports whether err has fatal severity.
func IsFatal(err error) bool {
	ce, ok := As(err)
	return ok && ce.Severity == SeverityFatal
}

// GetCode extracts the error code, or "" if err carries none.
func GetCode(err error) string {
	if ce, ok := As(err); ok {
		return ce.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}
