package util

import "fmt"

type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindRateLimit      ErrorKind = "rate_limit"
	KindInternal       ErrorKind = "internal"
)

// MyResponseError is an error that knows how it is rendered to the client.
// Code identifies the error for errors.Is; Category and Details form the response body.
type MyResponseError struct {
	Kind     ErrorKind
	Status   int
	Code     string
	Category string
	Details  string
	cause    error
}

func (e *MyResponseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Details, e.cause)
	}
	return e.Category + ": " + e.Details
}

func (e *MyResponseError) Unwrap() error { return e.cause }

func (e *MyResponseError) Is(target error) bool {
	t, ok := target.(*MyResponseError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy carrying a different human message.
func (e *MyResponseError) WithDetails(format string, args ...interface{}) *MyResponseError {
	cp := *e
	cp.Details = fmt.Sprintf(format, args...)
	return &cp
}

// Wrap returns a copy that records the underlying cause for logging.
func (e *MyResponseError) Wrap(err error) *MyResponseError {
	cp := *e
	cp.cause = err
	return &cp
}

func NewResponseError(kind ErrorKind, status int, code, category, details string) *MyResponseError {
	return &MyResponseError{
		Kind:     kind,
		Status:   status,
		Code:     code,
		Category: category,
		Details:  details,
	}
}
