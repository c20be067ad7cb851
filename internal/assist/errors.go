package assist

import "fmt"

// Code is a stable error code carried on every failure payload.
type Code string

const (
	CodeValidation      Code = "validation_error"
	CodeSessionNotFound Code = "session_not_found"
	CodeProvider        Code = "provider_error"
	CodePersistence     Code = "persistence_error"
)

// Error is a pipeline failure with a stable code and a human-readable
// message. Parse fallbacks are absorbed internally and never become an
// Error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func validationError(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}
