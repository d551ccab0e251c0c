package intake

import "fmt"

type ErrorCode string

const (
	ErrorInvalidInput          ErrorCode = "INVALID_INPUT"
	ErrorUnsupportedAttachment ErrorCode = "UNSUPPORTED_ATTACHMENT"
	ErrorUpstreamUpload        ErrorCode = "UPSTREAM_UPLOAD_FAILURE"
	ErrorUpstreamPersistence   ErrorCode = "UPSTREAM_PERSISTENCE_FAILURE"
	ErrorSessionConflict       ErrorCode = "SESSION_CONFLICT"
)

// Error is a soft failure inside the engine. It never escapes Handle as a Go
// error; callers see its Code on the Outcome.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("intake: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("intake: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
