package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorConfig        ErrorCode = "CONFIG_ERROR"
	ErrorAuthorization ErrorCode = "AUTHORIZATION_ERROR"
	ErrorDocumentStore ErrorCode = "DOCUMENT_STORE_ERROR"
	ErrorObjectStore   ErrorCode = "OBJECT_STORE_ERROR"
	ErrorSettings      ErrorCode = "SETTINGS_ERROR"
	ErrorInternal      ErrorCode = "INTERNAL_ERROR"
)

// Process exit codes, one per failure class so schedulers can branch on
// why a run stopped.
const (
	ExitOK            = 0
	ExitUnexpected    = 1
	ExitConfig        = 2
	ExitAuthorization = 3
	ExitService       = 4
)

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
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
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

// ExitCode maps a run error to the process exit code for the one-shot path.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ucErr *Error
	if !errors.As(err, &ucErr) {
		return ExitUnexpected
	}
	switch ucErr.Code {
	case ErrorConfig:
		return ExitConfig
	case ErrorAuthorization:
		return ExitAuthorization
	case ErrorDocumentStore, ErrorObjectStore, ErrorSettings:
		return ExitService
	default:
		return ExitUnexpected
	}
}

// apiErrorCoder matches AWS SDK service errors without depending on the
// SDK's error types directly; smithy API errors satisfy it.
type apiErrorCoder interface {
	ErrorCode() string
}

// httpStatusCoder matches transport-level errors carrying an HTTP status.
type httpStatusCoder interface {
	HTTPStatusCode() int
}

func isAccessDenied(err error) bool {
	var apiErr apiErrorCoder
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation",
		"UnrecognizedClientException", "ExpiredTokenException", "InvalidClientTokenId":
		return true
	}
	return false
}

// Classify wraps a backing-service error, promoting credential problems to
// the authorization class so they surface with their own exit code.
func Classify(fallback ErrorCode, reason string, err error) *Error {
	if isAccessDenied(err) {
		return newError(ErrorAuthorization, reason, err)
	}
	return newError(fallback, reason, err)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
