package domain

import (
	"errors"
	"net/http"
)

// ErrorCode identifies an error class and the HTTP status it maps to.
type ErrorCode struct {
	name       string
	httpStatus int
}

var (
	ErrorCodeParameterInvalid     = ErrorCode{"PARAMETER_INVALID", http.StatusBadRequest}
	ErrorCodeResourceNotFound     = ErrorCode{"RESOURCE_NOT_FOUND", http.StatusNotFound}
	ErrorCodeAuthPermissionDenied = ErrorCode{"AUTH_PERMISSION_DENIED", http.StatusForbidden}
	ErrorCodeAuthNotAuthenticated = ErrorCode{"AUTH_NOT_AUTHENTICATED", http.StatusUnauthorized}
	ErrorCodeInternalProcess      = ErrorCode{"INTERNAL_PROCESS", http.StatusInternalServerError}
	ErrorCodeRemoteProcess        = ErrorCode{"REMOTE_PROCESS_ERROR", http.StatusBadGateway}

	// Dispatch outcome classes. Exactly one of these wraps every dispatch
	// failure; a timeout means the outcome is unknown, not failed.
	ErrorCodeConfiguration = ErrorCode{"CONFIGURATION_ERROR", http.StatusBadRequest}
	ErrorCodeTransport     = ErrorCode{"TRANSPORT_ERROR", http.StatusBadGateway}
	ErrorCodeExecution     = ErrorCode{"EXECUTION_ERROR", http.StatusUnprocessableEntity}
	ErrorCodeTimeout       = ErrorCode{"TIMEOUT_ERROR", http.StatusGatewayTimeout}
)

// DomainError wraps an underlying error with a classification and an
// optional client-facing message. The zero value is usable and maps to a
// generic internal error.
type DomainError struct {
	code      ErrorCode
	err       error
	clientMsg string
	detail    map[string]interface{}
}

type ErrorOption func(*DomainError)

// WithMsg sets the message returned to API clients.
func WithMsg(msg string) ErrorOption {
	return func(e *DomainError) {
		e.clientMsg = msg
	}
}

// WithDetail attaches structured detail to the error response.
func WithDetail(detail map[string]interface{}) ErrorOption {
	return func(e *DomainError) {
		e.detail = detail
	}
}

func NewError(code ErrorCode, err error, opts ...ErrorOption) DomainError {
	e := DomainError{
		code: code,
		err:  err,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func (e DomainError) Error() string {
	if e.err == nil {
		if e.clientMsg != "" {
			return e.clientMsg
		}
		return e.Name()
	}
	return e.Name() + ": " + e.err.Error()
}

func (e DomainError) Unwrap() error {
	return e.err
}

// Name returns the error class name, e.g. "TRANSPORT_ERROR".
func (e DomainError) Name() string {
	if e.code.name == "" {
		return "INTERNAL_PROCESS"
	}
	return e.code.name
}

func (e DomainError) HTTPStatus() int {
	if e.code.httpStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.code.httpStatus
}

func (e DomainError) ClientMsg() string {
	return e.clientMsg
}

func (e DomainError) Detail() map[string]interface{} {
	return e.detail
}

// HasErrorCode reports whether err is (or wraps) a DomainError of the given
// class.
func HasErrorCode(err error, code ErrorCode) bool {
	var domainErr DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.code == code
}

// ErrorName classifies an arbitrary error for storage and logging.
func ErrorName(err error) string {
	var domainErr DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Name()
	}
	return "INTERNAL_PROCESS"
}
