package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ResponseCode business code carried in every API envelope
type ResponseCode int

const (
	CodeSuccess         ResponseCode = 0
	CodeInvalidParam    ResponseCode = 1001
	CodeUnauthorized    ResponseCode = 1002
	CodeNotFound        ResponseCode = 1003
	CodeInternalError   ResponseCode = 1004
	CodeRateLimit       ResponseCode = 1005
	CodeSessionNotFound ResponseCode = 2001
	CodeSessionClosed   ResponseCode = 2002
	CodeUpstreamError   ResponseCode = 3001
)

// HTTPStatus maps a business code onto the HTTP status it is served with.
func (c ResponseCode) HTTPStatus() int {
	switch c {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound, CodeSessionNotFound:
		return http.StatusNotFound
	case CodeSessionClosed:
		return http.StatusGone
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError application error structure
type AppError struct {
	Code    ResponseCode `json:"code"`
	Message string       `json:"message"`
	Err     error        `json:"-"`
}

// Error implement error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code: %d, message: %s, error: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

// Unwrap implement errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches app errors by code so wrapped sentinels compare equal.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// NewError create new application error
func NewError(code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// WrapError wrap error
func WrapError(err error, code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

var (
	ErrInvalidParam    = NewError(CodeInvalidParam, "invalid parameter")
	ErrSessionNotFound = NewError(CodeSessionNotFound, "chat session not found")
	ErrSessionClosed   = NewError(CodeSessionClosed, "chat session closed")
	ErrRateLimit       = NewError(CodeRateLimit, "rate limit exceeded")
	ErrInternalError   = NewError(CodeInternalError, "internal server error")
)

// IsAppError check if it's an application error
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetErrorCode get error code
func GetErrorCode(err error) ResponseCode {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Code
	}
	return CodeInternalError
}

// GetErrorMessage get error message
func GetErrorMessage(err error) string {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}
