package apperrors

import (
	"errors"
	"fmt"
)

// Code is a machine readable reason attached to every failed backend interaction
type Code string

const (
	CodeAuthFailed       Code = "AUTH_FAILED"
	CodeInvalidResponse  Code = "INVALID_RESPONSE"
	CodeNoRefreshToken   Code = "NO_REFRESH_TOKEN"
	CodeRefreshFailed    Code = "REFRESH_FAILED"
	CodeNetworkError     Code = "NETWORK_ERROR"
	CodeGenerationFailed Code = "GENERATION_FAILED"
	CodeDownloadFailed   Code = "DOWNLOAD_FAILED"
	CodeRequestFailed    Code = "REQUEST_FAILED"

	// Host runtime never delivered init data
	CodeEnvironmentUnavailable Code = "ENVIRONMENT_UNAVAILABLE"
)

var (
	ErrAuthFailed       = &Error{Code: CodeAuthFailed}
	ErrInvalidResponse  = &Error{Code: CodeInvalidResponse}
	ErrNoRefreshToken   = &Error{Code: CodeNoRefreshToken}
	ErrRefreshFailed    = &Error{Code: CodeRefreshFailed}
	ErrNetwork          = &Error{Code: CodeNetworkError}
	ErrGenerationFailed = &Error{Code: CodeGenerationFailed}
	ErrDownloadFailed   = &Error{Code: CodeDownloadFailed}
	ErrRequestFailed    = &Error{Code: CodeRequestFailed}

	ErrEnvironmentUnavailable = &Error{Code: CodeEnvironmentUnavailable}
)

var (
	// Refresh could not rescue a request rejected with 401
	ErrSessionExpired = errors.New("session expired")

	ErrEmptyPrompt          = errors.New("prompt is empty")
	ErrGenerationInProgress = errors.New("generation already in progress")
	ErrInitDataInvalid      = errors.New("init data is invalid")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")
	ErrImageNotFound        = errors.New("image not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrKeyNotFound          = errors.New("key not found")
)

// Error is a failed outcome of a backend call
// Code is always set, Message is user facing and may come from the server
type Error struct {
	Code    Code
	Message string
	Err     error
}

func New(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err, ErrRefreshFailed) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the code of the first *Error in the chain or empty string
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// MessageOf returns user facing message of the first *Error in the chain
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ""
}
