package data

import (
	"fmt"
	"net/http"
)

// ErrorCode is a string type for consistent error codes.
type ErrorCode string

const (
	ErrorCodeInternalServerError ErrorCode = "internal_server_error"
	ErrorCodeBadRequest          ErrorCode = "bad_request"
	ErrorCodeNotFound            ErrorCode = "not_found"
	ErrorCodeUnauthorized        ErrorCode = "unauthorized"
	ErrorCodeMethodNotAllowed    ErrorCode = "method_not_allowed"
	ErrorCodeInvalidToken        ErrorCode = "invalid_token"
	ErrorCodeInvalidAPIKey       ErrorCode = "invalid_api_key"
	ErrorCodeMissingParameter    ErrorCode = "missing_parameter"
	ErrorCodeInvalidFormat       ErrorCode = "invalid_format"
	ErrorCodeStoreUnavailable    ErrorCode = "store_unavailable"
)

// APIError is the JSON body of every failed HTTP request.
type APIError struct {
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}, statusCode int) APIError {
	return APIError{Code: code, Message: message, Details: details, StatusCode: statusCode}
}

func BadRequest(code ErrorCode, message string) APIError {
	return NewAPIError(code, message, nil, http.StatusBadRequest)
}

func Unauthorized(code ErrorCode, message string) APIError {
	return NewAPIError(code, message, nil, http.StatusUnauthorized)
}
