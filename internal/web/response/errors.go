package response

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RenderError renders a standard error response. An *HTTPError anywhere in
// the chain overrides statusCode.
func RenderError(w http.ResponseWriter, statusCode int, err error) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		httpErr.Render(w)
		return
	}
	RenderErrorWithCode(w, statusCode, err, "")
}

// RenderErrorWithCode renders an error with a specific error code
func RenderErrorWithCode(w http.ResponseWriter, statusCode int, err error, code string) {
	if code == "" {
		code = errorCodeFromStatus(statusCode)
	}

	JSON(w, statusCode, &ErrorResponse{
		Error:   "error",
		Message: err.Error(),
		Code:    code,
	})
}

// RenderErrorWithDetails renders an error with additional details
func RenderErrorWithDetails(w http.ResponseWriter, statusCode int, err error, details map[string]interface{}) {
	JSON(w, statusCode, &ErrorResponse{
		Error:   "error",
		Message: err.Error(),
		Code:    errorCodeFromStatus(statusCode),
		Details: details,
	})
}

// RenderBadRequest renders a 400 Bad Request error
func RenderBadRequest(w http.ResponseWriter, message string) {
	RenderError(w, http.StatusBadRequest, fmt.Errorf("%s", message))
}

// RenderUnauthorized renders a 401 Unauthorized error
func RenderUnauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Authentication required"
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="hubportal"`)
	RenderError(w, http.StatusUnauthorized, fmt.Errorf("%s", message))
}

// RenderForbidden renders a 403 Forbidden error
func RenderForbidden(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Access denied"
	}
	RenderError(w, http.StatusForbidden, fmt.Errorf("%s", message))
}

// RenderNotFound renders a 404 Not Found error
func RenderNotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RenderError(w, http.StatusNotFound, fmt.Errorf("%s", message))
}

// RenderMethodNotAllowed renders a 405 Method Not Allowed error
func RenderMethodNotAllowed(w http.ResponseWriter) {
	RenderError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
}

// RenderInternalError renders a 500 without exposing err to the client
func RenderInternalError(w http.ResponseWriter, err error) {
	RenderError(w, http.StatusInternalServerError, fmt.Errorf("internal server error"))
}

// RenderServiceUnavailable renders a 503 Service Unavailable error
func RenderServiceUnavailable(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	RenderError(w, http.StatusServiceUnavailable, fmt.Errorf("%s", message))
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	case http.StatusGatewayTimeout:
		return "gateway_timeout"
	default:
		return "error"
	}
}

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
	Details    map[string]interface{}
	// Err is the underlying cause, kept for errors.Is and never rendered
	Err error
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       errorCodeFromStatus(statusCode),
	}
}

// Wrap creates an HTTP error whose message is err's message
func Wrap(statusCode int, err error) *HTTPError {
	e := NewHTTPError(statusCode, err.Error())
	e.Err = err
	return e
}

// WithCode sets a custom error code
func (e *HTTPError) WithCode(code string) *HTTPError {
	e.Code = code
	return e
}

// WithDetails adds details to the error
func (e *HTTPError) WithDetails(details map[string]interface{}) *HTTPError {
	e.Details = details
	return e
}

// Render renders the HTTP error as a response
func (e *HTTPError) Render(w http.ResponseWriter) {
	JSON(w, e.StatusCode, &ErrorResponse{
		Error:   "error",
		Message: e.Message,
		Code:    e.Code,
		Details: e.Details,
	})
}
