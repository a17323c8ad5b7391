// Package response provides standardized HTTP response structures and helpers
// for the neowatch API server. All API responses follow a consistent format
// with a data field for successful responses and an error field for failures.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/agentstation/neowatch/pkg/errors"
)

// Response represents the standardized API response structure.
// All endpoints return this format for consistency.
type Response struct {
	Data  any    `json:"data"`
	Error *Error `json:"error"`
}

// Error represents an API error with code, message, and optional details.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes carried in the envelope.
const (
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeNotFound         = "NOT_FOUND"
	CodeAccessDenied     = "ACCESS_DENIED"
	CodeConflict         = "CONFLICT"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
)

// Success creates a successful response with data.
func Success(data any) Response {
	return Response{
		Data:  data,
		Error: nil,
	}
}

// Fail creates an error response.
func Fail(code, message, details string) Response {
	return Response{
		Data: nil,
		Error: &Error{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encoding errors are ignored as headers are already sent (best effort)
	_ = json.NewEncoder(w).Encode(resp)
}

// OK writes a successful response with 200 status.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Success(data))
}

// Created writes a successful response with 201 status.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, Success(data))
}

// InvalidArgument writes a 400 error response.
func InvalidArgument(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusBadRequest, Fail(CodeInvalidArgument, message, details))
}

// Unauthorized writes a 401 error response.
func Unauthorized(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusUnauthorized, Fail(CodeAccessDenied, message, details))
}

// Forbidden writes a 403 error response.
func Forbidden(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusForbidden, Fail(CodeAccessDenied, message, details))
}

// NotFound writes a 404 error response.
func NotFound(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusNotFound, Fail(CodeNotFound, message, details))
}

// Conflict writes a 409 error response.
func Conflict(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusConflict, Fail(CodeConflict, message, details))
}

// MethodNotAllowed writes a 405 error response.
func MethodNotAllowed(w http.ResponseWriter, method string) {
	JSON(w, http.StatusMethodNotAllowed, Fail(
		CodeMethodNotAllowed,
		"Method not allowed",
		"Method "+method+" is not supported for this endpoint",
	))
}

// RateLimited writes a 429 error response.
func RateLimited(w http.ResponseWriter, message string) {
	JSON(w, http.StatusTooManyRequests, Fail(
		CodeRateLimited,
		"Rate limit exceeded",
		message,
	))
}

// InternalError writes a 500 error response.
func InternalError(w http.ResponseWriter, _ error) {
	// Details stay in the logs; the request logger records the status.
	JSON(w, http.StatusInternalServerError, Fail(
		CodeInternal,
		"Internal server error",
		"An unexpected error occurred",
	))
}

// ServiceUnavailable writes a 503 error response.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	JSON(w, http.StatusServiceUnavailable, Fail(
		CodeUnavailable,
		"Service unavailable",
		message,
	))
}

// ErrorFromType maps typed errors to appropriate HTTP responses.
func ErrorFromType(w http.ResponseWriter, err error) {
	var (
		notFound   *errors.NotFoundError
		validation *errors.ValidationError
		denied     *errors.AccessDeniedError
		conflict   *errors.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		InvalidArgument(w, validation.Error(), validation.Field)
	case errors.As(err, &notFound):
		NotFound(w, notFound.Error(), "")
	case errors.As(err, &denied):
		if denied.Authenticated {
			Forbidden(w, denied.Error(), "")
		} else {
			Unauthorized(w, denied.Error(), "")
		}
	case errors.As(err, &conflict):
		Conflict(w, conflict.Error(), "")
	case errors.IsClosed(err):
		ServiceUnavailable(w, "shutting down")
	default:
		InternalError(w, err)
	}
}
