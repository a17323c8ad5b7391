package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	nwerrors "github.com/agentstation/neowatch/pkg/errors"
)

// TestSuccess tests the Success helper function.
func TestSuccess(t *testing.T) {
	resp := Success(map[string]string{"message": "success"})

	if resp.Data == nil {
		t.Error("expected Data to be set")
	}
	if resp.Error != nil {
		t.Error("expected Error to be nil")
	}
}

// TestFail tests the Fail helper function.
func TestFail(t *testing.T) {
	resp := Fail("TEST_ERROR", "Test error message", "Additional details")

	if resp.Data != nil {
		t.Error("expected Data to be nil")
	}
	if resp.Error == nil {
		t.Fatal("expected Error to be set")
	}
	if resp.Error.Code != "TEST_ERROR" {
		t.Errorf("expected Code=TEST_ERROR, got %s", resp.Error.Code)
	}
	if resp.Error.Details != "Additional details" {
		t.Errorf("expected Details=Additional details, got %s", resp.Error.Details)
	}
}

// TestJSON tests the JSON helper function.
func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, Success(map[string]string{"test": "data"}))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type=application/json, got %s", ct)
	}

	var decoded Response
	if err := json.NewDecoder(w.Body).Decode(&decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if decoded.Data == nil {
		t.Error("expected decoded Data to be set")
	}
}

// TestErrorHelpers tests all error response helpers.
func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name           string
		fn             func(w http.ResponseWriter)
		expectedStatus int
		expectedCode   string
	}{
		{"InvalidArgument", func(w http.ResponseWriter) { InvalidArgument(w, "Invalid request", "name") }, http.StatusBadRequest, CodeInvalidArgument},
		{"Unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "Auth failed", "") }, http.StatusUnauthorized, CodeAccessDenied},
		{"Forbidden", func(w http.ResponseWriter) { Forbidden(w, "Not allowed", "") }, http.StatusForbidden, CodeAccessDenied},
		{"NotFound", func(w http.ResponseWriter) { NotFound(w, "Resource not found", "") }, http.StatusNotFound, CodeNotFound},
		{"Conflict", func(w http.ResponseWriter) { Conflict(w, "Stale", "") }, http.StatusConflict, CodeConflict},
		{"MethodNotAllowed", func(w http.ResponseWriter) { MethodNotAllowed(w, "PUT") }, http.StatusMethodNotAllowed, CodeMethodNotAllowed},
		{"RateLimited", func(w http.ResponseWriter) { RateLimited(w, "Too many requests") }, http.StatusTooManyRequests, CodeRateLimited},
		{"InternalError", func(w http.ResponseWriter) { InternalError(w, errors.New("boom")) }, http.StatusInternalServerError, CodeInternal},
		{"ServiceUnavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "down") }, http.StatusServiceUnavailable, CodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.fn(w)
			assertError(t, w, tt.expectedStatus, tt.expectedCode)
		})
	}
}

// TestErrorFromType tests typed error mapping.
func TestErrorFromType(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "NotFoundError",
			err:            nwerrors.NewNotFoundError("event", "abc"),
			expectedStatus: http.StatusNotFound,
			expectedCode:   CodeNotFound,
		},
		{
			name:           "wrapped NotFoundError",
			err:            fmt.Errorf("get: %w", nwerrors.NewNotFoundError("event", "abc")),
			expectedStatus: http.StatusNotFound,
			expectedCode:   CodeNotFound,
		},
		{
			name:           "ValidationError",
			err:            nwerrors.NewValidationError("name", "", "required"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   CodeInvalidArgument,
		},
		{
			name:           "unauthenticated",
			err:            nwerrors.NewAccessDeniedError("", "missing credentials", false, nil),
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   CodeAccessDenied,
		},
		{
			name:           "authenticated without role",
			err:            nwerrors.NewAccessDeniedError("alice", "operator role required", true, nil),
			expectedStatus: http.StatusForbidden,
			expectedCode:   CodeAccessDenied,
		},
		{
			name:           "ConflictError",
			err:            nwerrors.NewConflictError("event", "abc", "stale"),
			expectedStatus: http.StatusConflict,
			expectedCode:   CodeConflict,
		},
		{
			name:           "closed",
			err:            fmt.Errorf("create: %w", nwerrors.ErrClosed),
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   CodeUnavailable,
		},
		{
			name:           "ResourceError",
			err:            nwerrors.NewResourceError("fetch", "event", "abc", errors.New("disk")),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   CodeInternal,
		},
		{
			name:           "Generic error",
			err:            errors.New("generic error"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorFromType(w, tt.err)
			assertError(t, w, tt.expectedStatus, tt.expectedCode)
		})
	}
}

// TestErrorDetails tests error details omitempty behavior.
func TestErrorDetails(t *testing.T) {
	data, err := json.Marshal(Fail("TEST", "message", ""))
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var unmarshaled map[string]any
	if err := json.Unmarshal(data, &unmarshaled); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if unmarshaled["data"] != nil {
		t.Error("expected 'data' to be null")
	}
	errorField := unmarshaled["error"].(map[string]any)
	if _, ok := errorField["details"]; ok {
		t.Error("expected 'details' to be omitted when empty")
	}
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("expected status %d, got %d", status, w.Code)
	}

	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data != nil {
		t.Error("expected Data to be nil for error response")
	}
	if resp.Error == nil {
		t.Fatal("expected Error to be set")
	}
	if resp.Error.Code != code {
		t.Errorf("expected Code=%s, got %s", code, resp.Error.Code)
	}
}
