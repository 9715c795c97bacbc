package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ApiError is the body of every error response.
type ApiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ApiErrorResponse struct {
	Error ApiError `json:"error"`
}

// newErrorResponse creates an ApiErrorResponse with the given code and message
func newErrorResponse(code, message string) ApiErrorResponse {
	return ApiErrorResponse{
		Error: ApiError{
			Code:    code,
			Message: message,
		},
	}
}

// Common error codes
const (
	ErrCodeInvalidJSON     = "INVALID_JSON"
	ErrCodeInternalError   = "INTERNAL_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeValidationError = "VALIDATION_ERROR"
	ErrCodeUnavailable     = "UNAVAILABLE"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("failed to write response", "component", "handler", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, newErrorResponse(code, message))
}

func badRequest(w http.ResponseWriter, code, message string) {
	writeError(w, http.StatusBadRequest, code, message)
}

func internalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred")
}

// NotFound answers unmatched routes with the JSON error envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, "Resource not found")
}
