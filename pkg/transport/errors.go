package transport

import (
	"encoding/json"
	"net/http"
)

// Error types used in JSON error bodies.
const (
	ErrorTypeInvalidRequest = "invalid_request"
	ErrorTypeNotFound       = "not_found"
	ErrorTypeServer         = "server_error"
)

// ErrorBody is the JSON error payload.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorBody as {"error": {...}}.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, errType, message string) {
	WriteJSON(w, status, ErrorResponse{Error: ErrorBody{Type: errType, Message: message}})
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
