package handlers

import (
	"encoding/json"
	"net/http"
)

// apiError is the wire shape of every non-streaming error this service
// returns: a stable machine-readable code plus a human-readable message.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorResponse writes a JSON error body. Generation SSE endpoints write
// their own error frames instead once streaming has begun.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(apiError{Error: errorCode, Message: message})
}

// WriteJSON writes a JSON response. Status 200 is left to the first
// body write so handlers can still upgrade the response.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}
