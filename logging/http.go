package logging

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// HTTPErrorResponse represents a standard JSON error response
type HTTPErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSONError writes a JSON error response and logs it. Server errors are
// logged at error level, client errors at debug.
func WriteJSONError(w http.ResponseWriter, l zerolog.Logger, message string, statusCode int) {
	ev := l.Debug()
	if statusCode >= http.StatusInternalServerError {
		ev = l.Error()
	}
	ev.Int("status_code", statusCode).Str("message", message).Msg("http error response")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(HTTPErrorResponse{Error: message}); err != nil {
		l.Warn().Err(err).Msg("failed to encode error response")
	}
}

// WriteJSON writes data as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, l zerolog.Logger, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		l.Warn().Err(err).Msg("failed to encode response")
	}
}
