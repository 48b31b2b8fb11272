package util

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// ErrorResponse is the error envelope shared by every service.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// WriteJSON marshals payload before touching the response so a failed
// encode never leaves a half-written body behind.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// WriteError writes {"error": msg} with an optional machine-readable code.
func WriteError(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get(RequestIDHeader)),
	})
}

// DecodeJSON reads at most limit bytes of JSON into out.
func DecodeJSON(r *http.Request, limit int64, out any) error {
	if limit <= 0 {
		limit = 1 << 20
	}
	return json.NewDecoder(io.LimitReader(r.Body, limit)).Decode(out)
}
