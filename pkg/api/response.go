package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is the standard API response wrapper.
//
// All endpoints answer with this structure:
//   - Status indicates the overall result ("ok" or "error")
//   - Timestamp provides response time for debugging
//   - Data carries the payload (optional)
//   - Error carries error details when Status is "error" (optional)
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Last resort; may not succeed if headers are already gone.
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// OKResponse creates a successful response.
func OKResponse(data any) Response {
	return Response{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// ErrorResponse creates an error response.
func ErrorResponse(errMsg string) Response {
	return Response{
		Status:    "error",
		Timestamp: time.Now().UTC(),
		Error:     errMsg,
	}
}
