// Package httperr defines the JSON body of every non-2xx API response so the
// handlers, the auth middleware and the websocket endpoint answer alike.
package httperr

import (
	"encoding/json"
	"net/http"

	"github.com/shiva/medride/internal/model"
)

// Response is the body of every non-2xx response.
type Response struct {
	Error              string             `json:"error"`
	Message            string             `json:"message,omitempty"`
	Field              string             `json:"field,omitempty"`
	Retryable          bool               `json:"retryable,omitempty"`
	AllowedTransitions []model.RideStatus `json:"allowedTransitions,omitempty"`
}

var (
	Unauthorized = Response{Error: "unauthorized", Message: "A valid bearer token is required."}
	Internal     = Response{Error: "internal_error"}
)

// Write encodes body with the given status.
func Write(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
