// Package httputil holds small JSON response helpers shared by every HTTP
// handler the status surface registers.
package httputil

import (
	"encoding/json"
	"net/http"
)

// MethodGET is the only HTTP method the status surface exposes.
const MethodGET = http.MethodGet

// ErrResponse is the JSON shape returned on any handler error.
type ErrResponse struct {
	Error string `json:"error"`
}

// RespondWithJSON writes payload as a JSON body with the given status code.
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

// RespondWithError writes an ErrResponse body with the given status code.
func RespondWithError(w http.ResponseWriter, statusCode int, err error) {
	RespondWithJSON(w, statusCode, ErrResponse{Error: err.Error()})
}
