package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// APIResponse is the JSON envelope returned by every admin endpoint.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("API failed to encode response", "error", err)
	}
}

func writeOK(w http.ResponseWriter, result interface{}) {
	writeJSON(w, http.StatusOK, APIResponse{Status: "ok", Result: result})
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, APIResponse{Status: "error", Message: message})
}
