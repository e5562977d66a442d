package utils

import (
	"encoding/json"
	"log"
	"net/http"

	"leakwatch/internal/data"
)

// RespondWithError sends a JSON error response using the APIError model.
func RespondWithError(w http.ResponseWriter, apiErr data.APIError) {
	if apiErr.StatusCode == 0 {
		apiErr.StatusCode = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode)
	if err := json.NewEncoder(w).Encode(apiErr); err != nil {
		log.Printf("[api] failed to encode error response: %v", err)
	}
}

// RespondWithJSON sends a JSON success response.
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[api] failed to encode JSON response: %v", err)
	}
}
