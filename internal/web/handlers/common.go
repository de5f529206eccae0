package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// errEmptyBody is returned by decodeJSON when the request has no body.
var errEmptyBody = errors.New("empty request body")

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a JSON body into target. Returns errEmptyBody for an empty body.
func decodeJSON(r *http.Request, target any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(target)
	if errors.Is(err, io.EOF) {
		return errEmptyBody
	}
	return err
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
