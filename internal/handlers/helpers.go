package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes `{success:true, ...fields}` (§6 response envelope),
// merging fields into the top-level object (e.g. `data`, `id`, `url`,
// `links`, `status`, `completed`).
func WriteSuccess(w http.ResponseWriter, statusCode int, fields map[string]interface{}) error {
	body := map[string]interface{}{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	return WriteJSON(w, statusCode, body)
}

// WriteError writes `{success:false, error:<message>}` (§7 "User-visible")
// with statusCode and message as given. WriteAppError derives both from an
// *apperr.Error instead.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// WriteAppError maps err's apperr.Kind to an HTTP status and writes the
// standard error envelope, falling back to 500 for untyped errors.
func WriteAppError(w http.ResponseWriter, err error) error {
	if appErr, ok := apperr.As(err); ok {
		body := map[string]interface{}{"success": false, "error": appErr.Message}
		if appErr.Details != nil {
			body["details"] = appErr.Details
		}
		return WriteJSON(w, apperr.HTTPStatus(appErr.Kind), body)
	}
	return WriteError(w, http.StatusInternalServerError, err.Error())
}

// GetMapKeys returns all keys from a map as a slice.
func GetMapKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
