package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/trivia-pay/internal/errors"
	"github.com/trivia-pay/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondPNG sends an image response.
func respondPNG(w http.ResponseWriter, png []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// respondServiceError maps a service error to its HTTP status and body.
// Internal failures are logged by the caller and reported without detail.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := errors.Categorize(err)
	if catErr.StatusCode >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	}
	if catErr.Code == "INTERNAL_ERROR" {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred", nil)
		return
	}
	respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details)
}

func invalidBody(w http.ResponseWriter) {
	respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
}
