package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quest-engine/internal/types"
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

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// handleServiceError writes the HTTP response for a service-layer error.
// Typed errors keep their code and message on the wire; anything else is a
// generic 500 so internals never leak.
func handleServiceError(w http.ResponseWriter, err error) {
	var serviceErr *types.ServiceError
	if errors.As(err, &serviceErr) {
		respondError(w, statusForCode(serviceErr.Code), serviceErr.Code, serviceErr.Message, serviceErr.Details)
		return
	}
	respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred", nil)
}

func statusForCode(code string) int {
	switch code {
	case types.CodeUserQuestNotFound:
		return http.StatusNotFound
	case types.CodeQuestNotCompleted:
		return http.StatusBadRequest
	case types.CodeAlreadyClaimedPeriod, types.CodeStatusConflict:
		return http.StatusConflict
	case types.CodeChainNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
