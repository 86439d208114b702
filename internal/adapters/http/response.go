package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prxgr4mmer/spread-tracker/internal/domain"
)

// Response helpers for consistent JSON responses

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// respondJSON sends a JSON response with the given status code
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// respondErrorWithCode sends an error response with an error code
func respondErrorWithCode(w http.ResponseWriter, status int, message, code string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// handleDomainError maps domain errors to HTTP responses
func handleDomainError(w http.ResponseWriter, err error) {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		respondErrorWithCode(w, http.StatusBadRequest, domainErr.Error(), domainErr.Code)
		return
	}

	switch {
	case errors.Is(err, domain.ErrTokenNotFound):
		respondErrorWithCode(w, http.StatusNotFound, "token not found", "TOKEN_NOT_FOUND")

	case errors.Is(err, domain.ErrStoreUnavailable):
		respondErrorWithCode(w, http.StatusServiceUnavailable, "shared store unavailable", "STORE_UNAVAILABLE")

	case errors.Is(err, domain.ErrSourceUnavailable):
		respondErrorWithCode(w, http.StatusServiceUnavailable, "price source unavailable", "SOURCE_UNAVAILABLE")

	case errors.Is(err, domain.ErrRateLimited):
		respondErrorWithCode(w, http.StatusTooManyRequests, "rate limited by price source", "RATE_LIMITED")

	case errors.Is(err, domain.ErrInvalidResponse):
		respondErrorWithCode(w, http.StatusBadGateway, "invalid response from price source", "INVALID_SOURCE_RESPONSE")

	case errors.Is(err, domain.ErrRunFailure):
		respondErrorWithCode(w, http.StatusInternalServerError, err.Error(), "RUN_FAILED")

	default:
		respondErrorWithCode(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
