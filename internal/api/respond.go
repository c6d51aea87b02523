package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/almanara/newsletter/internal/service/campaign"
	"github.com/almanara/newsletter/internal/service/subscriber"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
// Unknown errors are sanitized to a generic 500; internals never leak to
// API clients.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, subscriber.ErrNotFound), errors.Is(err, campaign.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, subscriber.ErrInvalidEmail):
		respondError(w, http.StatusBadRequest, "invalid email address")
	case errors.Is(err, subscriber.ErrDuplicate):
		respondError(w, http.StatusConflict, "already subscribed")
	case errors.Is(err, campaign.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, campaign.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
