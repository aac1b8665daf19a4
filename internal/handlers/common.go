package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"booking-backend/internal/services"
	"booking-backend/internal/store"
	"booking-backend/internal/token"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, ErrorResponse{Error: message}, statusCode)
}

// respondServiceError maps service errors onto the HTTP surface.
// Conflicts, not-found and bad input are expected user-facing outcomes;
// only unknown failures are logged as errors.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNoSuchBooking),
		errors.Is(err, services.ErrSlotUnknown),
		errors.Is(err, services.ErrUserNotFound):
		respondError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrSlotFull),
		errors.Is(err, services.ErrAlreadyBooked),
		errors.Is(err, services.ErrFutureBookingExists),
		errors.Is(err, services.ErrUserExists),
		errors.Is(err, services.ErrAlreadyConfirmed):
		respondError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrMissingFields),
		errors.Is(err, services.ErrInvalidEmail),
		errors.Is(err, services.ErrInvalidDate),
		errors.Is(err, services.ErrInvalidRange),
		errors.Is(err, services.ErrInvalidFilter),
		errors.Is(err, token.ErrInvalid):
		respondError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrNotConfirmed),
		errors.Is(err, services.ErrInvalidSession):
		respondError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, store.ErrLockTimeout):
		respondError(w, "Temporarily busy, please try again", http.StatusServiceUnavailable)
	default:
		log.Error().Err(err).Msg("Unhandled service error")
		respondError(w, "Internal server error", http.StatusInternalServerError)
	}
}
