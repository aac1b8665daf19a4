package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"booking-backend/internal/middleware"
	"booking-backend/internal/services"
)

// BookingHandler handles slot listing and booking requests.
type BookingHandler struct {
	bookings *services.BookingService
}

// NewBookingHandler creates a new booking handler.
func NewBookingHandler(bookings *services.BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// FreeSlots handles GET /api/v1/slots.
func (h *BookingHandler) FreeSlots(w http.ResponseWriter, r *http.Request) {
	free, err := h.bookings.FreeSlots(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, free, http.StatusOK)
}

type reserveRequest struct {
	Date string `json:"date"`
	Hour string `json:"hour"`
}

// Reserve handles POST /api/v1/bookings.
func (h *BookingHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	ident, _ := middleware.GetIdentity(r.Context())

	var in reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.bookings.Reserve(r.Context(), ident.Username, in.Date, in.Hour); err != nil {
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("username", ident.Username).
		Str("date", in.Date).
		Str("hour", in.Hour).
		Msg("Slot reserved")
	respondJSON(w, map[string]string{"message": "Slot reserved", "date": in.Date, "hour": in.Hour}, http.StatusCreated)
}

// Cancel handles DELETE /api/v1/bookings/{date}/{hour}.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ident, _ := middleware.GetIdentity(r.Context())
	date := chi.URLParam(r, "date")
	hour := chi.URLParam(r, "hour")

	if err := h.bookings.Cancel(r.Context(), ident.Username, date, hour); err != nil {
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("username", ident.Username).
		Str("date", date).
		Str("hour", hour).
		Msg("Booking cancelled")
	respondJSON(w, map[string]string{"message": "Booking cancelled"}, http.StatusOK)
}

// MyBookings handles GET /api/v1/bookings.
func (h *BookingHandler) MyBookings(w http.ResponseWriter, r *http.Request) {
	ident, _ := middleware.GetIdentity(r.Context())

	mine, err := h.bookings.ListForUser(r.Context(), ident.Username)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, mine, http.StatusOK)
}
