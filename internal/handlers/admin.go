package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"booking-backend/internal/services"
	"booking-backend/internal/store"
)

// AdminHandler handles availability management, payment flags, history
// and raw document inspection. All routes behind RequireAdmin.
type AdminHandler struct {
	availability *services.AvailabilityService
	bookings     *services.BookingService
	store        store.Store
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(availability *services.AvailabilityService, bookings *services.BookingService, st store.Store) *AdminHandler {
	return &AdminHandler{
		availability: availability,
		bookings:     bookings,
		store:        st,
	}
}

type setAvailabilityRequest struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// SetAvailability handles PUT /api/v1/admin/availability.
func (h *AdminHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	var in setAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	slots, err := h.availability.Set(r.Context(), in.Date, in.Start, in.End)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Info().Str("date", in.Date).Strs("slots", slots).Msg("Availability set")
	respondJSON(w, map[string]any{"date": in.Date, "slots": slots}, http.StatusOK)
}

// ListAvailability handles GET /api/v1/admin/availability.
func (h *AdminHandler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	av, err := h.availability.All(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, av, http.StatusOK)
}

// Agenda handles GET /api/v1/admin/agenda.
func (h *AdminHandler) Agenda(w http.ResponseWriter, r *http.Request) {
	agenda, err := h.bookings.Agenda(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, agenda, http.StatusOK)
}

// TogglePaid handles POST /api/v1/admin/bookings/{date}/{hour}/{username}/paid.
func (h *AdminHandler) TogglePaid(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	hour := chi.URLParam(r, "hour")
	username := chi.URLParam(r, "username")

	if err := h.bookings.TogglePaid(r.Context(), username, date, hour); err != nil {
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("username", username).
		Str("date", date).
		Str("hour", hour).
		Msg("Payment flag toggled")
	respondJSON(w, map[string]string{"message": "Payment status updated"}, http.StatusOK)
}

// History handles GET /api/v1/admin/history?filter=&date=.
func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.bookings.History(r.Context(), r.URL.Query().Get("filter"), r.URL.Query().Get("date"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, entries, http.StatusOK)
}

// ExportHistory handles GET /api/v1/admin/history/export, streaming the
// filtered history as a CSV attachment.
func (h *AdminHandler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.bookings.History(r.Context(), r.URL.Query().Get("filter"), r.URL.Query().Get("date"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	filename := fmt.Sprintf("bookings_history_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	cw := csv.NewWriter(w)
	cw.Write([]string{"Date", "Hour", "User", "Phone", "Category", "Paid"})
	for _, e := range entries {
		paid := "No"
		if e.Paid {
			paid = "Yes"
		}
		cw.Write([]string{e.Date, e.Hour, e.Name, e.Phone, e.Category, paid})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Error().Err(err).Msg("Failed to write CSV export")
	}
}

var inspectableDocuments = map[string]bool{
	"users":        true,
	"availability": true,
	"bookings":     true,
}

// Document handles GET /api/v1/admin/docs/{name}, returning the raw
// parsed document for inspection.
func (h *AdminHandler) Document(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !inspectableDocuments[name] {
		respondError(w, "Unknown document", http.StatusNotFound)
		return
	}

	doc := map[string]any{}
	if err := h.store.Load(r.Context(), name, &doc); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, doc, http.StatusOK)
}
