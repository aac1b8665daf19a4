package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"booking-backend/internal/models"
	"booking-backend/internal/store"
)

const bookingsDocument = "bookings"

// BookingsRepository handles access to the bookings document.
type BookingsRepository struct {
	store store.Store
}

// NewBookingsRepository creates a new bookings repository.
func NewBookingsRepository(s store.Store) *BookingsRepository {
	return &BookingsRepository{store: s}
}

// All returns the full bookings document.
func (r *BookingsRepository) All(ctx context.Context) (models.Bookings, error) {
	bookings := models.Bookings{}
	if err := r.store.Load(ctx, bookingsDocument, &bookings); err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}
	return bookings, nil
}

// Update applies fn to the bookings document under its exclusive lock,
// so validate-mutate-persist runs as one transaction.
func (r *BookingsRepository) Update(ctx context.Context, fn func(models.Bookings) (models.Bookings, error)) error {
	return r.store.Update(ctx, bookingsDocument, func(data []byte) ([]byte, error) {
		bookings := models.Bookings{}
		if err := json.Unmarshal(data, &bookings); err != nil {
			return nil, fmt.Errorf("failed to parse bookings: %w", err)
		}
		next, err := fn(bookings)
		if err != nil {
			return nil, err
		}
		out, err := json.MarshalIndent(next, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode bookings: %w", err)
		}
		return out, nil
	})
}
