package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"booking-backend/internal/models"
	"booking-backend/internal/store"
)

const availabilityDocument = "availability"

// AvailabilityRepository handles access to the availability document.
type AvailabilityRepository struct {
	store store.Store
}

// NewAvailabilityRepository creates a new availability repository.
func NewAvailabilityRepository(s store.Store) *AvailabilityRepository {
	return &AvailabilityRepository{store: s}
}

// All returns the full availability document.
func (r *AvailabilityRepository) All(ctx context.Context) (models.Availability, error) {
	av := models.Availability{}
	if err := r.store.Load(ctx, availabilityDocument, &av); err != nil {
		return nil, fmt.Errorf("failed to load availability: %w", err)
	}
	return av, nil
}

// Update applies fn to the availability document under its exclusive lock.
func (r *AvailabilityRepository) Update(ctx context.Context, fn func(models.Availability) (models.Availability, error)) error {
	return r.store.Update(ctx, availabilityDocument, func(data []byte) ([]byte, error) {
		av := models.Availability{}
		if err := json.Unmarshal(data, &av); err != nil {
			return nil, fmt.Errorf("failed to parse availability: %w", err)
		}
		next, err := fn(av)
		if err != nil {
			return nil, err
		}
		out, err := json.MarshalIndent(next, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode availability: %w", err)
		}
		return out, nil
	})
}
