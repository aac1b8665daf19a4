package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking-backend/internal/models"
	"booking-backend/internal/repository"
)

var (
	// ErrInvalidDate is returned when a date is not a valid ISO day.
	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")
	// ErrInvalidRange is returned when the time range is unparseable or
	// the end does not come after the start.
	ErrInvalidRange = errors.New("invalid time range, end must be after start")
)

const (
	dateLayout = "2006-01-02"
	hourLayout = "15:04"
)

// AvailabilityService maintains the admin-authored availability ledger.
type AvailabilityService struct {
	availability *repository.AvailabilityRepository
}

// NewAvailabilityService creates a new availability service.
func NewAvailabilityService(availability *repository.AvailabilityRepository) *AvailabilityService {
	return &AvailabilityService{availability: availability}
}

// Set partitions [start, end) into contiguous hour-aligned 1-hour slots
// and replaces any prior slot list for date. It does not inspect
// existing bookings: shrinking availability never cancels a booking
// already made for a removed slot.
func (s *AvailabilityService) Set(ctx context.Context, date, start, end string) ([]string, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	startT, err := time.Parse(hourLayout, start)
	if err != nil {
		return nil, fmt.Errorf("%w: bad start %q", ErrInvalidRange, start)
	}
	endT, err := time.Parse(hourLayout, end)
	if err != nil {
		return nil, fmt.Errorf("%w: bad end %q", ErrInvalidRange, end)
	}
	if !endT.After(startT) {
		return nil, ErrInvalidRange
	}

	var slots []string
	for cur := startT; !cur.Add(time.Hour).After(endT); cur = cur.Add(time.Hour) {
		slots = append(slots, cur.Format(hourLayout))
	}

	err = s.availability.Update(ctx, func(av models.Availability) (models.Availability, error) {
		av[date] = slots
		return av, nil
	})
	if err != nil {
		return nil, err
	}
	return slots, nil
}

// All returns the full availability document.
func (s *AvailabilityService) All(ctx context.Context) (models.Availability, error) {
	return s.availability.All(ctx)
}
