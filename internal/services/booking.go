package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"booking-backend/internal/email"
	"booking-backend/internal/models"
	"booking-backend/internal/repository"
	"booking-backend/internal/store"
)

var (
	// ErrSlotUnknown is returned when the slot is not in current availability.
	ErrSlotUnknown = errors.New("slot is not available")
	// ErrAlreadyBooked is returned when the user already occupies the slot.
	ErrAlreadyBooked = errors.New("slot already booked by this user")
	// ErrSlotFull is returned when the slot already holds the maximum
	// number of users.
	ErrSlotFull = errors.New("slot is full")
	// ErrFutureBookingExists is returned when the user already holds
	// another booking in the future. Only one future booking is allowed.
	ErrFutureBookingExists = errors.New("user already has a future booking")
	// ErrNoSuchBooking is returned when the user does not occupy the slot.
	ErrNoSuchBooking = errors.New("no such booking")
	// ErrInvalidFilter is returned for an unknown history filter.
	ErrInvalidFilter = errors.New("invalid history filter")
)

const (
	slotCapacity   = 2
	slotTimeLayout = "2006-01-02 15:04"
	monthRefLayout = "2006-01"
)

// History filter names accepted by History.
const (
	FilterNone  = ""
	FilterDay   = "day"
	FilterWeek  = "week"
	FilterMonth = "month"
)

// BookingService is the invariant-preserving ledger over the bookings
// document. Every mutation is a read-validate-mutate-write transaction
// under the document's exclusive lock.
type BookingService struct {
	bookings     *repository.BookingsRepository
	availability *repository.AvailabilityRepository
	users        *repository.UsersRepository
	notifier     email.Notifier
	now          func() time.Time
}

// NewBookingService creates a new booking service.
func NewBookingService(
	bookings *repository.BookingsRepository,
	availability *repository.AvailabilityRepository,
	users *repository.UsersRepository,
	notifier email.Notifier,
) *BookingService {
	return &BookingService{
		bookings:     bookings,
		availability: availability,
		users:        users,
		notifier:     notifier,
		now:          time.Now,
	}
}

// Reserve books (date, hour) for username. Availability is read outside
// the bookings lock: a slot withdrawn between the check and the write
// still books, which is an accepted gap of the design.
func (s *BookingService) Reserve(ctx context.Context, username, date, hour string) error {
	av, err := s.availability.All(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(av[date], hour) {
		return ErrSlotUnknown
	}

	mutate := func(b models.Bookings) (models.Bookings, error) {
		seats := b[date][hour]
		if _, ok := seats[username]; ok {
			return nil, ErrAlreadyBooked
		}
		if len(seats) >= slotCapacity {
			return nil, ErrSlotFull
		}
		if s.hasFutureBooking(b, username) {
			return nil, ErrFutureBookingExists
		}
		if b[date] == nil {
			b[date] = map[string]map[string]models.Seat{}
		}
		if b[date][hour] == nil {
			b[date][hour] = map[string]models.Seat{}
		}
		b[date][hour][username] = models.Seat{Paid: false}
		return b, nil
	}
	if err := s.update(ctx, mutate); err != nil {
		return err
	}

	s.notifyAdmins(ctx, username, "New reservation",
		fmt.Sprintf("%s has reserved a slot on %s at %s.", username, date, hour))
	return nil
}

// Cancel removes username from (date, hour), pruning emptied hours and
// dates. Cancelling a booking that does not exist reports
// ErrNoSuchBooking; the document is left exactly as it was.
func (s *BookingService) Cancel(ctx context.Context, username, date, hour string) error {
	mutate := func(b models.Bookings) (models.Bookings, error) {
		seats := b[date][hour]
		if _, ok := seats[username]; !ok {
			return nil, ErrNoSuchBooking
		}
		delete(seats, username)
		if len(seats) == 0 {
			delete(b[date], hour)
			if len(b[date]) == 0 {
				delete(b, date)
			}
		}
		return b, nil
	}
	if err := s.update(ctx, mutate); err != nil {
		return err
	}

	s.notifyAdmins(ctx, username, "Reservation cancelled",
		fmt.Sprintf("%s has cancelled the slot on %s at %s.", username, date, hour))
	return nil
}

// TogglePaid flips the paid flag on an existing booking. Admin-only;
// authorization is enforced by the HTTP layer. No notification is sent.
func (s *BookingService) TogglePaid(ctx context.Context, username, date, hour string) error {
	return s.update(ctx, func(b models.Bookings) (models.Bookings, error) {
		seat, ok := b[date][hour][username]
		if !ok {
			return nil, ErrNoSuchBooking
		}
		b[date][hour][username] = models.Seat{Paid: !seat.Paid}
		return b, nil
	})
}

// ListForUser returns every booking containing username, ordered by
// (date, hour) ascending, which is chronological given the fixed formats.
func (s *BookingService) ListForUser(ctx context.Context, username string) ([]models.UserBooking, error) {
	bookings, err := s.bookings.All(ctx)
	if err != nil {
		return nil, err
	}

	var mine []models.UserBooking
	for date, hours := range bookings {
		for hour, seats := range hours {
			if seat, ok := seats[username]; ok {
				mine = append(mine, models.UserBooking{Date: date, Hour: hour, Paid: seat.Paid})
			}
		}
	}
	sort.Slice(mine, func(i, j int) bool {
		if mine[i].Date != mine[j].Date {
			return mine[i].Date < mine[j].Date
		}
		return mine[i].Hour < mine[j].Hour
	})
	return mine, nil
}

// FreeSlots returns, per date, the available hours whose occupant count
// is below capacity. Dates without a single free hour are omitted.
func (s *BookingService) FreeSlots(ctx context.Context) (models.Availability, error) {
	av, err := s.availability.All(ctx)
	if err != nil {
		return nil, err
	}
	bookings, err := s.bookings.All(ctx)
	if err != nil {
		return nil, err
	}

	free := models.Availability{}
	for date, hours := range av {
		var open []string
		for _, hour := range hours {
			if len(bookings[date][hour]) < slotCapacity {
				open = append(open, hour)
			}
		}
		if len(open) > 0 {
			free[date] = open
		}
	}
	return free, nil
}

// Agenda returns all bookings joined with profile fields, keyed by date
// and hour, for the admin overview.
func (s *BookingService) Agenda(ctx context.Context) (map[string]map[string][]models.AgendaSeat, error) {
	bookings, err := s.bookings.All(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.users.All(ctx)
	if err != nil {
		return nil, err
	}

	agenda := map[string]map[string][]models.AgendaSeat{}
	for date, hours := range bookings {
		agenda[date] = map[string][]models.AgendaSeat{}
		for hour, seats := range hours {
			var occupants []models.AgendaSeat
			for username, seat := range seats {
				u := users[username]
				occupants = append(occupants, models.AgendaSeat{
					Username: username,
					Name:     u.FullName(),
					Phone:    u.Phone,
					Category: u.Category,
					Paid:     seat.Paid,
				})
			}
			sort.Slice(occupants, func(i, j int) bool {
				return occupants[i].Username < occupants[j].Username
			})
			agenda[date][hour] = occupants
		}
	}
	return agenda, nil
}

// History flattens every booking joined with profile fields, filtered
// by day (reference YYYY-MM-DD), ISO week containing the reference
// (Monday start), or calendar month (reference YYYY-MM). Entries whose
// slot cannot be parsed as a timestamp are corrupt data and are skipped,
// never fatal.
func (s *BookingService) History(ctx context.Context, filter, reference string) ([]models.HistoryEntry, error) {
	match, err := historyMatcher(filter, reference)
	if err != nil {
		return nil, err
	}

	bookings, err := s.bookings.All(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.users.All(ctx)
	if err != nil {
		return nil, err
	}

	var entries []models.HistoryEntry
	for date, hours := range bookings {
		for hour, seats := range hours {
			ts, err := time.Parse(slotTimeLayout, date+" "+hour)
			if err != nil {
				continue
			}
			if !match(date, ts) {
				continue
			}
			for username, seat := range seats {
				u := users[username]
				entries = append(entries, models.HistoryEntry{
					Date:     date,
					Hour:     hour,
					Username: username,
					Name:     u.FullName(),
					Phone:    u.Phone,
					Category: u.Category,
					Paid:     seat.Paid,
				})
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date < entries[j].Date
		}
		if entries[i].Hour != entries[j].Hour {
			return entries[i].Hour < entries[j].Hour
		}
		return entries[i].Username < entries[j].Username
	})
	return entries, nil
}

func historyMatcher(filter, reference string) (func(date string, ts time.Time) bool, error) {
	switch filter {
	case FilterNone:
		return func(string, time.Time) bool { return true }, nil
	case FilterDay:
		if _, err := time.Parse(dateLayout, reference); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDate, reference)
		}
		return func(date string, _ time.Time) bool { return date == reference }, nil
	case FilterWeek:
		ref, err := time.Parse(dateLayout, reference)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDate, reference)
		}
		weekday := int(ref.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start := ref.AddDate(0, 0, -(weekday - 1))
		end := start.AddDate(0, 0, 7)
		return func(_ string, ts time.Time) bool {
			day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
			return !day.Before(start) && day.Before(end)
		}, nil
	case FilterMonth:
		if _, err := time.Parse(monthRefLayout, reference); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDate, reference)
		}
		return func(_ string, ts time.Time) bool {
			return ts.Format(monthRefLayout) == reference
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilter, filter)
	}
}

// hasFutureBooking reports whether username holds any booking strictly
// later than now. Malformed stored timestamps do not block a new
// reservation; they are skipped.
func (s *BookingService) hasFutureBooking(b models.Bookings, username string) bool {
	now := s.now()
	for date, hours := range b {
		for hour, seats := range hours {
			if _, ok := seats[username]; !ok {
				continue
			}
			ts, err := time.ParseInLocation(slotTimeLayout, date+" "+hour, now.Location())
			if err != nil {
				continue
			}
			if ts.After(now) {
				return true
			}
		}
	}
	return false
}

// update runs a bookings transaction, retrying once when the document
// lock could not be acquired in time.
func (s *BookingService) update(ctx context.Context, fn func(models.Bookings) (models.Bookings, error)) error {
	err := s.bookings.Update(ctx, fn)
	if errors.Is(err, store.ErrLockTimeout) {
		log.Warn().Err(err).Msg("Bookings lock busy, retrying once")
		err = s.bookings.Update(ctx, fn)
	}
	return err
}

// notifyAdmins sends a notification to every admin recipient without
// blocking the mutation that triggered it. Failures are logged only.
func (s *BookingService) notifyAdmins(ctx context.Context, username, subject, body string) {
	admins, err := s.users.AdminEmails(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to resolve admin recipients")
		return
	}
	go func() {
		for _, to := range admins {
			if err := s.notifier.Notify(context.Background(), to, subject, body); err != nil {
				log.Warn().Err(err).Str("to", to).Str("username", username).Msg("Failed to send admin notification")
			}
		}
	}()
}
