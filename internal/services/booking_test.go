package services

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"booking-backend/internal/models"
	"booking-backend/internal/repository"
	"booking-backend/internal/store"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeNotifier) Notify(_ context.Context, to, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	return nil
}

type bookingFixture struct {
	booking      *BookingService
	availability *AvailabilityService
	bookingsRepo *repository.BookingsRepository
	usersRepo    *repository.UsersRepository
	notifier     *fakeNotifier
}

// newBookingFixture wires the ledgers over a real file store in a temp
// dir, with the clock pinned to 2024-06-01 10:00.
func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir(), 5*time.Second)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	usersRepo := repository.NewUsersRepository(st)
	availabilityRepo := repository.NewAvailabilityRepository(st)
	bookingsRepo := repository.NewBookingsRepository(st)
	notifier := &fakeNotifier{}

	booking := NewBookingService(bookingsRepo, availabilityRepo, usersRepo, notifier)
	booking.now = func() time.Time {
		return time.Date(2024, 6, 1, 10, 0, 0, 0, time.Local)
	}

	return &bookingFixture{
		booking:      booking,
		availability: NewAvailabilityService(availabilityRepo),
		bookingsRepo: bookingsRepo,
		usersRepo:    usersRepo,
		notifier:     notifier,
	}
}

func (f *bookingFixture) setAvailability(t *testing.T, date, start, end string) {
	t.Helper()
	if _, err := f.availability.Set(context.Background(), date, start, end); err != nil {
		t.Fatalf("set availability: %v", err)
	}
}

func (f *bookingFixture) seedBooking(t *testing.T, date, hour, username string, paid bool) {
	t.Helper()
	err := f.bookingsRepo.Update(context.Background(), func(b models.Bookings) (models.Bookings, error) {
		if b[date] == nil {
			b[date] = map[string]map[string]models.Seat{}
		}
		if b[date][hour] == nil {
			b[date][hour] = map[string]models.Seat{}
		}
		b[date][hour][username] = models.Seat{Paid: paid}
		return b, nil
	})
	if err != nil {
		t.Fatalf("seed booking: %v", err)
	}
}

func TestReserveUnknownSlot(t *testing.T) {
	t.Parallel()
	f := newBookingFixture(t)

	err := f.booking.Reserve(context.Background(), "alice", "2024-06-03", "09:00")
	if !errors.Is(err, ErrSlotUnknown) {
		t.Fatalf("expected ErrSlotUnknown, got %v", err)
	}
}

func TestReserveCapacity(t *testing.T) {
	t.Parallel()
	f := newBookingFixture(t)
	ctx := context.Background()
	f.setAvailability(t, "2024-06-03", "09:00", "12:00")

	if err := f.booking.Reserve(ctx, "alice", "2024-06-03", "09:00"); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if err := f.booking.Reserve(ctx, "bob", "2024-06-03", "09:00"); err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if err := f.booking.Reserve(ctx, "carol", "2024-06-03", "09:00"); !errors.Is(err, ErrSlotFull) {
		t.Fatalf("expected ErrSlotFull, got %v", err)
	}

	bookings, err := f.bookingsRepo.All(ctx)
	if err != nil {
		t.Fatalf("load bookings: %v", err)
	}
	if got := len(bookings["2024-06-03"]["09:00"]); got != 2 {
		t.Fatalf("slot holds %d users, want 2", got)
	}
}

func TestReserveSameSlotTwice(t *testing.T) {
	t.Parallel()
	f := newBookingFixture(t)
	ctx := context.Background()
	f.setAvailability(t, "2024-06-03", "09:00", "12:00")

	if err := f.booking.Reserve(ctx, "alice", "2024-06-03", "09:00"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := f.booking.Reserve(ctx, "alice", "2024-06-03", "09:00"); !errors.Is(err, ErrAlreadyBooked) {
		t.Fatalf("expected ErrAlreadyBooked, got %v", err)
	}
}

func TestReserveFutureBookingLimit(t *testing.T) {
	t.Parallel()
	f := newBookingFixture(t)
	ctx := context.Background()
	f.setAvailability(t, "2024-06-03", "09:00", "12:00")

	if err := f.booking.Reserve(ctx, "alice", "2024-06-03", "09:00"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := f.booking.Reserve(ctx, "alice", "2024-06-03", "10:00"); !errors.Is(err, ErrFutureBookingExists) {
		t.Fatalf("expected ErrFutureBookingExists, got %v", err)
	}
}

func TestReservePastBookingDoesNotBlock(t *testing.T) {
	t.Parallel()
	f := newBookingFixture(t)
	ctx := context.Background()
	f.setAvailability(t, "2024-06-03", "09:00", "12:00")

	// Clock is pinned to 2024-06-01; this booking is in the past.
	f.seedBooking(t, "2024-05-01", "09:00", "alice", false)

	if err := f.booking.Reserve(ctx, "alice", "2024-06-03", "09:00"); err != nil {
		t.Fatalf("reserve with only past bookings: %v", err)
	}
}

func TestReserveSkipsMalformedTimestamps(t *testing.T) {
	t.Parallel()
	f := newBookingFixture(t)
	ctx := context.Background()
	f.setAvailability(t, "2024-06-03", "09:00", "12:00")

	f.seedBooking(t, "not-a-date", "nope", "alice", false)

	if err := f.booking.Reserve(ctx, "alice", "2024-06-03", "09:00"); err != nil {
		t.Fatalf("malformed stored timestamp must not block a reservation: %v", err)
	}
}

func TestCancelIsIdempotentInEndState(t *testing.T) {
	t.Parallel()
	f := newBookingFixture(t)
	ctx := context.Background()
	f.setAvailability(t, "2024-06-03", "09:00", "12:00")

	if err := f.booking.Reserve(ctx, "alice", "2024-06-03", "09:00"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := f.booking.Cancel(ctx, "alice", "2024-06-03", "09:00"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	afterFirst, err := f.bookingsRepo.All(ctx)
	if err != nil {
		t.Fatalf("load bookings: %v", err)
	}

	if err := f.booking.Cancel(ctx, "alice", "2024-06-03", "09:00"); !errors.Is(err, ErrNoSuchBooking) {
		t.Fatalf("expected ErrNoSuchBooking on second cancel, got %v", err)
	}
	afterSecond, err := f.bookingsRepo.All(ctx)
	if err != nil {
		t.Fatalf("load bookings: %v", err)
	}
	if !reflect.DeepEqual(afterFirst, afterSecond) {
		t.Fatalf("second cancel changed the document: %v vs %v", afterFirst, afterSecond)
	}
}

func TestReserveThenCancelRestoresDocument(t *testing.T) {
	t.Parallel()
	f := newBookingFixture(t)
	ctx := context.Background()
	f.setAvailability(t, "2024-06-03", "09:00", "12:00")
	f.seedBooking(t, "2024-06-05", "10:00", "bob", true)

	before, err := f.bookingsRepo.All(ctx)
	if err != nil {
		t.Fatalf("load bookings: %v", err)
	}

	if err := f.booking.Reserve(ctx, "alice", "2024-06-03", "09:00"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := f.booking.Cancel(ctx, "alice", "2024-06-03", "09:00"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	after, err := f.bookingsRepo.All(ctx)
	if err != nil {
		t.Fatalf("load bookings: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("document not restored: %v vs %v", before, after)
	}
	if _, ok := after["2024-06-03"]; ok {
		t.Fatalf("emptied date was not pruned")
	}
}

func TestTogglePaid(t *testing.T) {
	t.Parallel()
	f := newBookingFixture(t)
	ctx := context.Background()
	f.seedBooking(t, "2024-06-03", "09:00", "alice", false)

	if err := f.booking.TogglePaid(ctx, "alice", "2024-06-03", "09:00"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	bookings, err := f.bookingsRepo.All(ctx)
	if err != nil {
		t.Fatalf("load bookings: %v", err)
	}
	if !bookings["2024-06-03"]["09:00"]["alice"].Paid {
		t.Fatalf("paid flag not set")
	}

	if err := f.booking.TogglePaid(ctx, "alice", "2024-06-03", "09:00"); err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	bookings, _ = f.bookingsRepo.All(ctx)
	if bookings["2024-06-03"]["09:00"]["alice"].Paid {
		t.Fatalf("paid flag not cleared")
	}

	if err := f.booking.TogglePaid(ctx, "nobody", "2024-06-03", "09:00"); !errors.Is(err, ErrNoSuchBooking) {
		t.Fatalf("expected ErrNoSuchBooking, got %v", err)
	}
}

func TestListForUserSortsChronologically(t *testing.T) {
	t.Parallel()
	f := newBookingFixture(t)
	f.seedBooking(t, "2024-06-05", "10:00", "alice", true)
	f.seedBooking(t, "2024-06-03", "11:00", "alice", false)
	f.seedBooking(t, "2024-06-03", "09:00", "alice", false)
	f.seedBooking(t, "2024-06-03", "10:00", "bob", false)

	mine, err := f.booking.ListForUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []models.UserBooking{
		{Date: "2024-06-03", Hour: "09:00", Paid: false},
		{Date: "2024-06-03", Hour: "11:00", Paid: false},
		{Date: "2024-06-05", Hour: "10:00", Paid: true},
	}
	if !reflect.DeepEqual(mine, want) {
		t.Fatalf("got %v, want %v", mine, want)
	}
}

func TestFreeSlotsOmitsFullAndEmptyDates(t *testing.T) {
	t.Parallel()
	f := newBookingFixture(t)
	f.setAvailability(t, "2024-06-03", "09:00", "12:00")
	f.setAvailability(t, "2024-06-04", "09:00", "10:00")

	// 09:00 on the 3rd is at capacity; the 4th is fully booked.
	f.seedBooking(t, "2024-06-03", "09:00", "alice", false)
	f.seedBooking(t, "2024-06-03", "09:00", "bob", false)
	f.seedBooking(t, "2024-06-04", "09:00", "alice", false)
	f.seedBooking(t, "2024-06-04", "09:00", "bob", false)

	free, err := f.booking.FreeSlots(context.Background())
	if err != nil {
		t.Fatalf("free slots: %v", err)
	}
	want := models.Availability{
		"2024-06-03": {"10:00", "11:00"},
	}
	if !reflect.DeepEqual(free, want) {
		t.Fatalf("got %v, want %v", free, want)
	}
}

func TestHistoryFilters(t *testing.T) {
	t.Parallel()
	f := newBookingFixture(t)
	ctx := context.Background()

	err := f.usersRepo.Update(ctx, func(users models.Users) (models.Users, error) {
		users["alice"] = models.User{FirstName: "Alice", LastName: "Doe", Phone: "111", Category: "gold"}
		return users, nil
	})
	if err != nil {
		t.Fatalf("seed users: %v", err)
	}

	f.seedBooking(t, "2024-06-03", "09:00", "alice", false)
	f.seedBooking(t, "2024-06-05", "10:00", "alice", true)
	f.seedBooking(t, "2024-07-01", "09:00", "alice", false)
	f.seedBooking(t, "bad-date", "09:00", "alice", false) // corrupt row, must be skipped

	tests := []struct {
		name      string
		filter    string
		reference string
		wantDates []string
	}{
		{"none", FilterNone, "", []string{"2024-06-03", "2024-06-05", "2024-07-01"}},
		{"day", FilterDay, "2024-06-05", []string{"2024-06-05"}},
		// 2024-06-04 is a Tuesday; its Monday-start week runs 06-03 to 06-09.
		{"week", FilterWeek, "2024-06-04", []string{"2024-06-03", "2024-06-05"}},
		{"month", FilterMonth, "2024-06", []string{"2024-06-03", "2024-06-05"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entries, err := f.booking.History(ctx, tc.filter, tc.reference)
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			var dates []string
			for _, e := range entries {
				dates = append(dates, e.Date)
			}
			if !reflect.DeepEqual(dates, tc.wantDates) {
				t.Fatalf("got dates %v, want %v", dates, tc.wantDates)
			}
		})
	}

	entries, err := f.booking.History(ctx, FilterNone, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if entries[0].Name != "Alice Doe" || entries[0].Phone != "111" || entries[0].Category != "gold" {
		t.Fatalf("profile fields not joined: %+v", entries[0])
	}

	if _, err := f.booking.History(ctx, "fortnight", "2024-06-04"); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
	if _, err := f.booking.History(ctx, FilterWeek, "junk"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestReserveNotifiesAdmins(t *testing.T) {
	t.Parallel()
	f := newBookingFixture(t)
	ctx := context.Background()
	f.setAvailability(t, "2024-06-03", "09:00", "12:00")

	err := f.usersRepo.Update(ctx, func(users models.Users) (models.Users, error) {
		users["root"] = models.User{Email: "admin@example.com", Admin: true, Confirmed: true}
		return users, nil
	})
	if err != nil {
		t.Fatalf("seed users: %v", err)
	}

	if err := f.booking.Reserve(ctx, "alice", "2024-06-03", "09:00"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Dispatch is fire-and-forget; give the goroutine a moment.
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.notifier.mu.Lock()
		n := len(f.notifier.sent)
		f.notifier.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("admin notification not sent")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
