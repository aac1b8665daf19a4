package models

import "strings"

// Identity is the authenticated caller passed into ledger operations.
// The HTTP layer fills it from the session token; services trust it.
type Identity struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

// User is a stored profile. Usernames are the primary key of the users
// document; email uniqueness is not enforced.
type User struct {
	PasswordHash string `json:"password"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Category     string `json:"category"`
	Address      string `json:"address,omitempty"`
	Admin        bool   `json:"is_admin"`
	Confirmed    bool   `json:"confirmed"`
}

// FullName returns the display name used in agenda and history views.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Users is the users document: username -> profile.
type Users map[string]User

// Seat is the per-user metadata stored under a booked slot.
type Seat struct {
	Paid bool `json:"paid"`
}

// Bookings is the bookings document: date -> hour -> username -> seat.
// A (date, hour) pair exists only while at least one username occupies it.
type Bookings map[string]map[string]map[string]Seat

// Availability is the availability document: date -> ordered hour strings.
type Availability map[string][]string

// UserBooking is one entry of a user's own booking list.
type UserBooking struct {
	Date string `json:"date"`
	Hour string `json:"hour"`
	Paid bool   `json:"paid"`
}

// HistoryEntry is one flattened booking joined with profile fields.
type HistoryEntry struct {
	Date     string `json:"date"`
	Hour     string `json:"hour"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Category string `json:"category"`
	Paid     bool   `json:"paid"`
}

// AgendaSeat is one occupant of a slot in the admin agenda view.
type AgendaSeat struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Category string `json:"category"`
	Paid     bool   `json:"paid"`
}
