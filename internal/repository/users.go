package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"booking-backend/internal/models"
	"booking-backend/internal/store"
)

const usersDocument = "users"

// UsersRepository handles access to the users document.
type UsersRepository struct {
	store store.Store
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(s store.Store) *UsersRepository {
	return &UsersRepository{store: s}
}

// All returns the full users document.
func (r *UsersRepository) All(ctx context.Context) (models.Users, error) {
	users := models.Users{}
	if err := r.store.Load(ctx, usersDocument, &users); err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	return users, nil
}

// Get returns one profile and whether it exists.
func (r *UsersRepository) Get(ctx context.Context, username string) (models.User, bool, error) {
	users, err := r.All(ctx)
	if err != nil {
		return models.User{}, false, err
	}
	u, ok := users[username]
	return u, ok, nil
}

// AdminEmails returns the email addresses of all admin accounts that
// have one, in stable order.
func (r *UsersRepository) AdminEmails(ctx context.Context) ([]string, error) {
	users, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	var emails []string
	for _, u := range users {
		if u.Admin && u.Email != "" {
			emails = append(emails, u.Email)
		}
	}
	sort.Strings(emails)
	return emails, nil
}

// Update applies fn to the users document under its exclusive lock.
func (r *UsersRepository) Update(ctx context.Context, fn func(models.Users) (models.Users, error)) error {
	return r.store.Update(ctx, usersDocument, func(data []byte) ([]byte, error) {
		users := models.Users{}
		if err := json.Unmarshal(data, &users); err != nil {
			return nil, fmt.Errorf("failed to parse users: %w", err)
		}
		next, err := fn(users)
		if err != nil {
			return nil, err
		}
		out, err := json.MarshalIndent(next, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode users: %w", err)
		}
		return out, nil
	})
}
