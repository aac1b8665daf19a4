package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"booking-backend/internal/email"
	"booking-backend/internal/models"
	"booking-backend/internal/repository"
	"booking-backend/internal/token"
)

var (
	// ErrMissingFields is returned when a required field is empty.
	ErrMissingFields = errors.New("required fields must not be empty")
	// ErrInvalidEmail is returned for an email that does not look valid.
	ErrInvalidEmail = errors.New("email address does not look valid")
	// ErrUserExists is returned when the username is already taken.
	ErrUserExists = errors.New("username already exists")
	// ErrInvalidCredentials is returned for a bad username or password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrNotConfirmed is returned when logging in before confirming the
	// email address.
	ErrNotConfirmed = errors.New("email address not confirmed yet")
	// ErrAlreadyConfirmed is returned when a confirmation token is used
	// on an account that is already confirmed.
	ErrAlreadyConfirmed = errors.New("account already confirmed")
	// ErrUserNotFound is returned when no account matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidSession is returned for a bad or expired session token.
	ErrInvalidSession = errors.New("invalid session")
)

var emailPattern = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

// UserService handles registration, authentication and profile flows.
type UserService struct {
	users         *repository.UsersRepository
	codec         *token.Codec
	notifier      email.Notifier
	sessionSecret []byte
	sessionTTL    time.Duration
	adminCode     string
	baseURL       string
}

// NewUserService creates a new user service. adminCode may be empty, in
// which case registering as admin is disabled. baseURL is the external
// address used in confirmation and reset links.
func NewUserService(
	users *repository.UsersRepository,
	codec *token.Codec,
	notifier email.Notifier,
	sessionSecret string,
	sessionTTL time.Duration,
	adminCode string,
	baseURL string,
) *UserService {
	return &UserService{
		users:         users,
		codec:         codec,
		notifier:      notifier,
		sessionSecret: []byte(sessionSecret),
		sessionTTL:    sessionTTL,
		adminCode:     adminCode,
		baseURL:       baseURL,
	}
}

// RegisterInput carries the registration form fields.
type RegisterInput struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Category  string `json:"category"`
	AdminCode string `json:"admin_code,omitempty"`
}

// Register creates an unconfirmed account and sends the confirmation
// link. The mail is dispatched in the background; a delivery failure is
// logged and the registration stands.
func (s *UserService) Register(ctx context.Context, in RegisterInput) error {
	if in.Username == "" || in.Password == "" || in.FirstName == "" ||
		in.LastName == "" || in.Phone == "" || in.Category == "" {
		return ErrMissingFields
	}
	if !emailPattern.MatchString(in.Email) {
		return ErrInvalidEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	admin := s.adminCode != "" && in.AdminCode == s.adminCode

	err = s.users.Update(ctx, func(users models.Users) (models.Users, error) {
		if _, ok := users[in.Username]; ok {
			return nil, ErrUserExists
		}
		users[in.Username] = models.User{
			PasswordHash: string(hash),
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			Phone:        in.Phone,
			Email:        in.Email,
			Category:     in.Category,
			Admin:        admin,
			Confirmed:    false,
		}
		return users, nil
	})
	if err != nil {
		return err
	}

	confirmToken, err := s.codec.Issue(in.Email)
	if err != nil {
		return fmt.Errorf("failed to issue confirmation token: %w", err)
	}
	link := fmt.Sprintf("%s/auth/confirm?token=%s", s.baseURL, confirmToken)
	body := fmt.Sprintf(
		"Hello %s,\n\nThanks for registering. To confirm your account, open the following link:\n\n%s\n\nThe link is valid for 1 hour.\n",
		in.FirstName, link,
	)
	go func() {
		if err := s.notifier.Notify(context.Background(), in.Email, "Confirm your registration", body); err != nil {
			log.Warn().Err(err).Str("email", in.Email).Msg("Failed to send confirmation mail")
		}
	}()
	return nil
}

// Authenticate checks credentials and returns the caller identity plus
// a session token. Unconfirmed accounts cannot log in.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (models.Identity, string, error) {
	u, ok, err := s.users.Get(ctx, username)
	if err != nil {
		return models.Identity{}, "", err
	}
	if !ok {
		return models.Identity{}, "", ErrInvalidCredentials
	}
	if !u.Confirmed {
		return models.Identity{}, "", ErrNotConfirmed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return models.Identity{}, "", ErrInvalidCredentials
	}

	ident := models.Identity{Username: username, Admin: u.Admin}
	session, err := s.sessionToken(ident)
	if err != nil {
		return models.Identity{}, "", err
	}
	return ident, session, nil
}

// ConfirmEmail flips the confirmed flag of the first account matching
// the email embedded in the token. The flag flips exactly once; a
// second use reports ErrAlreadyConfirmed.
func (s *UserService) ConfirmEmail(ctx context.Context, confirmToken string) error {
	addr, err := s.codec.Verify(confirmToken, token.DefaultMaxAge)
	if err != nil {
		return err
	}

	return s.users.Update(ctx, func(users models.Users) (models.Users, error) {
		username, ok := firstByEmail(users, addr)
		if !ok {
			return nil, ErrUserNotFound
		}
		u := users[username]
		if u.Confirmed {
			return nil, ErrAlreadyConfirmed
		}
		u.Confirmed = true
		users[username] = u
		return users, nil
	})
}

// RequestPasswordReset sends a reset link when the email matches an
// account. It always reports success so callers cannot probe which
// emails are registered.
func (s *UserService) RequestPasswordReset(ctx context.Context, addr string) error {
	users, err := s.users.All(ctx)
	if err != nil {
		return err
	}
	if _, ok := firstByEmail(users, addr); !ok {
		return nil
	}

	resetToken, err := s.codec.Issue(addr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to issue password reset token")
		return nil
	}
	link := fmt.Sprintf("%s/auth/reset-password?token=%s", s.baseURL, resetToken)
	body := fmt.Sprintf(
		"Hello,\n\nA password reset was requested for your account.\n\nTo choose a new password, open the following link:\n\n%s\n\nThe link expires in 1 hour. If you did not request this, ignore this message.\n",
		link,
	)
	go func() {
		if err := s.notifier.Notify(context.Background(), addr, "Reset your password", body); err != nil {
			log.Warn().Err(err).Str("email", addr).Msg("Failed to send password reset mail")
		}
	}()
	return nil
}

// ResetPassword sets a new password for the first account matching the
// email embedded in the token.
func (s *UserService) ResetPassword(ctx context.Context, resetToken, password string) error {
	addr, err := s.codec.Verify(resetToken, token.DefaultMaxAge)
	if err != nil {
		return err
	}
	if password == "" {
		return ErrMissingFields
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.users.Update(ctx, func(users models.Users) (models.Users, error) {
		username, ok := firstByEmail(users, addr)
		if !ok {
			return nil, ErrUserNotFound
		}
		u := users[username]
		u.PasswordHash = string(hash)
		users[username] = u
		return users, nil
	})
}

// Profile returns the stored profile of username.
func (s *UserService) Profile(ctx context.Context, username string) (models.User, error) {
	u, ok, err := s.users.Get(ctx, username)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return u, nil
}

// ProfileInput carries the self-service profile edit fields.
type ProfileInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Category  string `json:"category"`
	Address   string `json:"address"`
}

// UpdateProfile replaces the editable profile fields of username.
func (s *UserService) UpdateProfile(ctx context.Context, username string, in ProfileInput) error {
	if in.FirstName == "" || in.LastName == "" || in.Phone == "" || in.Category == "" {
		return ErrMissingFields
	}

	return s.users.Update(ctx, func(users models.Users) (models.Users, error) {
		u, ok := users[username]
		if !ok {
			return nil, ErrUserNotFound
		}
		u.FirstName = in.FirstName
		u.LastName = in.LastName
		u.Phone = in.Phone
		u.Email = in.Email
		u.Category = in.Category
		u.Address = in.Address
		users[username] = u
		return users, nil
	})
}

// CreateAdmin creates or updates an admin account. Used by the
// bootstrap CLI; the account is confirmed immediately so it can log in
// without a mail round trip.
func (s *UserService) CreateAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return ErrMissingFields
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.users.Update(ctx, func(users models.Users) (models.Users, error) {
		u := users[username]
		u.PasswordHash = string(hash)
		u.Admin = true
		u.Confirmed = true
		users[username] = u
		return users, nil
	})
}

// sessionToken mints a signed session token carrying the identity.
func (s *UserService) sessionToken(ident models.Identity) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   ident.Username,
		"admin": ident.Admin,
		"iat":   now.Unix(),
		"exp":   now.Add(s.sessionTTL).Unix(),
		"jti":   uuid.NewString(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.sessionSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ValidateSession parses a session token back into an identity.
func (s *UserService) ValidateSession(raw string) (models.Identity, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.sessionSecret, nil
	})
	if err != nil || !tok.Valid {
		return models.Identity{}, ErrInvalidSession
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, ErrInvalidSession
	}
	username, ok := claims["sub"].(string)
	if !ok || username == "" {
		return models.Identity{}, ErrInvalidSession
	}
	admin, _ := claims["admin"].(bool)
	return models.Identity{Username: username, Admin: admin}, nil
}

// firstByEmail returns the first username whose profile carries addr,
// scanning in sorted order so repeated calls pick the same account when
// several share an email.
func firstByEmail(users models.Users, addr string) (string, bool) {
	usernames := make([]string, 0, len(users))
	for username := range users {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)
	for _, username := range usernames {
		if users[username].Email == addr {
			return username, true
		}
	}
	return "", false
}
