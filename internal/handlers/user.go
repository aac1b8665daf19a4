package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"booking-backend/internal/middleware"
	"booking-backend/internal/services"
)

// UserHandler handles registration, authentication and profile requests.
type UserHandler struct {
	users *services.UserService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// Register handles POST /auth/register.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.users.Register(r.Context(), in); err != nil {
		respondServiceError(w, err)
		return
	}

	log.Info().Str("username", in.Username).Msg("User registered")
	respondJSON(w, map[string]string{
		"message": "Registration successful, check your inbox to confirm your account",
	}, http.StatusCreated)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

// Login handles POST /auth/login.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ident, session, err := h.users.Authenticate(r.Context(), in.Username, in.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Info().Str("username", ident.Username).Bool("admin", ident.Admin).Msg("User logged in")
	respondJSON(w, loginResponse{Token: session, Username: ident.Username, Admin: ident.Admin}, http.StatusOK)
}

// ConfirmEmail handles GET /auth/confirm?token=...
func (h *UserHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		respondError(w, "Missing token", http.StatusBadRequest)
		return
	}

	if err := h.users.ConfirmEmail(r.Context(), tok); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]string{"message": "Account confirmed, you can now log in"}, http.StatusOK)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword handles POST /auth/forgot-password. The response is
// identical whether or not the email is registered.
func (h *UserHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.users.RequestPasswordReset(r.Context(), in.Email); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]string{
		"message": "If the email is registered, a reset link has been sent",
	}, http.StatusOK)
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword handles POST /auth/reset-password.
func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.users.ResetPassword(r.Context(), in.Token, in.Password); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]string{"message": "Password updated, you can now log in"}, http.StatusOK)
}

type profileResponse struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Category  string `json:"category"`
	Address   string `json:"address,omitempty"`
	Admin     bool   `json:"admin"`
}

// GetProfile handles GET /api/v1/profile.
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ident, _ := middleware.GetIdentity(r.Context())

	u, err := h.users.Profile(r.Context(), ident.Username)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, profileResponse{
		Username:  ident.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		Email:     u.Email,
		Category:  u.Category,
		Address:   u.Address,
		Admin:     u.Admin,
	}, http.StatusOK)
}

// UpdateProfile handles PUT /api/v1/profile.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ident, _ := middleware.GetIdentity(r.Context())

	var in services.ProfileInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.users.UpdateProfile(r.Context(), ident.Username, in); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]string{"message": "Profile updated"}, http.StatusOK)
}
