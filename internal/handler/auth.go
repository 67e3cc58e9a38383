package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/service"
)

// AuthService is what the auth and user handlers need from
// service.AuthService.
type AuthService interface {
	Signup(ctx context.Context, email, password string) (*model.User, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	VerifyEmail(ctx context.Context, token string) (*service.VerifyResult, error)
	UpdateAvatar(ctx context.Context, user *model.User, r io.Reader, contentType string) (*model.User, error)
}

// AuthHandler serves the unauthenticated /auth routes:
//   - POST /auth/signup
//   - POST /auth/login
//   - GET  /auth/verify-email?token=...
type AuthHandler struct {
	svc    AuthService
	logger *slog.Logger
}

func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// credentials is the body of signup and login.
type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignup registers a user.
//
// HTTP: POST /auth/signup
// Body: {"email": "a@x.com", "password": "..."}
// 201 with the user (never the password hash); 409 if the email is taken.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.svc.Signup(r.Context(), body.Email, body.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin exchanges credentials for an access token.
//
// HTTP: POST /auth/login
// 200 {"access_token": "...", "token_type": "bearer"}; 401 otherwise.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.svc.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleVerifyEmail consumes the link sent at signup.
//
// HTTP: GET /auth/verify-email?token=...
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	msg := "Email verified"
	if result.AlreadyVerified {
		msg = "Email already verified"
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}
