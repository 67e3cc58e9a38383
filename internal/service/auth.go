// Package service contains the business logic layer of the application.
//
// Handlers parse HTTP and call into this package with plain values; the
// services validate input, enforce the rules and call the repositories. They
// return apperror values and never know about status codes.
//
//	Handler (HTTP) → Service (rules) → Repository (SQL)
//
// Every dependency is injected through an interface or a small concrete
// helper, so the tests in this package run against in-memory fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"net/url"
	"strconv"
	"strings"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/notify"
	"github.com/sakif/contacts-api/internal/repository"
	"github.com/sakif/contacts-api/internal/storage"
)

// MaxPasswordBytes mirrors bcrypt's input limit.
const MaxPasswordBytes = 72

// invalidCredentials is the single login failure message. Unknown email and
// wrong password are reported identically.
const invalidCredentials = "Invalid email or password"

// VerifyResult tells the caller whether verification changed anything.
type VerifyResult struct {
	Email           string
	AlreadyVerified bool
}

// LoginResult is the body of a successful login.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// AuthService handles signup, login, email verification, bearer-token
// resolution and the avatar of the signed-in user.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	uploader  storage.Uploader
	notifier  notify.Notifier
	baseURL   string
	logger    *slog.Logger
}

// AuthDeps groups the collaborators of AuthService.
type AuthDeps struct {
	Users     repository.UserRepository
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	Uploader  storage.Uploader
	Notifier  notify.Notifier
	// BaseURL is the public origin used to build verification links.
	BaseURL string
	Logger  *slog.Logger
}

// NewAuthService creates an AuthService. Call this in server.go when wiring
// the dependency graph.
func NewAuthService(deps AuthDeps) *AuthService {
	return &AuthService{
		users:     deps.Users,
		tokens:    deps.Tokens,
		passwords: deps.Passwords,
		uploader:  deps.Uploader,
		notifier:  deps.Notifier,
		baseURL:   strings.TrimSuffix(deps.BaseURL, "/"),
		logger:    deps.Logger,
	}
}

// compile-time check: the auth middleware can use AuthService directly.
var _ auth.Authenticator = (*AuthService)(nil)

// Signup registers a new, unverified user and sends the verification link.
//
// The email is stored exactly as given. A duplicate email fails with
// apperror.ErrConflict from the store's unique index. A failure to deliver
// the link is logged but does not undo the signup: the account exists and
// the caller gets 201.
func (s *AuthService) Signup(ctx context.Context, email, password string) (*model.User, error) {
	if err := validateEmail("email", email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}
	if len(password) > MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", MaxPasswordBytes))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user signed up", slog.Int64("userID", user.ID))

	if err := s.sendVerification(ctx, email); err != nil {
		s.logger.Error("sending verification email failed",
			slog.Int64("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}

	return user, nil
}

func (s *AuthService) sendVerification(ctx context.Context, email string) error {
	token, err := s.tokens.GenerateVerification(email)
	if err != nil {
		return fmt.Errorf("generating verification token: %w", err)
	}
	return s.notifier.SendVerification(ctx, email, s.VerificationLink(token))
}

// VerificationLink is <base>/auth/verify-email?token=<token>.
func (s *AuthService) VerificationLink(token string) string {
	return s.baseURL + "/auth/verify-email?" + url.Values{"token": {token}}.Encode()
}

// Login checks the credentials and issues an access token. Every failure,
// including an unknown email, is apperror.ErrUnauthorized with the same
// message.
//
// Unverified users may log in.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Info("login rejected", slog.Int64("userID", user.ID))
		return nil, apperror.Unauthorized(invalidCredentials)
	}

	token, err := s.tokens.Generate(user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %d: %w", user.ID, err)
	}

	return &LoginResult{AccessToken: token, TokenType: "bearer"}, nil
}

// VerifyEmail consumes a verification token. A token that is malformed,
// tampered or expired is a validation error; a valid token for an email
// with no account is not found.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*VerifyResult, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperror.ValidationFailed("token", "token is required")
	}

	email, err := s.tokens.ValidateVerification(token)
	if err != nil {
		return nil, apperror.ValidationFailed("token", "verification link is invalid or expired")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}
	if user.IsVerified {
		return &VerifyResult{Email: email, AlreadyVerified: true}, nil
	}

	if err := s.users.MarkVerified(ctx, email); err != nil {
		return nil, fmt.Errorf("service/auth: marking verified: %w", err)
	}

	s.logger.Info("email verified", slog.Int64("userID", user.ID))
	return &VerifyResult{Email: email}, nil
}

// Authenticate resolves an access token to its user. It implements
// auth.Authenticator; the middleware turns any error into a 401.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	email, err := s.tokens.Validate(token)
	if err != nil {
		return nil, apperror.Unauthorized("Could not validate credentials")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Could not validate credentials")
		}
		return nil, fmt.Errorf("service/auth: loading user: %w", err)
	}
	return user, nil
}

// UpdateAvatar stores the image as the user's avatar and returns the updated
// user. The object key is derived from the user id, so a new upload replaces
// the previous image.
func (s *AuthService) UpdateAvatar(ctx context.Context, user *model.User, r io.Reader, contentType string) (*model.User, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperror.ValidationFailed("file", "file must be an image")
	}

	avatarURL, err := s.uploader.Upload(ctx, AvatarKey(user.ID), r, contentType)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidImage) {
			return nil, apperror.ValidationFailed("file", "file is not a valid image")
		}
		return nil, fmt.Errorf("service/auth: uploading avatar: %w", err)
	}

	if err := s.users.SetAvatar(ctx, user.ID, avatarURL); err != nil {
		return nil, fmt.Errorf("service/auth: saving avatar url: %w", err)
	}

	updated := *user
	updated.AvatarURL = &avatarURL
	return &updated, nil
}

// AvatarKey is the object key of a user's avatar.
func AvatarKey(userID int64) string {
	return "avatars/" + strconv.FormatInt(userID, 10)
}

// validateEmail accepts a bare address ("a@x.com"), not a display-name form
// ("Ann <a@x.com>").
func validateEmail(field, email string) error {
	if strings.TrimSpace(email) == "" {
		return apperror.ValidationFailed(field, field+" is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperror.ValidationFailed(field, field+" is not a valid email address")
	}
	return nil
}
