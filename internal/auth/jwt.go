// Package auth provides password hashing, JWT issuing/validation and the
// bearer-token middleware that protects the API.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. POST /auth/login with email + password
//  2. The service verifies the bcrypt hash and issues a signed access token
//  3. The client sends it back as "Authorization: Bearer <token>"
//  4. RequireAuth validates the token, loads the user named in the "sub"
//     claim and puts it in the request context
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"a@x.com","aud":["access"],"exp":1234567890,...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// Issuer and verifier are the same process, so a symmetric secret is enough.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const (
	issuer = "contacts-api"

	// Audiences keep the two token kinds apart: an access token cannot be
	// used to verify an email address, and a verification link cannot be
	// used as a bearer token.
	audienceAccess       = "access"
	audienceVerification = "email-verification"

	// DefaultAccessTTL is used when NewTokenService is given a zero TTL.
	DefaultAccessTTL = 30 * time.Minute
	// VerificationTTL bounds how long an emailed verification link works.
	VerificationTTL = 24 * time.Hour
)

// ErrInvalidToken is wrapped by every validation failure: bad signature,
// malformed input, expiry, wrong issuer/audience or a missing subject.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret used to sign and verify tokens. The secret comes
// from the immutable server configuration; rotating it invalidates every
// outstanding token.
type TokenService struct {
	secret    []byte
	accessTTL time.Duration
}

// NewTokenService creates a TokenService with the given secret and access
// token lifetime. The secret should be at least 32 bytes of random data in
// production: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, accessTTL time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	return &TokenService{secret: []byte(secret), accessTTL: accessTTL}, nil
}

// claims is the JWT payload. "sub" holds the user's email, the login
// identifier the Session Authenticator looks users up by.
type claims struct {
	jwt.RegisteredClaims
}

// Generate creates a signed access token for the given email.
func (s *TokenService) Generate(email string) (string, error) {
	return s.GenerateWithDuration(email, s.accessTTL)
}

// GenerateWithDuration creates an access token with a custom lifetime.
// Used in tests to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(email string, d time.Duration) (string, error) {
	return s.sign(email, audienceAccess, "", d)
}

// GenerateVerification creates the token embedded in the email verification
// link. It carries a random jti so two links for the same address differ.
func (s *TokenService) GenerateVerification(email string) (string, error) {
	return s.sign(email, audienceVerification, xid.New().String(), VerificationTTL)
}

func (s *TokenService) sign(subject, audience, id string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies an access token and returns the email stored
// in its "sub" claim.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired (and has an expiry at all)
//   - Issuer is "contacts-api" and audience is "access"
//   - Algorithm is HS256 (prevents algorithm confusion attacks, e.g. "none")
func (s *TokenService) Validate(tokenStr string) (string, error) {
	return s.validate(tokenStr, audienceAccess)
}

// ValidateVerification is Validate for email verification tokens.
func (s *TokenService) ValidateVerification(tokenStr string) (string, error) {
	return s.validate(tokenStr, audienceVerification)
}

func (s *TokenService) validate(tokenStr, audience string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token expired", ErrInvalidToken)
		}
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}

	if c.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	return c.Subject, nil
}
