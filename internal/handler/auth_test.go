package handler_test

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/handler"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/service"
	"github.com/sakif/contacts-api/internal/storage"
)

type MockAuthService struct {
	Email, Password, Token string
	AvatarBytes            []byte
	AvatarType             string

	User         *model.User
	LoginResult  *service.LoginResult
	VerifyResult *service.VerifyResult
	Err          error
}

func (m *MockAuthService) Signup(_ context.Context, email, password string) (*model.User, error) {
	m.Email, m.Password = email, password
	return m.User, m.Err
}

func (m *MockAuthService) Login(_ context.Context, email, password string) (*service.LoginResult, error) {
	m.Email, m.Password = email, password
	return m.LoginResult, m.Err
}

func (m *MockAuthService) VerifyEmail(_ context.Context, token string) (*service.VerifyResult, error) {
	m.Token = token
	return m.VerifyResult, m.Err
}

func (m *MockAuthService) UpdateAvatar(_ context.Context, user *model.User, r io.Reader, contentType string) (*model.User, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.AvatarBytes, m.AvatarType = data, contentType
	return m.User, m.Err
}

func authRouter(svc handler.AuthService, user *model.User) http.Handler {
	ah := handler.NewAuthHandler(svc, testLogger())
	uh := handler.NewUserHandler(svc, testLogger())

	r := chi.NewRouter()
	r.Post("/auth/signup", ah.HandleSignup)
	r.Post("/auth/login", ah.HandleLogin)
	r.Get("/auth/verify-email", ah.HandleVerifyEmail)
	r.Group(func(r chi.Router) {
		if user != nil {
			r.Use(asUser(user))
		}
		r.Get("/users/me", uh.HandleMe)
		r.Post("/users/avatar", uh.HandleAvatar)
	})
	return r
}

func TestAuthHandler_Signup(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := &MockAuthService{User: &model.User{ID: 1, Email: "a@x.com", PasswordHash: "$2a$secret"}}

		rr := serve(authRouter(svc, nil), http.MethodPost, "/auth/signup", `{"email":"a@x.com","password":"pw123"}`)

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, "a@x.com", svc.Email)
		assert.Equal(t, "pw123", svc.Password)
		assert.JSONEq(t, `{"id":1,"email":"a@x.com","is_verified":false,"avatar_url":null,"created_at":"0001-01-01T00:00:00Z","updated_at":"0001-01-01T00:00:00Z"}`, rr.Body.String())
		assert.NotContains(t, rr.Body.String(), "secret")
	})

	t.Run("duplicate email", func(t *testing.T) {
		svc := &MockAuthService{Err: apperror.Conflict("user", "a@x.com")}

		rr := serve(authRouter(svc, nil), http.MethodPost, "/auth/signup", `{"email":"a@x.com","password":"pw123"}`)

		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "conflict", decodeError(t, rr).Error)
	})
}

func TestAuthHandler_Login(t *testing.T) {
	t.Run("token issued", func(t *testing.T) {
		svc := &MockAuthService{LoginResult: &service.LoginResult{AccessToken: "tok", TokenType: "bearer"}}

		rr := serve(authRouter(svc, nil), http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"pw123"}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"access_token":"tok","token_type":"bearer"}`, rr.Body.String())
	})

	t.Run("bad credentials", func(t *testing.T) {
		svc := &MockAuthService{Err: apperror.Unauthorized("Invalid email or password")}

		rr := serve(authRouter(svc, nil), http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"nope"}`)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
		assert.Equal(t, "Invalid email or password", decodeError(t, rr).Message)
	})
}

func TestAuthHandler_VerifyEmail(t *testing.T) {
	tests := []struct {
		name       string
		result     *service.VerifyResult
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "verified",
			result:     &service.VerifyResult{Email: "a@x.com"},
			wantStatus: http.StatusOK,
			wantBody:   `{"message":"Email verified"}`,
		},
		{
			name:       "already verified",
			result:     &service.VerifyResult{Email: "a@x.com", AlreadyVerified: true},
			wantStatus: http.StatusOK,
			wantBody:   `{"message":"Email already verified"}`,
		},
		{
			name:       "bad token",
			err:        apperror.ValidationFailed("token", "verification link is invalid or expired"),
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"validation_error","message":"verification link is invalid or expired"}`,
		},
		{
			name:       "unknown user",
			err:        apperror.NotFound("user", "a@x.com"),
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"not_found","message":"user not found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockAuthService{VerifyResult: tt.result, Err: tt.err}

			rr := serve(authRouter(svc, nil), http.MethodGet, "/auth/verify-email?token=abc.def", "")

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.JSONEq(t, tt.wantBody, rr.Body.String())
			assert.Equal(t, "abc.def", svc.Token)
		})
	}
}

func TestUserHandler_Me(t *testing.T) {
	rr := serve(authRouter(&MockAuthService{}, owner), http.MethodGet, "/users/me", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"email":"a@x.com"`)
}

func TestUserHandler_Me_NoUser(t *testing.T) {
	rr := serve(authRouter(&MockAuthService{}, nil), http.MethodGet, "/users/me", "")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
}

// multipartBody builds a request body with one file part.
func multipartBody(t *testing.T, field string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, "upload.bin")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func smallPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func postAvatar(t *testing.T, svc handler.AuthService, field string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, field, content)
	req := httptest.NewRequest(http.MethodPost, "/users/avatar", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	authRouter(svc, owner).ServeHTTP(rr, req)
	return rr
}

func TestUserHandler_Avatar(t *testing.T) {
	t.Run("uploaded", func(t *testing.T) {
		url := "http://img/avatars/7"
		svc := &MockAuthService{User: &model.User{ID: 7, Email: "a@x.com", AvatarURL: &url}}
		img := smallPNG(t)

		rr := postAvatar(t, svc, "file", img)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "image/png", svc.AvatarType, "type is sniffed from the bytes")
		assert.Equal(t, img, svc.AvatarBytes, "sniffed prefix is handed on with the rest")
		assert.Contains(t, rr.Body.String(), url)
	})

	t.Run("not an image", func(t *testing.T) {
		svc := &MockAuthService{}
		rr := postAvatar(t, svc, "file", []byte("just some text"))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Nil(t, svc.AvatarBytes, "service must not be called")
	})

	t.Run("missing file field", func(t *testing.T) {
		rr := postAvatar(t, &MockAuthService{}, "picture", smallPNG(t))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("too large", func(t *testing.T) {
		big := append(smallPNG(t), make([]byte, handler.MaxAvatarBytes)...)
		rr := postAvatar(t, &MockAuthService{}, "file", big)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		rr := serve(authRouter(&MockAuthService{}, owner), http.MethodPost, "/users/avatar", `{"file":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("storage not configured", func(t *testing.T) {
		rr := postAvatar(t, &MockAuthService{Err: storage.ErrDisabled}, "file", smallPNG(t))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}
