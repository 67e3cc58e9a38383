package handler

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/storage"
)

// MaxAvatarBytes is the largest accepted avatar upload.
const MaxAvatarBytes = 5 << 20

// UserHandler serves the signed-in user's own profile:
//   - GET  /users/me
//   - POST /users/avatar (multipart, field "file")
//
// Both routes sit behind auth.RequireAuth.
type UserHandler struct {
	svc    AuthService
	logger *slog.Logger
}

func NewUserHandler(svc AuthService, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

// HandleMe returns the authenticated user.
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperror.Unauthorized("Could not validate credentials"))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleAvatar replaces the user's avatar with the uploaded image.
//
// The image type is sniffed from the first bytes of the file; the
// Content-Type the client declared for the part is ignored.
func (h *UserHandler) HandleAvatar(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperror.Unauthorized("Could not validate credentials"))
		return
	}

	// Leave room for the multipart framing around the file.
	r.Body = http.MaxBytesReader(w, r.Body, MaxAvatarBytes+64<<10)
	if err := r.ParseMultipartForm(MaxAvatarBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, h.logger, apperror.ValidationFailed("file", "file must be 5 MiB or smaller"))
			return
		}
		writeError(w, r, h.logger, apperror.ValidationFailed("file", "request must be multipart/form-data"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, h.logger, apperror.ValidationFailed("file", "file is required"))
		return
	}
	defer file.Close()

	if header.Size > MaxAvatarBytes {
		writeError(w, r, h.logger, apperror.ValidationFailed("file", "file must be 5 MiB or smaller"))
		return
	}

	sniff := make([]byte, 512)
	n, err := io.ReadFull(file, sniff)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeError(w, r, h.logger, err)
		return
	}
	sniff = sniff[:n]
	contentType := http.DetectContentType(sniff)
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, r, h.logger, apperror.ValidationFailed("file", "file must be an image"))
		return
	}

	updated, err := h.svc.UpdateAvatar(r.Context(), user, io.MultiReader(bytes.NewReader(sniff), file), contentType)
	if err != nil {
		if errors.Is(err, storage.ErrDisabled) {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
				Error:   "unavailable",
				Message: "Avatar uploads are not configured",
			})
			return
		}
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}
