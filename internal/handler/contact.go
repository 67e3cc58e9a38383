package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/model"
)

// ContactService is what ContactHandler needs from service.ContactService.
type ContactService interface {
	Create(ctx context.Context, ownerID int64, in model.ContactInput) (*model.Contact, error)
	Get(ctx context.Context, ownerID, id int64) (*model.Contact, error)
	List(ctx context.Context, ownerID int64) ([]model.Contact, error)
	Update(ctx context.Context, ownerID, id int64, patch model.ContactPatch) (*model.Contact, error)
	Delete(ctx context.Context, ownerID, id int64) error
	Search(ctx context.Context, ownerID int64, query string) ([]model.Contact, error)
	UpcomingBirthdays(ctx context.Context, ownerID int64) ([]model.Contact, error)
}

// ContactHandler serves /contacts. Every route sits behind auth.RequireAuth
// and acts on the authenticated user's address book only; an owner id in a
// request body is ignored (model.ContactInput has no such field).
type ContactHandler struct {
	svc    ContactService
	logger *slog.Logger
}

func NewContactHandler(svc ContactService, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{svc: svc, logger: logger}
}

// owner returns the authenticated user's id, or writes a 401.
func (h *ContactHandler) owner(w http.ResponseWriter, r *http.Request) (int64, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperror.Unauthorized("Could not validate credentials"))
		return 0, false
	}
	return user.ID, true
}

// HandleCreate: POST /contacts → 201.
func (h *ContactHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	var in model.ContactInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	c, err := h.svc.Create(r.Context(), ownerID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleList: GET /contacts.
func (h *ContactHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	contacts, err := h.svc.List(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

// HandleGet: GET /contacts/{id}.
func (h *ContactHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "contact")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	c, err := h.svc.Get(r.Context(), ownerID, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleUpdate: PUT /contacts/{id}. Only the keys present in the body
// change; "birthday": null and "extra_info": null clear those fields.
func (h *ContactHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "contact")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var patch model.ContactPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	c, err := h.svc.Update(r.Context(), ownerID, id, patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleDelete: DELETE /contacts/{id} → 204.
func (h *ContactHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "contact")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.svc.Delete(r.Context(), ownerID, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSearch: GET /contacts/search?query=...
//
// The query parameter must be present; an empty value lists everything.
func (h *ContactHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	params := r.URL.Query()
	if !params.Has("query") {
		writeError(w, r, h.logger, apperror.ValidationFailed("query", "query is required"))
		return
	}

	contacts, err := h.svc.Search(r.Context(), ownerID, params.Get("query"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

// HandleUpcomingBirthdays: GET /contacts/upcoming-birthdays.
func (h *ContactHandler) HandleUpcomingBirthdays(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	contacts, err := h.svc.UpcomingBirthdays(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}
