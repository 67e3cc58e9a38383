package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
)

// =========================================================================
// FAKES
// =========================================================================
//
// Hand-written in-memory implementations of the repository and collaborator
// interfaces. Each fake returns copies so a test can't mutate stored state
// by accident, and exposes an err field to simulate a store failure.

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User // keyed by email
	nextID int64
	err    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.users[user.Email]; ok {
		return apperror.Conflict("user", user.Email)
	}
	f.nextID++
	user.ID = f.nextID
	stored := *user
	f.users[user.Email] = &stored
	return nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[email]
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	result := *u
	return &result, nil
}

func (f *fakeUserRepo) MarkVerified(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return apperror.NotFound("user", email)
	}
	u.IsVerified = true
	return nil
}

func (f *fakeUserRepo) SetAvatar(_ context.Context, userID int64, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == userID {
			u.AvatarURL = &url
			return nil
		}
	}
	return apperror.NotFound("user", userID)
}

type fakeContactRepo struct {
	contacts map[int64]*model.Contact
	order    []int64
	nextID   int64
	err      error
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{contacts: make(map[int64]*model.Contact)}
}

func (f *fakeContactRepo) Create(_ context.Context, c *model.Contact) error {
	if f.err != nil {
		return f.err
	}
	f.nextID++
	c.ID = f.nextID
	stored := *c
	f.contacts[c.ID] = &stored
	f.order = append(f.order, c.ID)
	return nil
}

func (f *fakeContactRepo) owned(ownerID, id int64) (*model.Contact, error) {
	c, ok := f.contacts[id]
	if !ok || c.OwnerID != ownerID {
		return nil, apperror.NotFound("contact", id)
	}
	return c, nil
}

func (f *fakeContactRepo) GetByID(_ context.Context, ownerID, id int64) (*model.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, err := f.owned(ownerID, id)
	if err != nil {
		return nil, err
	}
	result := *c
	return &result, nil
}

func (f *fakeContactRepo) filter(ownerID int64, keep func(model.Contact) bool) []model.Contact {
	result := []model.Contact{}
	for _, id := range f.order {
		c, ok := f.contacts[id]
		if ok && c.OwnerID == ownerID && keep(*c) {
			result = append(result, *c)
		}
	}
	return result
}

func (f *fakeContactRepo) List(_ context.Context, ownerID int64) ([]model.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.filter(ownerID, func(model.Contact) bool { return true }), nil
}

func (f *fakeContactRepo) Update(_ context.Context, ownerID, id int64, patch model.ContactPatch) (*model.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, err := f.owned(ownerID, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(c)
	result := *c
	return &result, nil
}

func (f *fakeContactRepo) Delete(_ context.Context, ownerID, id int64) error {
	if f.err != nil {
		return f.err
	}
	if _, err := f.owned(ownerID, id); err != nil {
		return err
	}
	delete(f.contacts, id)
	return nil
}

func (f *fakeContactRepo) Search(_ context.Context, ownerID int64, query string) ([]model.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	q := strings.ToLower(query)
	return f.filter(ownerID, func(c model.Contact) bool {
		return strings.Contains(strings.ToLower(c.FirstName), q) ||
			strings.Contains(strings.ToLower(c.LastName), q) ||
			strings.Contains(strings.ToLower(c.Email), q)
	}), nil
}

func (f *fakeContactRepo) ListWithBirthday(_ context.Context, ownerID int64) ([]model.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.filter(ownerID, func(c model.Contact) bool { return c.Birthday != nil }), nil
}

// fakeNotifier records the links it was asked to send.
type fakeNotifier struct {
	mu   sync.Mutex
	sent map[string]string // email → link
	err  error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[string]string)}
}

func (n *fakeNotifier) SendVerification(_ context.Context, email, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent[email] = link
	return nil
}

// fakeUploader records the last upload and returns a fixed URL.
type fakeUploader struct {
	key  string
	body string
	err  error
}

func (u *fakeUploader) Upload(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	u.key = key
	u.body = string(data)
	return "http://images.test/" + key, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func ptr[T any](v T) *T { return &v }

func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}
