package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

// Validation limits, in characters.
const (
	MaxNameLength      = 100
	MaxPhoneLength     = 100
	MaxExtraInfoLength = 1000

	// BirthdayWindowDays is how far ahead UpcomingBirthdays looks.
	BirthdayWindowDays = 7
)

// ContactService handles the address-book operations of one authenticated
// owner.
//
// Every method takes the owner's user id first. It always comes from the
// session (auth.UserFromContext), never from the request body, and the
// repository folds it into every query.
type ContactService struct {
	repo   repository.ContactRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewContactService(repo repository.ContactRepository, logger *slog.Logger) *ContactService {
	return &ContactService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Create validates and saves a new contact owned by ownerID.
func (s *ContactService) Create(ctx context.Context, ownerID int64, in model.ContactInput) (*model.Contact, error) {
	c := &model.Contact{
		OwnerID:   ownerID,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		Birthday:  in.Birthday,
		ExtraInfo: in.ExtraInfo,
	}
	if err := validateContact(c); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("service/contact: creating contact: %w", err)
	}

	s.logger.Info("contact created",
		slog.Int64("ownerID", ownerID),
		slog.Int64("contactID", c.ID),
	)
	return c, nil
}

// Get returns one contact. Someone else's contact is apperror.ErrNotFound.
func (s *ContactService) Get(ctx context.Context, ownerID, id int64) (*model.Contact, error) {
	c, err := s.repo.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("service/contact: getting contact %d: %w", id, err)
	}
	return c, nil
}

// List returns all of the owner's contacts in insertion order.
func (s *ContactService) List(ctx context.Context, ownerID int64) ([]model.Contact, error) {
	contacts, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service/contact: listing contacts: %w", err)
	}
	return contacts, nil
}

// Update applies the fields present in patch. An empty patch changes
// nothing and returns the stored contact.
func (s *ContactService) Update(ctx context.Context, ownerID, id int64, patch model.ContactPatch) (*model.Contact, error) {
	patch = trimPatch(patch)
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	if patch.Empty() {
		return s.Get(ctx, ownerID, id)
	}

	c, err := s.repo.Update(ctx, ownerID, id, patch)
	if err != nil {
		return nil, fmt.Errorf("service/contact: updating contact %d: %w", id, err)
	}

	s.logger.Info("contact updated",
		slog.Int64("ownerID", ownerID),
		slog.Int64("contactID", id),
	)
	return c, nil
}

// Delete removes a contact. Deleting it a second time is apperror.ErrNotFound.
func (s *ContactService) Delete(ctx context.Context, ownerID, id int64) error {
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("service/contact: deleting contact %d: %w", id, err)
	}

	s.logger.Info("contact deleted",
		slog.Int64("ownerID", ownerID),
		slog.Int64("contactID", id),
	)
	return nil
}

// Search returns the owner's contacts whose first name, last name or email
// contains query, ignoring case. A blank query is a substring of everything,
// so it returns all of the owner's contacts.
func (s *ContactService) Search(ctx context.Context, ownerID int64, query string) ([]model.Contact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.List(ctx, ownerID)
	}

	contacts, err := s.repo.Search(ctx, ownerID, query)
	if err != nil {
		return nil, fmt.Errorf("service/contact: searching contacts: %w", err)
	}
	return contacts, nil
}

// UpcomingBirthdays returns the owner's contacts whose next birthday falls
// between today and BirthdayWindowDays days from now, both inclusive,
// soonest first.
//
// The window is computed on calendar dates, so it crosses month and year
// ends. A Feb 29 birthday is celebrated on Mar 1 in non-leap years.
func (s *ContactService) UpcomingBirthdays(ctx context.Context, ownerID int64) ([]model.Contact, error) {
	contacts, err := s.repo.ListWithBirthday(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service/contact: listing birthdays: %w", err)
	}

	today := model.DateOf(s.now())
	last := today.AddDays(BirthdayWindowDays)

	type upcoming struct {
		contact model.Contact
		next    model.Date
	}
	var hits []upcoming
	for _, c := range contacts {
		if c.Birthday == nil {
			continue
		}
		next := nextBirthday(*c.Birthday, today)
		if next.After(last.Time) {
			continue
		}
		hits = append(hits, upcoming{contact: c, next: next})
	}

	// Stable, so contacts sharing a date keep insertion order.
	slices.SortStableFunc(hits, func(a, b upcoming) int {
		return a.next.Compare(b.next.Time)
	})

	result := make([]model.Contact, 0, len(hits))
	for _, h := range hits {
		result = append(result, h.contact)
	}
	return result, nil
}

// nextBirthday returns the first anniversary of birthday on or after today.
func nextBirthday(birthday, today model.Date) model.Date {
	// NewDate rolls Feb 29 over to Mar 1 in non-leap years.
	d := model.NewDate(today.Year(), birthday.Month(), birthday.Day())
	if d.Before(today.Time) {
		d = model.NewDate(today.Year()+1, birthday.Month(), birthday.Day())
	}
	return d
}

func validateContact(c *model.Contact) error {
	if err := requiredText("first_name", c.FirstName, MaxNameLength); err != nil {
		return err
	}
	if err := requiredText("last_name", c.LastName, MaxNameLength); err != nil {
		return err
	}
	if err := validateEmail("email", c.Email); err != nil {
		return err
	}
	if err := requiredText("phone", c.Phone, MaxPhoneLength); err != nil {
		return err
	}
	return validateExtraInfo(c.ExtraInfo)
}

func validatePatch(p model.ContactPatch) error {
	if p.FirstName != nil {
		if err := requiredText("first_name", *p.FirstName, MaxNameLength); err != nil {
			return err
		}
	}
	if p.LastName != nil {
		if err := requiredText("last_name", *p.LastName, MaxNameLength); err != nil {
			return err
		}
	}
	if p.Email != nil {
		if err := validateEmail("email", *p.Email); err != nil {
			return err
		}
	}
	if p.Phone != nil {
		if err := requiredText("phone", *p.Phone, MaxPhoneLength); err != nil {
			return err
		}
	}
	return validateExtraInfo(p.ExtraInfo.Value)
}

func trimPatch(p model.ContactPatch) model.ContactPatch {
	for _, f := range []**string{&p.FirstName, &p.LastName, &p.Email, &p.Phone} {
		if *f != nil {
			v := strings.TrimSpace(**f)
			*f = &v
		}
	}
	return p
}

func requiredText(field, value string, maxLen int) error {
	if value == "" {
		return apperror.ValidationFailed(field, field+" is required")
	}
	if utf8.RuneCountInString(value) > maxLen {
		return apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be %d characters or fewer", field, maxLen))
	}
	return nil
}

func validateExtraInfo(info *string) error {
	if info != nil && utf8.RuneCountInString(*info) > MaxExtraInfoLength {
		return apperror.ValidationFailed("extra_info",
			fmt.Sprintf("extra_info must be %d characters or fewer", MaxExtraInfoLength))
	}
	return nil
}
