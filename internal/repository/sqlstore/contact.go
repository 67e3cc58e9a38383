package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

var _ repository.ContactRepository = (*ContactStore)(nil)

const contactColumns = `id, owner_id, first_name, last_name, email, phone, birthday, extra_info, created_at, updated_at`

// ownerScope is the only way this file touches the contacts table once a
// row exists. Every statement it builds starts its WHERE clause with
// "owner_id = ?", bound to the scope's owner, so no query can forget the
// ownership filter.
//
// q is either the pool or a transaction.
type ownerScope struct {
	q       sqlx.ExtContext
	ownerID int64
}

func contactsOf(q sqlx.ExtContext, ownerID int64) ownerScope {
	return ownerScope{q: q, ownerID: ownerID}
}

// where prefixes cond (which may be empty) with the owner predicate and
// returns the matching argument list.
func (s ownerScope) where(cond string, args ...any) (string, []any) {
	clause := ` WHERE owner_id = ?`
	if cond != "" {
		clause += ` AND (` + cond + `)`
	}
	return clause, append([]any{s.ownerID}, args...)
}

// list runs SELECT over the owner's contacts, in insertion order.
func (s ownerScope) list(ctx context.Context, cond string, args ...any) ([]model.Contact, error) {
	clause, all := s.where(cond, args...)
	query := s.q.Rebind(`SELECT ` + contactColumns + ` FROM contacts` + clause + ` ORDER BY id`)

	contacts := []model.Contact{}
	if err := sqlx.SelectContext(ctx, s.q, &contacts, query, all...); err != nil {
		return nil, err
	}
	return contacts, nil
}

// get loads one contact. suffix is appended verbatim (e.g. " FOR UPDATE").
func (s ownerScope) get(ctx context.Context, id int64, suffix string) (*model.Contact, error) {
	clause, all := s.where(`id = ?`, id)
	query := s.q.Rebind(`SELECT ` + contactColumns + ` FROM contacts` + clause + suffix)

	var c model.Contact
	if err := sqlx.GetContext(ctx, s.q, &c, query, all...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("contact", id)
		}
		return nil, err
	}
	return &c, nil
}

// exec runs stmt (an UPDATE ... SET or DELETE FROM) restricted to the
// owner's row id. setArgs bind the placeholders in stmt itself. A missing
// row (or someone else's) is reported as apperror.ErrNotFound.
func (s ownerScope) exec(ctx context.Context, stmt string, setArgs []any, id int64) error {
	clause, whereArgs := s.where(`id = ?`, id)
	args := make([]any, 0, len(setArgs)+len(whereArgs))
	args = append(args, setArgs...)
	args = append(args, whereArgs...)

	result, err := s.q.ExecContext(ctx, s.q.Rebind(stmt+clause), args...)
	if err != nil {
		return err
	}
	return requireRow(result, apperror.NotFound("contact", id))
}

// Create inserts a contact. OwnerID must already be set by the caller from
// the authenticated user.
func (s *ContactStore) Create(ctx context.Context, contact *model.Contact) error {
	if contact.OwnerID == 0 {
		return errors.New("sqlstore: contact has no owner")
	}

	now := time.Now().UTC()
	contact.CreatedAt = now
	contact.UpdatedAt = now

	err := s.db.conn.QueryRowxContext(ctx, s.db.conn.Rebind(
		`INSERT INTO contacts (owner_id, first_name, last_name, email, phone, birthday, extra_info, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`),
		contact.OwnerID,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.Phone,
		contact.Birthday,
		contact.ExtraInfo,
		contact.CreatedAt,
		contact.UpdatedAt,
	).Scan(&contact.ID)
	if err != nil {
		return fmt.Errorf("sqlstore: inserting contact: %w", err)
	}

	return nil
}

// GetByID returns the contact only if it belongs to ownerID.
func (s *ContactStore) GetByID(ctx context.Context, ownerID, id int64) (*model.Contact, error) {
	c, err := contactsOf(s.db.conn, ownerID).get(ctx, id, "")
	if err != nil {
		return nil, wrapContactErr("getting contact", err)
	}
	return c, nil
}

// List returns all of the owner's contacts.
func (s *ContactStore) List(ctx context.Context, ownerID int64) ([]model.Contact, error) {
	contacts, err := contactsOf(s.db.conn, ownerID).list(ctx, "")
	if err != nil {
		return nil, wrapContactErr("listing contacts", err)
	}
	return contacts, nil
}

// Update merges patch into the stored contact.
//
// Read, merge and write happen in one transaction so two concurrent partial
// updates of the same contact can't drop each other's fields. On Postgres the
// row is locked with SELECT ... FOR UPDATE; SQLite transactions already hold
// the database write lock (_txlock=immediate). If the contact is deleted
// concurrently the update reports not found.
func (s *ContactStore) Update(ctx context.Context, ownerID, id int64, patch model.ContactPatch) (*model.Contact, error) {
	lock := ""
	if s.db.isPostgres() {
		lock = " FOR UPDATE"
	}

	var updated *model.Contact
	err := s.db.inTx(ctx, func(tx *sqlx.Tx) error {
		scope := contactsOf(tx, ownerID)

		c, err := scope.get(ctx, id, lock)
		if err != nil {
			return err
		}

		patch.Apply(c)
		c.UpdatedAt = time.Now().UTC()

		err = scope.exec(ctx,
			`UPDATE contacts
			 SET first_name = ?, last_name = ?, email = ?, phone = ?, birthday = ?, extra_info = ?, updated_at = ?`,
			[]any{c.FirstName, c.LastName, c.Email, c.Phone, c.Birthday, c.ExtraInfo, c.UpdatedAt},
			id,
		)
		if err != nil {
			return err
		}

		updated = c
		return nil
	})
	if err != nil {
		return nil, wrapContactErr("updating contact", err)
	}

	return updated, nil
}

// Delete removes the contact if it belongs to ownerID.
func (s *ContactStore) Delete(ctx context.Context, ownerID, id int64) error {
	err := contactsOf(s.db.conn, ownerID).exec(ctx, `DELETE FROM contacts`, nil, id)
	if err != nil {
		return wrapContactErr("deleting contact", err)
	}
	return nil
}

// Search matches query as a case-insensitive substring of first name, last
// name or email. LIKE wildcards in the query are matched literally.
//
// Both sides are lowercased with Go's Unicode rules: on SQLite through the
// registered unicode_lower function, on Postgres through LOWER.
func (s *ContactStore) Search(ctx context.Context, ownerID int64, query string) ([]model.Contact, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	lower := s.db.lower()

	contacts, err := contactsOf(s.db.conn, ownerID).list(ctx,
		lower+`(first_name) LIKE ? ESCAPE '\' OR `+
			lower+`(last_name) LIKE ? ESCAPE '\' OR `+
			lower+`(email) LIKE ? ESCAPE '\'`,
		pattern, pattern, pattern,
	)
	if err != nil {
		return nil, wrapContactErr("searching contacts", err)
	}
	return contacts, nil
}

// ListWithBirthday returns the owner's contacts that have a birthday.
// The date window itself is computed by the service, in Go, so it behaves the
// same on both dialects.
func (s *ContactStore) ListWithBirthday(ctx context.Context, ownerID int64) ([]model.Contact, error) {
	contacts, err := contactsOf(s.db.conn, ownerID).list(ctx, `birthday IS NOT NULL`)
	if err != nil {
		return nil, wrapContactErr("listing birthdays", err)
	}
	return contacts, nil
}

// wrapContactErr passes application errors (not found) through untouched and
// wraps everything else with context.
func wrapContactErr(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("sqlstore: %s: %w", op, err)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
