package model

import "time"

// Contact is one entry of a user's address book.
//
// OwnerID is fixed when the contact is created and is never part of any
// request body: the owner always comes from the authenticated session.
// It is tagged `json:"-"` so responses don't carry it either.
type Contact struct {
	ID        int64     `json:"id"         db:"id"`
	OwnerID   int64     `json:"-"          db:"owner_id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name"  db:"last_name"`
	Email     string    `json:"email"      db:"email"`
	Phone     string    `json:"phone"      db:"phone"`
	Birthday  *Date     `json:"birthday"   db:"birthday"`
	ExtraInfo *string   `json:"extra_info" db:"extra_info"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ContactInput is the body of a create request.
type ContactInput struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
	Birthday  *Date   `json:"birthday"`
	ExtraInfo *string `json:"extra_info"`
}

// ContactPatch is the body of an update request. Only the fields present in
// the JSON document are applied.
//
// The required fields use plain pointers (nil = leave unchanged). Birthday and
// ExtraInfo are nullable columns, so they use Nullable to tell an explicit
// null (clear the value) apart from a missing key.
type ContactPatch struct {
	FirstName *string          `json:"first_name"`
	LastName  *string          `json:"last_name"`
	Email     *string          `json:"email"`
	Phone     *string          `json:"phone"`
	Birthday  Nullable[Date]   `json:"birthday"`
	ExtraInfo Nullable[string] `json:"extra_info"`
}

// Empty reports whether the patch would change nothing.
func (p ContactPatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Email == nil &&
		p.Phone == nil && !p.Birthday.Set && !p.ExtraInfo.Set
}

// Apply merges the patch into c. Fields absent from the patch keep their
// current value.
func (p ContactPatch) Apply(c *Contact) {
	if p.FirstName != nil {
		c.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		c.LastName = *p.LastName
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.Phone != nil {
		c.Phone = *p.Phone
	}
	if p.Birthday.Set {
		c.Birthday = p.Birthday.Value
	}
	if p.ExtraInfo.Set {
		c.ExtraInfo = p.ExtraInfo.Value
	}
}
