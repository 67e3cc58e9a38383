package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestContactPatch_DecodeDistinguishesNullFromMissing(t *testing.T) {
	var p ContactPatch
	body := `{"phone":"555-0100","extra_info":null}`
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if p.Phone == nil || *p.Phone != "555-0100" {
		t.Errorf("Phone = %v, want 555-0100", p.Phone)
	}
	if p.FirstName != nil {
		t.Error("FirstName should be nil when the key is missing")
	}
	if p.Birthday.Set {
		t.Error("Birthday.Set should be false when the key is missing")
	}
	if !p.ExtraInfo.Set || p.ExtraInfo.Value != nil {
		t.Errorf("ExtraInfo = %+v, want Set with nil Value", p.ExtraInfo)
	}
}

func TestContactPatch_ApplyOnlyTouchesPresentFields(t *testing.T) {
	birthday := NewDate(1985, time.July, 1)
	extra := "met at conference"
	c := Contact{
		FirstName: "Jo",
		LastName:  "Do",
		Email:     "jo@x.com",
		Phone:     "555",
		Birthday:  &birthday,
		ExtraInfo: &extra,
	}

	phone := "777"
	ContactPatch{Phone: &phone}.Apply(&c)

	if c.Phone != "777" {
		t.Errorf("Phone = %q, want 777", c.Phone)
	}
	if c.FirstName != "Jo" || c.LastName != "Do" || c.Email != "jo@x.com" {
		t.Errorf("names/email changed: %+v", c)
	}
	if c.Birthday == nil || c.Birthday.String() != "1985-07-01" {
		t.Errorf("Birthday = %v, want 1985-07-01", c.Birthday)
	}
	if c.ExtraInfo == nil || *c.ExtraInfo != extra {
		t.Errorf("ExtraInfo = %v, want %q", c.ExtraInfo, extra)
	}
}

func TestContactPatch_ApplyClearsNullableFields(t *testing.T) {
	birthday := NewDate(1985, time.July, 1)
	c := Contact{Birthday: &birthday}

	ContactPatch{Birthday: Nullable[Date]{Set: true}}.Apply(&c)

	if c.Birthday != nil {
		t.Errorf("Birthday = %v, want nil", c.Birthday)
	}
}

func TestContactPatch_Empty(t *testing.T) {
	if !(ContactPatch{}).Empty() {
		t.Error("zero patch should be empty")
	}
	if (ContactPatch{ExtraInfo: Of("x")}).Empty() {
		t.Error("patch with ExtraInfo should not be empty")
	}
}

func TestContact_JSONHidesOwner(t *testing.T) {
	b, err := json.Marshal(Contact{ID: 1, OwnerID: 99, FirstName: "Jo"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := m["owner_id"]; ok {
		t.Error("owner_id must not be serialized")
	}
	if m["birthday"] != nil {
		t.Errorf("birthday = %v, want null", m["birthday"])
	}
}
