package model

import (
	"bytes"
	"encoding/json"
)

// Nullable is a JSON field that distinguishes three states:
//
//	key absent      → Set == false
//	"key": null     → Set == true, Value == nil
//	"key": <value>  → Set == true, Value != nil
//
// encoding/json only calls UnmarshalJSON when the key is present, which is
// what makes the first case observable.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// Of returns a Nullable holding v.
func Of[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}
