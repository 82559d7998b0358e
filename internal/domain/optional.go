package domain

import (
	"bytes"
	"encoding/json"
)

// Optional carries a value together with an explicit presence flag. The zero
// value is absent. Absence and the wrapped type's zero value are distinct, so
// partial updates can tell "not touched" from "set to zero".
type Optional[T any] struct {
	value T
	set   bool
}

// Some wraps a present value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports presence.
func (o Optional[T]) IsSet() bool {
	return o.set
}

// Or returns the value when present, otherwise the fallback.
func (o Optional[T]) Or(fallback T) T {
	if o.set {
		return o.value
	}
	return fallback
}

// IsZero reports absence; encoding/json's omitzero option uses it to drop
// unset fields from output.
func (o Optional[T]) IsZero() bool {
	return !o.set
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON marks the field present for any value except literal null.
// Keys absent from the payload never reach this method, so they stay absent.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Optional[T]{value: v, set: true}
	return nil
}
