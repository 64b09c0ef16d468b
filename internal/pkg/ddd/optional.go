package ddd

import (
	"bytes"
	"encoding/json"
)

// Optional distinguishes three states of a partial-update field:
// unset (leave unchanged), null (clear) and a value (replace).
// The zero value is unset.
type Optional[T any] struct {
	set   bool
	valid bool
	value T
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{set: true, valid: true, value: v}
}

// Null returns an Optional that is explicitly null.
func Null[T any]() Optional[T] {
	return Optional[T]{set: true}
}

// IsSet reports whether the field was supplied at all (null included).
func (o Optional[T]) IsSet() bool { return o.set }

// IsNull reports whether the field was supplied as an explicit null.
func (o Optional[T]) IsNull() bool { return o.set && !o.valid }

// Get returns the value and whether one is present.
func (o Optional[T]) Get() (T, bool) { return o.value, o.set && o.valid }

// Ptr returns nil for unset or null, otherwise a pointer to a copy of the value.
func (o Optional[T]) Ptr() *T {
	if !o.set || !o.valid {
		return nil
	}
	v := o.value
	return &v
}

// UnmarshalJSON is only invoked by encoding/json when the key is present,
// which is what makes absent and null distinguishable.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.valid = false
		var zero T
		o.value = zero
		return nil
	}
	if err := json.Unmarshal(data, &o.value); err != nil {
		return err
	}
	o.valid = true
	return nil
}

// MarshalJSON writes null for both unset and null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.set || !o.valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}
