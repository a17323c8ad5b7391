package special

import (
	"bytes"
	"encoding/json"
	"time"
)

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name           *string                  `json:"name,omitempty"`
	Description    *string                  `json:"description,omitempty"`
	Type           *Type                    `json:"type,omitempty"`
	Origin         *Origin                  `json:"origin,omitempty"`
	EventDate      *time.Time               `json:"eventDate,omitempty"`
	EventTimestamp *int64                   `json:"eventTimestamp,omitempty"`
	Distance       *Distance                `json:"distance,omitempty"`
	Velocity       Optional[VelocityInput]  `json:"velocity,omitzero"`
	Priority       *Priority                `json:"priority,omitempty"`
	IsActive       *bool                    `json:"isActive,omitempty"`
	Metadata       Optional[map[string]any] `json:"metadata,omitzero"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Type == nil && p.Origin == nil &&
		p.EventDate == nil && p.EventTimestamp == nil && p.Distance == nil &&
		!p.Velocity.Set && p.Priority == nil && p.IsActive == nil && !p.Metadata.Set
}

// Optional is a JSON field that distinguishes absent, explicit null and a
// value. A zero Optional is absent.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null returns an Optional that clears the field.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// IsZero reports whether the field was absent.
func (o Optional[T]) IsZero() bool { return !o.Set }

// MarshalJSON implements json.Marshaler.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UnmarshalJSON implements json.Unmarshaler. It is only called when the
// field is present.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T { return &v }
