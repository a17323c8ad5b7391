package special

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agentstation/neowatch/pkg/errors"
)

func init() {
	// Exact decimals travel as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Event is a special event: a curated, operator-maintained record of a
// notable passage, shown on the dashboard and streamed to observers.
type Event struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Type           Type           `json:"type"`
	Origin         Origin         `json:"origin"`
	EventDate      time.Time      `json:"eventDate"`
	EventTimestamp int64          `json:"eventTimestamp"`
	Distance       Distance       `json:"distance"`
	Velocity       *Velocity      `json:"velocity,omitempty"`
	Priority       Priority       `json:"priority"`
	IsActive       bool           `json:"isActive"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      int64          `json:"createdAt"`
	UpdatedAt      int64          `json:"updatedAt"`
}

// Distance is a closest-approach distance.
type Distance struct {
	Value decimal.Decimal `json:"value"`
	Unit  DistanceUnit    `json:"unit"`
}

// Velocity is a relative velocity. An event either has both parts or no
// velocity at all.
type Velocity struct {
	Value decimal.Decimal `json:"value"`
	Unit  VelocityUnit    `json:"unit"`
}

// VelocityInput is a submitted velocity whose parts may each be missing.
type VelocityInput struct {
	Value decimal.NullDecimal `json:"value"`
	Unit  VelocityUnit        `json:"unit,omitempty"`
}

// Resolve converts the input to a velocity. Both parts absent yields nil;
// exactly one part present is a validation error.
func (in *VelocityInput) Resolve() (*Velocity, error) {
	if in == nil {
		return nil, nil
	}
	hasUnit := in.Unit != ""
	switch {
	case !in.Value.Valid && !hasUnit:
		return nil, nil
	case !in.Value.Valid:
		return nil, errors.NewValidationError("velocity.value", nil, "required when velocity.unit is set")
	case !hasUnit:
		return nil, errors.NewValidationError("velocity.unit", nil, "required when velocity.value is set")
	}
	if !in.Unit.IsValid() {
		_, err := ParseVelocityUnit(string(in.Unit))
		return nil, err
	}
	return &Velocity{Value: in.Value.Decimal, Unit: in.Unit}, nil
}

// Fields is the input for creating an event. The event time may be given as
// EventDate, EventTimestamp (epoch milliseconds) or both, provided they agree.
// Event times have millisecond precision; a finer EventDate is rejected.
type Fields struct {
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description" yaml:"description"`
	Type           Type           `json:"type" yaml:"type"`
	Origin         Origin         `json:"origin" yaml:"origin"`
	EventDate      time.Time      `json:"eventDate,omitzero" yaml:"eventDate"`
	EventTimestamp *int64         `json:"eventTimestamp,omitempty" yaml:"eventTimestamp"`
	Distance       Distance       `json:"distance" yaml:"distance"`
	Velocity       *VelocityInput `json:"velocity,omitempty" yaml:"velocity"`
	Priority       Priority       `json:"priority" yaml:"priority"`
	IsActive       *bool          `json:"isActive,omitempty" yaml:"isActive"`
	Metadata       map[string]any `json:"metadata,omitempty" yaml:"metadata"`
}

// New validates fields and builds a new event with the given id at time now
// (epoch milliseconds). IsActive defaults to true.
func New(id string, f Fields, now int64) (Event, error) {
	ts, err := resolveEventTime(f.EventDate, f.EventTimestamp)
	if err != nil {
		return Event{}, err
	}
	velocity, err := f.Velocity.Resolve()
	if err != nil {
		return Event{}, err
	}

	e := Event{
		ID:          id,
		Name:        strings.TrimSpace(f.Name),
		Description: f.Description,
		Type:        f.Type,
		Origin:      f.Origin,
		Distance:    f.Distance,
		Velocity:    velocity,
		Priority:    f.Priority,
		IsActive:    true,
		Metadata:    cloneMap(f.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.SetEventTimestamp(ts)
	if f.IsActive != nil {
		e.IsActive = *f.IsActive
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// SetEventTimestamp sets both representations of the event time from epoch
// milliseconds.
func (e *Event) SetEventTimestamp(ms int64) {
	e.EventTimestamp = ms
	e.EventDate = time.UnixMilli(ms).UTC()
}

// Apply returns a copy of e with the supplied patch fields applied.
// ID and CreatedAt never change; UpdatedAt becomes max(now, UpdatedAt).
func (e Event) Apply(p Patch, now int64) (Event, error) {
	out := e.Clone()

	if p.Name != nil {
		out.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.Origin != nil {
		out.Origin = *p.Origin
	}
	if p.EventDate != nil || p.EventTimestamp != nil {
		var date time.Time
		if p.EventDate != nil {
			date = *p.EventDate
		}
		ts, err := resolveEventTime(date, p.EventTimestamp)
		if err != nil {
			return Event{}, err
		}
		out.SetEventTimestamp(ts)
	}
	if p.Distance != nil {
		out.Distance = *p.Distance
	}
	if p.Velocity.Set {
		if p.Velocity.Null {
			out.Velocity = nil
		} else {
			v, err := p.Velocity.Value.Resolve()
			if err != nil {
				return Event{}, err
			}
			out.Velocity = v
		}
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.IsActive != nil {
		out.IsActive = *p.IsActive
	}
	if p.Metadata.Set {
		if p.Metadata.Null {
			out.Metadata = nil
		} else {
			out.Metadata = cloneMap(p.Metadata.Value)
		}
	}

	out.UpdatedAt = max(now, e.UpdatedAt)
	if err := out.Validate(); err != nil {
		return Event{}, err
	}
	return out, nil
}

// Validate checks enum membership, ranges and the timestamp invariants.
func (e Event) Validate() error {
	if e.ID == "" {
		return errors.NewValidationError("id", e.ID, "must not be empty")
	}
	if e.Name == "" {
		return errors.NewValidationError("name", e.Name, "must not be empty")
	}
	if !e.Type.IsValid() {
		_, err := ParseType(string(e.Type))
		return err
	}
	if !e.Origin.IsValid() {
		_, err := ParseOrigin(string(e.Origin))
		return err
	}
	if !e.Priority.IsValid() {
		_, err := ParsePriority(string(e.Priority))
		return err
	}
	if !e.Distance.Unit.IsValid() {
		_, err := ParseDistanceUnit(string(e.Distance.Unit))
		return err
	}
	if e.Distance.Value.IsNegative() {
		return errors.NewValidationError("distance.value", e.Distance.Value.String(), "must not be negative")
	}
	if e.Velocity != nil && !e.Velocity.Unit.IsValid() {
		_, err := ParseVelocityUnit(string(e.Velocity.Unit))
		return err
	}
	if e.EventTimestamp != e.EventDate.UnixMilli() {
		return errors.NewValidationError("eventTimestamp", e.EventTimestamp, "does not match eventDate")
	}
	if e.UpdatedAt < e.CreatedAt {
		return errors.NewValidationError("updatedAt", e.UpdatedAt, "must not precede createdAt")
	}
	return nil
}

// Clone returns a deep copy of e.
func (e Event) Clone() Event {
	out := e
	if e.Velocity != nil {
		v := *e.Velocity
		out.Velocity = &v
	}
	out.Metadata = cloneMap(e.Metadata)
	return out
}

// resolveEventTime returns the event time in epoch milliseconds. A zero
// date and a nil timestamp are absent; a timestamp of 0 is the epoch.
func resolveEventTime(date time.Time, ms *int64) (int64, error) {
	if !date.IsZero() && date.Nanosecond()%int(time.Millisecond) != 0 {
		return 0, errors.NewValidationError("eventDate", date, "must not be more precise than milliseconds")
	}
	switch {
	case date.IsZero() && ms == nil:
		return 0, errors.NewValidationError("eventDate", nil, "eventDate or eventTimestamp is required")
	case date.IsZero():
		return *ms, nil
	case ms == nil:
		return date.UnixMilli(), nil
	case date.UnixMilli() != *ms:
		return 0, errors.NewValidationError("eventTimestamp", *ms, "does not match eventDate")
	default:
		return *ms, nil
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
