package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/agentstation/neowatch/pkg/errors"
	"github.com/agentstation/neowatch/pkg/special"
)

// row is a persisted special event.
type row struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Description    sql.NullString `db:"description"`
	Type           string         `db:"type"`
	Origin         string         `db:"origin"`
	EventTimestamp int64          `db:"event_timestamp"`
	DistanceValue  string         `db:"distance_value"`
	DistanceUnit   string         `db:"distance_unit"`
	VelocityValue  sql.NullString `db:"velocity_value"`
	VelocityUnit   sql.NullString `db:"velocity_unit"`
	Priority       string         `db:"priority"`
	IsActive       sql.NullBool   `db:"is_active"`
	Metadata       sql.NullString `db:"metadata"`
	CreatedAt      int64          `db:"created_at"`
	UpdatedAt      int64          `db:"updated_at"`
}

// toEvent maps a persisted row to a special event. Enum columns are parsed,
// not trusted: a row holding an unknown value is reported as corrupt.
// A NULL is_active reads as active and a velocity with either part NULL
// reads as no velocity.
func toEvent(r row) (special.Event, error) {
	// The cause is flattened so a corrupt row is never mistaken for a
	// caller's invalid input.
	corrupt := func(err error) (special.Event, error) {
		return special.Event{}, errors.NewResourceError("decode", "event", r.ID, fmt.Errorf("corrupt row: %v", err))
	}

	typ, err := special.ParseType(r.Type)
	if err != nil {
		return corrupt(err)
	}
	origin, err := special.ParseOrigin(r.Origin)
	if err != nil {
		return corrupt(err)
	}
	priority, err := special.ParsePriority(r.Priority)
	if err != nil {
		return corrupt(err)
	}
	distanceUnit, err := special.ParseDistanceUnit(r.DistanceUnit)
	if err != nil {
		return corrupt(err)
	}
	distance, err := parseDecimal(r.DistanceValue)
	if err != nil {
		return corrupt(fmt.Errorf("distance_value: %w", err))
	}

	e := special.Event{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description.String,
		Type:        typ,
		Origin:      origin,
		Distance:    special.Distance{Value: distance, Unit: distanceUnit},
		Priority:    priority,
		IsActive:    !r.IsActive.Valid || r.IsActive.Bool,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	e.SetEventTimestamp(r.EventTimestamp)

	if r.VelocityValue.Valid && r.VelocityUnit.Valid &&
		strings.TrimSpace(r.VelocityValue.String) != "" && r.VelocityUnit.String != "" {
		unit, err := special.ParseVelocityUnit(r.VelocityUnit.String)
		if err != nil {
			return corrupt(err)
		}
		value, err := parseDecimal(r.VelocityValue.String)
		if err != nil {
			return corrupt(fmt.Errorf("velocity_value: %w", err))
		}
		e.Velocity = &special.Velocity{Value: value, Unit: unit}
	}

	if r.Metadata.Valid && r.Metadata.String != "" {
		if err := json.Unmarshal([]byte(r.Metadata.String), &e.Metadata); err != nil {
			return corrupt(fmt.Errorf("metadata: %w", err))
		}
	}
	return e, nil
}

// fromEvent maps a special event to its persisted row.
func fromEvent(e special.Event) (row, error) {
	r := row{
		ID:             e.ID,
		Name:           e.Name,
		Description:    sql.NullString{String: e.Description, Valid: true},
		Type:           e.Type.String(),
		Origin:         e.Origin.String(),
		EventTimestamp: e.EventTimestamp,
		DistanceValue:  e.Distance.Value.String(),
		DistanceUnit:   e.Distance.Unit.String(),
		Priority:       e.Priority.String(),
		IsActive:       sql.NullBool{Bool: e.IsActive, Valid: true},
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
	if e.Velocity != nil {
		r.VelocityValue = sql.NullString{String: e.Velocity.Value.String(), Valid: true}
		r.VelocityUnit = sql.NullString{String: e.Velocity.Unit.String(), Valid: true}
	}
	if e.Metadata != nil {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return row{}, errors.WrapValidation("metadata", err)
		}
		r.Metadata = sql.NullString{String: string(data), Valid: true}
	}
	return r, nil
}

// parseDecimal reads numeric text exactly. Surrounding space is ignored and
// an empty value reads as zero.
func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
