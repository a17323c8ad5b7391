package special_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/neowatch/pkg/errors"
	"github.com/agentstation/neowatch/pkg/special"
)

func validFields() special.Fields {
	return special.Fields{
		Name:        "3I/ATLAS perihelion",
		Description: "Third known interstellar object reaches perihelion",
		Type:        special.TypeInterstellarObject,
		Origin:      special.OriginInterstellar,
		EventDate:   time.Date(2025, 10, 29, 11, 0, 0, 0, time.UTC),
		Distance: special.Distance{
			Value: decimal.RequireFromString("1.356"),
			Unit:  special.DistanceAstronomicalUnits,
		},
		Priority: special.PriorityHigh,
	}
}

func TestNew(t *testing.T) {
	e, err := special.New("evt-1", validFields(), 1000)
	require.NoError(t, err)

	assert.Equal(t, "evt-1", e.ID)
	assert.True(t, e.IsActive)
	assert.Equal(t, int64(1000), e.CreatedAt)
	assert.Equal(t, e.CreatedAt, e.UpdatedAt)
	assert.Equal(t, e.EventDate.UnixMilli(), e.EventTimestamp)
	assert.Nil(t, e.Velocity)
}

func TestNewFromTimestamp(t *testing.T) {
	f := validFields()
	f.EventDate = time.Time{}
	f.EventTimestamp = special.Ptr(int64(1761735600000))

	e, err := special.New("evt-1", f, 1)
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1761735600000).UTC(), e.EventDate)
}

func TestNewAtEpoch(t *testing.T) {
	f := validFields()
	f.EventDate = time.Time{}
	f.EventTimestamp = special.Ptr(int64(0))

	e, err := special.New("evt-1", f, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), e.EventTimestamp)
	assert.Equal(t, time.Unix(0, 0).UTC(), e.EventDate)

	moved, err := e.Apply(special.Patch{EventTimestamp: special.Ptr(int64(0)), Name: special.Ptr("moved")}, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), moved.EventTimestamp)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*special.Fields)
		field  string
	}{
		{"bad type", func(f *special.Fields) { f.Type = "comet" }, "type"},
		{"bad origin", func(f *special.Fields) { f.Origin = "mars" }, "origin"},
		{"bad priority", func(f *special.Fields) { f.Priority = "urgent" }, "priority"},
		{"bad distance unit", func(f *special.Fields) { f.Distance.Unit = "mi" }, "distance.unit"},
		{"negative distance", func(f *special.Fields) { f.Distance.Value = decimal.NewFromInt(-1) }, "distance.value"},
		{"missing event time", func(f *special.Fields) { f.EventDate = time.Time{} }, "eventDate"},
		{"mismatched event time", func(f *special.Fields) { f.EventTimestamp = special.Ptr(int64(5)) }, "eventTimestamp"},
		{"sub-millisecond event date", func(f *special.Fields) { f.EventDate = f.EventDate.Add(time.Microsecond) }, "eventDate"},
		{"velocity without unit", func(f *special.Fields) {
			f.Velocity = &special.VelocityInput{Value: decimal.NewNullDecimal(decimal.NewFromInt(58))}
		}, "velocity.unit"},
		{"velocity without value", func(f *special.Fields) {
			f.Velocity = &special.VelocityInput{Unit: special.VelocityKilometersPerSecond}
		}, "velocity.value"},
		{"bad velocity unit", func(f *special.Fields) {
			f.Velocity = &special.VelocityInput{Value: decimal.NewNullDecimal(decimal.NewFromInt(58)), Unit: "mph"}
		}, "velocity.unit"},
		{"empty name", func(f *special.Fields) { f.Name = "  " }, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFields()
			tt.mutate(&f)
			_, err := special.New("evt-1", f, 1)
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))

			var ve *errors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestApply(t *testing.T) {
	e, err := special.New("evt-1", validFields(), 1000)
	require.NoError(t, err)

	updated, err := e.Apply(special.Patch{
		Priority: special.Ptr(special.PriorityCritical),
		Velocity: special.Some(special.VelocityInput{
			Value: decimal.NewNullDecimal(decimal.RequireFromString("58.0")),
			Unit:  special.VelocityKilometersPerSecond,
		}),
	}, 2000)
	require.NoError(t, err)

	assert.Equal(t, special.PriorityCritical, updated.Priority)
	require.NotNil(t, updated.Velocity)
	assert.Equal(t, "58", updated.Velocity.Value.String())
	assert.Equal(t, e.Name, updated.Name)
	assert.Equal(t, e.CreatedAt, updated.CreatedAt)
	assert.Equal(t, int64(2000), updated.UpdatedAt)

	// The original is untouched.
	assert.Equal(t, special.PriorityHigh, e.Priority)
}

func TestApplyClearsOptionalFields(t *testing.T) {
	f := validFields()
	f.Velocity = &special.VelocityInput{
		Value: decimal.NewNullDecimal(decimal.NewFromInt(26)),
		Unit:  special.VelocityKilometersPerSecond,
	}
	f.Metadata = map[string]any{"source": "mpc"}
	e, err := special.New("evt-1", f, 1000)
	require.NoError(t, err)

	var p special.Patch
	require.NoError(t, json.Unmarshal([]byte(`{"velocity": null, "metadata": null}`), &p))
	assert.True(t, p.Velocity.Set)
	assert.True(t, p.Velocity.Null)

	cleared, err := e.Apply(p, 1500)
	require.NoError(t, err)
	assert.Nil(t, cleared.Velocity)
	assert.Nil(t, cleared.Metadata)
}

func TestApplyKeepsUpdatedAtMonotonic(t *testing.T) {
	e, err := special.New("evt-1", validFields(), 5000)
	require.NoError(t, err)

	updated, err := e.Apply(special.Patch{Name: special.Ptr("renamed")}, 4000)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), updated.UpdatedAt)
}

func TestApplyRejectsInvalid(t *testing.T) {
	e, err := special.New("evt-1", validFields(), 1000)
	require.NoError(t, err)

	_, err = e.Apply(special.Patch{Priority: special.Ptr(special.Priority("urgent"))}, 2000)
	assert.True(t, errors.IsValidationError(err))
}

func TestEventJSON(t *testing.T) {
	f := validFields()
	f.Distance.Value = decimal.RequireFromString("0.000000000123456789012345")
	e, err := special.New("evt-1", f, 1000)
	require.NoError(t, err)

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"value":0.000000000123456789012345`)
	assert.Contains(t, string(data), `"eventTimestamp":1761735600000`)
	assert.NotContains(t, string(data), "velocity")

	var back special.Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, e.Distance.Value.Equal(back.Distance.Value))
	assert.Equal(t, e.EventTimestamp, back.EventTimestamp)
}

func TestPatchJSONAbsentFields(t *testing.T) {
	var p special.Patch
	require.NoError(t, json.Unmarshal([]byte(`{"priority":"critical"}`), &p))
	assert.False(t, p.Velocity.Set)
	assert.False(t, p.Metadata.Set)
	assert.False(t, p.IsEmpty())

	assert.True(t, special.Patch{}.IsEmpty())
}
