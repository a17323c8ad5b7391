package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/neowatch/internal/store"
	"github.com/agentstation/neowatch/internal/store/memory"
	"github.com/agentstation/neowatch/pkg/errors"
	"github.com/agentstation/neowatch/pkg/special"
)

const sample = `
events:
  - name: 3I/ATLAS
    description: Third known interstellar object
    type: interstellar_object
    origin: interstellar
    eventDate: "2025-10-29T00:00:00Z"
    distance: {value: "1.356", unit: au}
    velocity: {value: "58", unit: km/s}
    priority: high
    metadata:
      discoverer: ATLAS
  - name: Archived flyby
    type: interstellar_object
    origin: unknown
    eventTimestamp: 1700000000000
    distance: {value: 0.5, unit: ld}
    priority: low
    isActive: false
`

func TestParse(t *testing.T) {
	entries, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "3I/ATLAS", first.Name)
	assert.Equal(t, special.OriginInterstellar, first.Origin)
	assert.True(t, first.EventDate.Equal(time.Date(2025, 10, 29, 0, 0, 0, 0, time.UTC)))
	assert.True(t, decimal.RequireFromString("1.356").Equal(first.Distance.Value))
	require.NotNil(t, first.Velocity)
	assert.Equal(t, special.VelocityKilometersPerSecond, first.Velocity.Unit)
	assert.Equal(t, "ATLAS", first.Metadata["discoverer"])

	second := entries[1]
	assert.Equal(t, int64(1700000000000), *second.EventTimestamp)
	require.NotNil(t, second.IsActive)
	assert.False(t, *second.IsActive)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("events:\n  - name: x\n    colour: red\n"))
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestParseRejectsBrokenYAML(t *testing.T) {
	_, err := Parse([]byte("events: [\n"))
	require.Error(t, err)
}

func TestLoadAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	entries, err := Load(path)
	require.NoError(t, err)

	st := memory.New()
	res, err := Apply(context.Background(), storeCreator{st}, entries)
	require.NoError(t, err)
	assert.Len(t, res.Created, 2)

	active, err := st.Active(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "3I/ATLAS", active[0].Name)
}

func TestApplyStopsAtFirstFailure(t *testing.T) {
	entries, err := Parse([]byte(sample))
	require.NoError(t, err)
	entries[1].Priority = "urgent"
	entries = append(entries, entries[0])

	st := memory.New()
	res, err := Apply(context.Background(), storeCreator{st}, entries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed entry 1")
	assert.True(t, errors.IsValidationError(err))
	assert.Len(t, res.Created, 1)
	assert.Equal(t, 1, st.Len())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// storeCreator creates straight into a store.
type storeCreator struct{ st store.Store }

func (c storeCreator) Create(ctx context.Context, f special.Fields) (special.Event, error) {
	commit, err := c.st.Create(ctx, f)
	return commit.Event, err
}
