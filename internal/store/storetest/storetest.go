// Package storetest provides a behavioral test suite that every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/neowatch/internal/store"
	"github.com/agentstation/neowatch/pkg/errors"
	"github.com/agentstation/neowatch/pkg/special"
)

// Factory opens a fresh, empty store for one test.
type Factory func(t *testing.T, opts ...store.Option) store.Store

// StepClock returns a clock that advances by one millisecond per call,
// starting at start.
func StepClock(start time.Time) func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return start.Add(time.Duration(n.Add(1)) * time.Millisecond)
	}
}

// Fields returns valid create input for an event at the given epoch
// milliseconds.
func Fields(name string, priority special.Priority, eventMillis int64) special.Fields {
	return special.Fields{
		Name:           name,
		Description:    name + " description",
		Type:           special.TypeInterstellarObject,
		Origin:         special.OriginInterstellar,
		EventTimestamp: &eventMillis,
		Distance: special.Distance{
			Value: decimal.RequireFromString("1.356"),
			Unit:  special.DistanceAstronomicalUnits,
		},
		Priority: priority,
	}
}

// Run runs the suite against stores built by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, factory) })
	t.Run("ActiveOrdering", func(t *testing.T) { testActiveOrdering(t, factory) })
	t.Run("ActiveExcludesInactive", func(t *testing.T) { testActiveExcludesInactive(t, factory) })
	t.Run("TieBreakLatest", func(t *testing.T) { testTieBreakLatest(t, factory) })
	t.Run("UpdatePartial", func(t *testing.T) { testUpdatePartial(t, factory) })
	t.Run("DeleteTwice", func(t *testing.T) { testDeleteTwice(t, factory) })
	t.Run("RevisionOnlyOnSuccess", func(t *testing.T) { testRevision(t, factory) })
	t.Run("QueryFilter", func(t *testing.T) { testQueryFilter(t, factory) })
	t.Run("DecimalPrecision", func(t *testing.T) { testDecimalPrecision(t, factory) })
	t.Run("ConcurrentWrites", func(t *testing.T) { testConcurrentWrites(t, factory) })
}

func newStore(t *testing.T, factory Factory, opts ...store.Option) store.Store {
	t.Helper()
	base := []store.Option{store.WithClock(StepClock(time.UnixMilli(1_700_000_000_000)))}
	return factory(t, append(base, opts...)...)
}

func ids(events []special.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func testCreateAndGet(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := newStore(t, factory)

	f := Fields("3I/ATLAS", special.PriorityHigh, 1761735600000)
	f.Velocity = &special.VelocityInput{
		Value: decimal.NewNullDecimal(decimal.RequireFromString("58.3")),
		Unit:  special.VelocityKilometersPerSecond,
	}
	f.Metadata = map[string]any{"designation": "C/2025 N1"}

	commit, err := s.Create(ctx, f)
	require.NoError(t, err)
	assert.NotEmpty(t, commit.Event.ID)
	assert.Equal(t, commit.Event.CreatedAt, commit.Event.UpdatedAt)
	assert.True(t, commit.Event.IsActive)

	got, err := s.Get(ctx, commit.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, commit.Event.ID, got.ID)
	assert.Equal(t, f.Name, got.Name)
	assert.Equal(t, f.Description, got.Description)
	assert.Equal(t, f.Type, got.Type)
	assert.Equal(t, f.Origin, got.Origin)
	assert.Equal(t, *f.EventTimestamp, got.EventTimestamp)
	assert.Equal(t, *f.EventTimestamp, got.EventDate.UnixMilli())
	assert.True(t, f.Distance.Value.Equal(got.Distance.Value))
	assert.Equal(t, f.Distance.Unit, got.Distance.Unit)
	require.NotNil(t, got.Velocity)
	assert.True(t, got.Velocity.Value.Equal(decimal.RequireFromString("58.3")))
	assert.Equal(t, special.VelocityKilometersPerSecond, got.Velocity.Unit)
	assert.Equal(t, f.Priority, got.Priority)
	assert.Equal(t, "C/2025 N1", got.Metadata["designation"])
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func testActiveOrdering(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := newStore(t, factory)

	e1, err := s.Create(ctx, Fields("E1", special.PriorityHigh, 2_000_000))
	require.NoError(t, err)
	e2, err := s.Create(ctx, Fields("E2", special.PriorityCritical, 1_000_000))
	require.NoError(t, err)

	active, err := s.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{e2.Event.ID, e1.Event.ID}, ids(active))

	_, err = s.Update(ctx, e1.Event.ID, special.Patch{Priority: special.Ptr(special.PriorityCritical)})
	require.NoError(t, err)

	active, err = s.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{e2.Event.ID, e1.Event.ID}, ids(active))

	_, err = s.Delete(ctx, e2.Event.ID)
	require.NoError(t, err)

	active, err = s.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{e1.Event.ID}, ids(active))
}

func testActiveExcludesInactive(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := newStore(t, factory)

	f := Fields("dormant", special.PriorityCritical, 1)
	f.IsActive = special.Ptr(false)
	_, err := s.Create(ctx, f)
	require.NoError(t, err)
	live, err := s.Create(ctx, Fields("live", special.PriorityLow, 1))
	require.NoError(t, err)

	active, err := s.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{live.Event.ID}, ids(active))

	all, err := s.Query(ctx, special.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testTieBreakLatest(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := newStore(t, factory, store.WithTieBreak(special.TieBreakLatest))

	soon, err := s.Create(ctx, Fields("soon", special.PriorityHigh, 1_000))
	require.NoError(t, err)
	late, err := s.Create(ctx, Fields("late", special.PriorityHigh, 9_000))
	require.NoError(t, err)

	active, err := s.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{late.Event.ID, soon.Event.ID}, ids(active))
}

func testUpdatePartial(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := newStore(t, factory)

	created, err := s.Create(ctx, Fields("E1", special.PriorityLow, 5_000))
	require.NoError(t, err)

	updated, err := s.Update(ctx, created.Event.ID, special.Patch{
		Description: special.Ptr("closer than expected"),
		IsActive:    special.Ptr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "closer than expected", updated.Event.Description)
	assert.False(t, updated.Event.IsActive)
	assert.Equal(t, created.Event.Name, updated.Event.Name)
	assert.Equal(t, created.Event.Priority, updated.Event.Priority)
	assert.Equal(t, created.Event.CreatedAt, updated.Event.CreatedAt)
	assert.Greater(t, updated.Event.UpdatedAt, created.Event.UpdatedAt)

	got, err := s.Get(ctx, created.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Event.Description, got.Description)
	assert.False(t, got.IsActive)

	_, err = s.Update(ctx, "missing", special.Patch{Name: special.Ptr("x")})
	assert.True(t, errors.IsNotFound(err))

	_, err = s.Update(ctx, created.Event.ID, special.Patch{Origin: special.Ptr(special.Origin("mars"))})
	assert.True(t, errors.IsValidationError(err))
}

func testDeleteTwice(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := newStore(t, factory)

	created, err := s.Create(ctx, Fields("E1", special.PriorityLow, 5_000))
	require.NoError(t, err)

	removed, err := s.Delete(ctx, created.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Event.ID, removed.Event.ID)
	assert.Equal(t, created.Event.Name, removed.Event.Name)

	_, err = s.Delete(ctx, created.Event.ID)
	assert.True(t, errors.IsNotFound(err))

	_, err = s.Get(ctx, created.Event.ID)
	assert.True(t, errors.IsNotFound(err))
}

func testRevision(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := newStore(t, factory)

	rev, err := s.Revision(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rev)

	c1, err := s.Create(ctx, Fields("E1", special.PriorityLow, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c1.Revision)

	bad := Fields("bad", special.PriorityLow, 1)
	bad.Distance.Value = decimal.NewFromInt(-5)
	_, err = s.Create(ctx, bad)
	assert.True(t, errors.IsValidationError(err))

	_, err = s.Delete(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))

	c2, err := s.Update(ctx, c1.Event.ID, special.Patch{Name: special.Ptr("E1'")})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c2.Revision)

	c3, err := s.Delete(ctx, c1.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), c3.Revision)

	rev, err = s.Revision(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), rev)
}

func testQueryFilter(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := newStore(t, factory)

	interstellar, err := s.Create(ctx, Fields("interstellar", special.PriorityCritical, 1))
	require.NoError(t, err)

	local := Fields("local", special.PriorityMedium, 2)
	local.Origin = special.OriginSolarSystem
	solar, err := s.Create(ctx, local)
	require.NoError(t, err)

	got, err := s.Query(ctx, special.Filter{Origins: []special.Origin{special.OriginSolarSystem}})
	require.NoError(t, err)
	assert.Equal(t, []string{solar.Event.ID}, ids(got))

	got, err = s.Query(ctx, special.Filter{MinPriority: special.PriorityHigh})
	require.NoError(t, err)
	assert.Equal(t, []string{interstellar.Event.ID}, ids(got))

	got, err = s.Query(ctx, special.Filter{Types: []special.Type{special.TypeInterstellarObject}})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = s.Query(ctx, special.Filter{MinPriority: "urgent"})
	assert.True(t, errors.IsValidationError(err))
}

func testDecimalPrecision(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := newStore(t, factory)

	f := Fields("precise", special.PriorityLow, 1)
	f.Distance.Value = decimal.RequireFromString("12345678901234567890.123456789012345678")
	created, err := s.Create(ctx, f)
	require.NoError(t, err)

	got, err := s.Get(ctx, created.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, "12345678901234567890.123456789012345678", got.Distance.Value.String())
}

func testConcurrentWrites(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := newStore(t, factory)

	const n = 20
	var wg sync.WaitGroup
	revisions := make(chan uint64, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.Create(ctx, Fields(fmt.Sprintf("E%d", i), special.PriorityLow, int64(i+1)))
			if assert.NoError(t, err) {
				revisions <- c.Revision
			}
		}()
	}
	wg.Wait()
	close(revisions)

	seen := make(map[uint64]bool)
	for rev := range revisions {
		assert.False(t, seen[rev], "revision %d assigned twice", rev)
		seen[rev] = true
	}
	assert.Len(t, seen, n)

	rev, err := s.Revision(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(n), rev)
}
