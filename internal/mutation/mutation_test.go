package mutation

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/neowatch/internal/events"
	"github.com/agentstation/neowatch/internal/store"
	"github.com/agentstation/neowatch/internal/store/memory"
	"github.com/agentstation/neowatch/internal/store/sqlstore"
	"github.com/agentstation/neowatch/internal/store/storetest"
	"github.com/agentstation/neowatch/pkg/errors"
	"github.com/agentstation/neowatch/pkg/special"
)

type recordingPublisher struct {
	mu    sync.Mutex
	notes []events.Notification
}

func (p *recordingPublisher) Publish(n events.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notes = append(p.notes, n)
}

func (p *recordingPublisher) snapshot() []events.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Notification(nil), p.notes...)
}

func newSerializer(t *testing.T, pub Publisher, opts ...Option) (*Serializer, *memory.Store) {
	t.Helper()
	st := memory.New()
	logger := zerolog.Nop()
	s, err := New(context.Background(), st, pub, append([]Option{WithLogger(&logger)}, opts...)...)
	require.NoError(t, err)
	return s, st
}

func assertStrictlyIncreasing(t *testing.T, notes []events.Notification) {
	t.Helper()
	for i := 1; i < len(notes); i++ {
		assert.Equal(t, notes[i-1].Sequence+1, notes[i].Sequence, "notification %d out of order", i)
	}
}

func TestRejectedMutationsEmitNothing(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	s, _ := newSerializer(t, pub)

	bad := storetest.Fields("bad", special.PriorityLow, 1)
	bad.Priority = "urgent"
	_, err := s.Create(ctx, bad)
	assert.True(t, errors.IsValidationError(err))

	_, err = s.Update(ctx, "missing", special.Patch{Name: special.Ptr("x")})
	assert.True(t, errors.IsNotFound(err))

	_, err = s.Delete(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))

	assert.Empty(t, pub.snapshot())
	assert.Equal(t, uint64(0), s.Sequence())
}

func TestDeleteTwice(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	s, _ := newSerializer(t, pub)

	created, err := s.Create(ctx, storetest.Fields("E1", special.PriorityLow, 1))
	require.NoError(t, err)

	removed, err := s.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, removed.ID)

	_, err = s.Delete(ctx, created.ID)
	assert.True(t, errors.IsNotFound(err))

	notes := pub.snapshot()
	require.Len(t, notes, 2)
	assert.Equal(t, events.KindDeleted, notes[1].Kind)
	assert.Equal(t, created.ID, notes[1].ID)
	assert.Nil(t, notes[1].Event)
}

func TestSameEntityUpdatesAreNotLost(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	s, _ := newSerializer(t, pub)

	created, err := s.Create(ctx, storetest.Fields("E1", special.PriorityLow, 1))
	require.NoError(t, err)

	const writers = 50
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, created.ID, special.Patch{Name: special.Ptr(fmt.Sprintf("name-%d", i))})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	notes := pub.snapshot()
	require.Len(t, notes, writers+1)
	assertStrictlyIncreasing(t, notes)

	final, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, notes[len(notes)-1].Event.Name, final.Name)

	seen := make(map[string]bool)
	for _, n := range notes[1:] {
		assert.False(t, seen[n.Event.Name], "update %s announced twice", n.Event.Name)
		seen[n.Event.Name] = true
	}
	assert.Equal(t, 0, s.locks.size())
}

func TestGlobalEmissionOrder(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	s, _ := newSerializer(t, pub)

	const entities = 10
	ids := make([]string, entities)
	for i := range entities {
		e, err := s.Create(ctx, storetest.Fields(fmt.Sprintf("E%d", i), special.PriorityLow, int64(i+1)))
		require.NoError(t, err)
		ids[i] = e.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for j := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Update(ctx, id, special.Patch{Description: special.Ptr(fmt.Sprint(j))})
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	notes := pub.snapshot()
	require.Len(t, notes, entities+entities*10)
	assert.Equal(t, uint64(1), notes[0].Sequence)
	assertStrictlyIncreasing(t, notes)
	assert.Equal(t, notes[len(notes)-1].Sequence, s.Sequence())
}

func TestSequenceContinuesFromStoreRevision(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	for i := range 3 {
		_, err := st.Create(ctx, storetest.Fields(fmt.Sprint(i), special.PriorityLow, 1))
		require.NoError(t, err)
	}

	pub := &recordingPublisher{}
	s, err := New(ctx, st, pub)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s.Sequence())

	_, err = s.Create(ctx, storetest.Fields("next", special.PriorityLow, 1))
	require.NoError(t, err)
	notes := pub.snapshot()
	require.Len(t, notes, 1)
	assert.Equal(t, uint64(4), notes[0].Sequence)
}

func TestCommitHooks(t *testing.T) {
	ctx := context.Background()
	var kinds []events.Kind
	s, _ := newSerializer(t, &recordingPublisher{}, OnCommit(func(n events.Notification) {
		kinds = append(kinds, n.Kind)
	}))

	e, err := s.Create(ctx, storetest.Fields("E1", special.PriorityLow, 1))
	require.NoError(t, err)
	_, err = s.Update(ctx, e.ID, special.Patch{IsActive: special.Ptr(false)})
	require.NoError(t, err)
	_, err = s.Delete(ctx, e.ID)
	require.NoError(t, err)

	assert.Equal(t, []events.Kind{events.KindCreated, events.KindUpdated, events.KindDeleted}, kinds)
}

func TestCanceledWaitDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	s, _ := newSerializer(t, pub)

	e, err := s.Create(ctx, storetest.Fields("E1", special.PriorityLow, 1))
	require.NoError(t, err)

	unlock, err := s.locks.Lock(ctx, e.ID)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = s.Update(waitCtx, e.ID, special.Patch{Name: special.Ptr("late")})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	unlock()

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "E1", got.Name)
	assert.Len(t, pub.snapshot(), 1)
	assert.Equal(t, 0, s.locks.size())
}

func TestEmitterReordersBySequence(t *testing.T) {
	pub := &recordingPublisher{}
	logger := zerolog.Nop()
	em := newEmitter(pub, 0, time.Minute, &logger)
	em.begin()
	em.begin()

	done := make(chan struct{})
	go func() {
		em.emit(events.Deleted("b", 2))
		close(done)
	}()

	// Sequence 2 must wait for 1.
	select {
	case <-done:
		t.Fatal("sequence 2 published before 1")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Empty(t, pub.snapshot())

	em.emit(events.Deleted("a", 1))
	<-done

	notes := pub.snapshot()
	require.Len(t, notes, 2)
	assert.Equal(t, "a", notes[0].ID)
	assert.Equal(t, "b", notes[1].ID)
	assert.Equal(t, uint64(2), em.last())
}

func TestEmitterSkipsAbandonedGap(t *testing.T) {
	pub := &recordingPublisher{}
	logger := zerolog.Nop()
	em := newEmitter(pub, 0, 10*time.Millisecond, &logger)
	// The writer of sequence 1 or 2 never reports back.
	em.begin()
	em.begin()

	em.emit(events.Deleted("c", 3))

	notes := pub.snapshot()
	require.Len(t, notes, 1)
	assert.Equal(t, uint64(3), notes[0].Sequence)
	assert.Equal(t, uint64(3), em.last())
}

// racyStore performs updates as an unguarded read-modify-write that
// increments a counter kept in the description. Updates to ids listed in
// hold block until the channel is closed.
type racyStore struct {
	*memory.Store
	hold map[string]chan struct{}
}

func (r *racyStore) Update(ctx context.Context, id string, _ special.Patch) (store.Commit, error) {
	if ch, ok := r.hold[id]; ok {
		<-ch
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return store.Commit{}, err
	}
	n, _ := strconv.Atoi(current.Description)
	time.Sleep(time.Millisecond)
	next := strconv.Itoa(n + 1)
	return r.Store.Update(ctx, id, special.Patch{Description: &next})
}

func TestSameEntityUpdatesAreExclusive(t *testing.T) {
	ctx := context.Background()
	st := &racyStore{Store: memory.New()}
	pub := &recordingPublisher{}
	logger := zerolog.Nop()
	s, err := New(ctx, st, pub, WithLogger(&logger))
	require.NoError(t, err)

	fields := storetest.Fields("E1", special.PriorityLow, 1)
	fields.Description = "0"
	created, err := s.Create(ctx, fields)
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, created.ID, special.Patch{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(writers), got.Description)
	assertStrictlyIncreasing(t, pub.snapshot())
}

func TestDifferentEntitiesAreNotSerialized(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	st := &racyStore{Store: memory.New()}
	pub := &recordingPublisher{}
	logger := zerolog.Nop()
	s, err := New(ctx, st, pub, WithLogger(&logger))
	require.NoError(t, err)

	slow, err := s.Create(ctx, storetest.Fields("slow", special.PriorityLow, 1))
	require.NoError(t, err)
	fast, err := s.Create(ctx, storetest.Fields("fast", special.PriorityLow, 1))
	require.NoError(t, err)
	st.hold = map[string]chan struct{}{slow.ID: release}

	slowDone := make(chan error, 1)
	go func() {
		_, err := s.Update(ctx, slow.ID, special.Patch{})
		slowDone <- err
	}()

	fastDone := make(chan error, 1)
	go func() {
		_, err := s.Update(ctx, fast.ID, special.Patch{})
		fastDone <- err
	}()

	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("update of one event waited for a held update of another")
	}

	close(release)
	require.NoError(t, <-slowDone)

	notes := pub.snapshot()
	require.Len(t, notes, 4)
	assert.Equal(t, fast.ID, notes[2].ID)
	assert.Equal(t, slow.ID, notes[3].ID)
	assertStrictlyIncreasing(t, notes)
}

func TestUpdateIf(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	s, _ := newSerializer(t, pub)

	e, err := s.Create(ctx, storetest.Fields("E1", special.PriorityLow, 1))
	require.NoError(t, err)
	inactive := false
	isActive := func(e special.Event) bool { return e.IsActive }

	got, applied, err := s.UpdateIf(ctx, e.ID, isActive, special.Patch{IsActive: &inactive})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.False(t, got.IsActive)

	got, applied, err = s.UpdateIf(ctx, e.ID, isActive, special.Patch{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, e.ID, got.ID)
	assert.Len(t, pub.snapshot(), 2)

	_, _, err = s.UpdateIf(ctx, "missing", isActive, special.Patch{IsActive: &inactive})
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, 0, s.locks.size())
}

func openShared(t *testing.T, path string) *sqlstore.Store {
	t.Helper()
	st, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOutsideWritesAreReplayedWithoutStalling(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	logger := zerolog.Nop()

	pub := &recordingPublisher{}
	s, err := New(ctx, openShared(t, path), pub, WithLogger(&logger), WithGapTimeout(time.Minute))
	require.NoError(t, err)
	local, err := s.Create(ctx, storetest.Fields("local", special.PriorityLow, 1))
	require.NoError(t, err)

	other, err := New(ctx, openShared(t, path), &recordingPublisher{}, WithLogger(&logger))
	require.NoError(t, err)
	seeded, err := other.Create(ctx, storetest.Fields("seeded", special.PriorityHigh, 2))
	require.NoError(t, err)

	start := time.Now()
	_, err = s.Update(ctx, local.ID, special.Patch{Name: special.Ptr("renamed")})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	notes := pub.snapshot()
	require.Len(t, notes, 3)
	assertStrictlyIncreasing(t, notes)
	assert.Equal(t, events.KindCreated, notes[1].Kind)
	assert.Equal(t, seeded.ID, notes[1].ID)
	assert.Equal(t, "seeded", notes[1].Event.Name)
	assert.Equal(t, "renamed", notes[2].Event.Name)
}

func TestSyncPublishesOutsideWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	logger := zerolog.Nop()

	var hooked []uint64
	pub := &recordingPublisher{}
	s, err := New(ctx, openShared(t, path), pub, WithLogger(&logger), OnCommit(func(n events.Notification) {
		hooked = append(hooked, n.Sequence)
	}))
	require.NoError(t, err)

	other, err := New(ctx, openShared(t, path), &recordingPublisher{}, WithLogger(&logger))
	require.NoError(t, err)
	e, err := other.Create(ctx, storetest.Fields("outside", special.PriorityLow, 1))
	require.NoError(t, err)
	_, err = other.Delete(ctx, e.ID)
	require.NoError(t, err)

	n, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	notes := pub.snapshot()
	require.Len(t, notes, 2)
	assert.Equal(t, events.KindCreated, notes[0].Kind)
	assert.Equal(t, events.KindDeleted, notes[1].Kind)
	assert.Equal(t, e.ID, notes[1].ID)
	assert.Equal(t, []uint64{1, 2}, hooked)
	assert.Equal(t, uint64(2), s.Sequence())

	n, err = s.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSyncWithoutChangeLogSkipsGap(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	s, st := newSerializer(t, pub, WithGapTimeout(time.Minute))

	_, err := st.Create(ctx, storetest.Fields("direct", special.PriorityLow, 1))
	require.NoError(t, err)

	n, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, uint64(1), s.Sequence())

	start := time.Now()
	_, err = st.Create(ctx, storetest.Fields("direct again", special.PriorityLow, 1))
	require.NoError(t, err)
	_, err = s.Create(ctx, storetest.Fields("through serializer", special.PriorityLow, 1))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	notes := pub.snapshot()
	require.Len(t, notes, 1)
	assert.Equal(t, uint64(3), notes[0].Sequence)
}

func TestScenarioThroughHub(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	hub := events.NewHub(events.Config{QueueDepth: 16, HeartbeatInterval: time.Hour}, &logger)
	s, _ := newSerializer(t, hub)

	conn, err := hub.Register("observer")
	require.NoError(t, err)

	e1, err := s.Create(ctx, storetest.Fields("E1", special.PriorityHigh, 2_000_000))
	require.NoError(t, err)
	e2, err := s.Create(ctx, storetest.Fields("E2", special.PriorityCritical, 1_000_000))
	require.NoError(t, err)

	active, err := s.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, []string{e2.ID, e1.ID}, []string{active[0].ID, active[1].ID})

	_, err = s.Update(ctx, e1.ID, special.Patch{Priority: special.Ptr(special.PriorityCritical)})
	require.NoError(t, err)
	active, err = s.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{e2.ID, e1.ID}, []string{active[0].ID, active[1].ID})

	_, err = s.Delete(ctx, e2.ID)
	require.NoError(t, err)
	active, err = s.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, e1.ID, active[0].ID)

	hub.Unregister(conn, events.ReasonShutdown)
	var frames []string
	for n := range drain(conn) {
		frames = append(frames, n.Frame()+"("+n.ID+")")
	}
	assert.Equal(t, []string{
		"event:new(" + e1.ID + ")",
		"event:new(" + e2.ID + ")",
		"event:update(" + e1.ID + ")",
		"event:delete(" + e2.ID + ")",
	}, frames)
}

// drain serves a draining connection into a channel.
func drain(conn *events.Connection) <-chan events.Notification {
	out := make(chan events.Notification, 64)
	go func() {
		_ = conn.Serve(context.Background(), chanTransport(out))
	}()
	return out
}

type chanTransport chan events.Notification

func (c chanTransport) WriteNotification(n events.Notification) error {
	c <- n
	return nil
}

func (c chanTransport) WriteHeartbeat() error { return nil }

func (c chanTransport) Close() error {
	close(c)
	return nil
}
