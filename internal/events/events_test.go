package events_test

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/neowatch/internal/events"
	"github.com/agentstation/neowatch/pkg/errors"
	"github.com/agentstation/neowatch/pkg/special"
)

const waitFor = 2 * time.Second

// recorder is an in-memory transport.
type recorder struct {
	mu         sync.Mutex
	got        []events.Notification
	heartbeats int
	closed     bool

	writeErr    error
	writeDelay  time.Duration
	onHeartbeat func()
}

func (r *recorder) WriteNotification(n events.Notification) error {
	if r.writeDelay > 0 {
		time.Sleep(r.writeDelay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	r.got = append(r.got, n)
	return nil
}

func (r *recorder) WriteHeartbeat() error {
	r.mu.Lock()
	r.heartbeats++
	ack := r.onHeartbeat
	r.mu.Unlock()
	if ack != nil {
		ack()
	}
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) sequences() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(r.got))
	for i, n := range r.got {
		out[i] = n.Sequence
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func (r *recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func newHub(cfg events.Config) *events.Hub {
	logger := zerolog.Nop()
	return events.NewHub(cfg, &logger)
}

func serve(t *testing.T, ctx context.Context, c *events.Connection, tr events.Transport) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- c.Serve(ctx, tr) }()
	return errc
}

func note(seq uint64) events.Notification {
	e := special.Event{ID: fmt.Sprintf("evt-%d", seq), Name: "n"}
	return events.Updated(e, seq)
}

func TestPublishDeliversInOrder(t *testing.T) {
	hub := newHub(events.Config{QueueDepth: 16, HeartbeatInterval: time.Hour})
	conn, err := hub.Register("c1")
	require.NoError(t, err)
	assert.Equal(t, events.StateConnected, conn.State())

	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serve(t, ctx, conn, rec)

	for seq := uint64(1); seq <= 10; seq++ {
		hub.Publish(note(seq))
	}

	require.Eventually(t, func() bool { return rec.count() == 10 }, waitFor, time.Millisecond)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, rec.sequences())

	rec.mu.Lock()
	assert.NotZero(t, rec.got[0].EmittedAt)
	rec.mu.Unlock()
	assert.Equal(t, uint64(10), hub.LastSequence())
}

func TestRegisterReceivesOnlyLaterNotifications(t *testing.T) {
	hub := newHub(events.Config{QueueDepth: 16, HeartbeatInterval: time.Hour})
	hub.Publish(note(1))
	hub.Publish(note(2))

	conn, err := hub.Register("late")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), conn.StartSequence())
	assert.Equal(t, 0, conn.Pending())

	hub.Publish(note(3))
	assert.Equal(t, 1, conn.Pending())
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	hub := newHub(events.Config{})
	_, err := hub.Register("c1")
	require.NoError(t, err)
	_, err = hub.Register("c1")
	assert.True(t, errors.IsConflict(err))
}

func TestSlowConsumerIsEvicted(t *testing.T) {
	hub := newHub(events.Config{QueueDepth: 3, HeartbeatInterval: time.Hour})

	slow, err := hub.Register("slow")
	require.NoError(t, err)
	fast, err := hub.Register("fast")
	require.NoError(t, err)

	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serve(t, ctx, fast, rec)

	for seq := uint64(1); seq <= 3; seq++ {
		hub.Publish(note(seq))
	}
	assert.Equal(t, events.StateConnected, slow.State())
	require.Eventually(t, func() bool { return rec.count() == 3 }, waitFor, time.Millisecond)

	// The fourth notification exceeds the slow queue.
	hub.Publish(note(4))
	assert.Equal(t, events.StateDraining, slow.State())
	assert.Equal(t, events.ReasonSlowConsumer, slow.Reason())
	assert.Equal(t, 1, hub.ConnectionCount())

	require.Eventually(t, func() bool { return rec.count() == 4 }, waitFor, time.Millisecond)
	for seq := uint64(5); seq <= 20; seq++ {
		hub.Publish(note(seq))
		want := int(seq)
		require.Eventually(t, func() bool { return rec.count() == want }, waitFor, time.Millisecond)
	}
	assert.Equal(t, events.StateConnected, fast.State())

	stats := hub.Stats()
	assert.Equal(t, uint64(1), stats.Evicted)
	assert.Equal(t, uint64(20), stats.Published)
	assert.Equal(t, 1, stats.Connections)
}

func TestDrainingFlushesQueuedNotifications(t *testing.T) {
	hub := newHub(events.Config{QueueDepth: 8, HeartbeatInterval: time.Hour, FlushTimeout: time.Second})
	conn, err := hub.Register("c1")
	require.NoError(t, err)

	hub.Publish(note(1))
	hub.Publish(note(2))
	hub.Publish(note(3))
	hub.Unregister(conn, events.ReasonShutdown)
	hub.Unregister(conn, events.ReasonShutdown)
	assert.Equal(t, events.StateDraining, conn.State())

	hub.Publish(note(4))

	rec := &recorder{}
	errc := serve(t, context.Background(), conn, rec)

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("connection did not close")
	}
	assert.Equal(t, []uint64{1, 2, 3}, rec.sequences())
	assert.True(t, rec.isClosed())
	assert.Equal(t, events.StateClosed, conn.State())
	assert.Equal(t, uint64(1), hub.Stats().Disconnected)
}

func TestFlushTimeoutBoundsDraining(t *testing.T) {
	hub := newHub(events.Config{QueueDepth: 64, HeartbeatInterval: time.Hour, FlushTimeout: 30 * time.Millisecond})
	conn, err := hub.Register("c1")
	require.NoError(t, err)

	for seq := uint64(1); seq <= 50; seq++ {
		hub.Publish(note(seq))
	}
	hub.Unregister(conn, events.ReasonShutdown)

	rec := &recorder{writeDelay: 10 * time.Millisecond}
	errc := serve(t, context.Background(), conn, rec)

	select {
	case <-errc:
	case <-time.After(waitFor):
		t.Fatal("flush timeout did not close the connection")
	}
	assert.Less(t, rec.count(), 50)
	assert.Equal(t, events.StateClosed, conn.State())
}

func TestClientDisconnect(t *testing.T) {
	hub := newHub(events.Config{QueueDepth: 8, HeartbeatInterval: time.Hour})
	conn, err := hub.Register("c1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	errc := serve(t, ctx, conn, rec)
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("serve did not return")
	}
	assert.Equal(t, events.ReasonDisconnect, conn.Reason())
	assert.Equal(t, 0, hub.ConnectionCount())
	<-conn.Done()
}

func TestTransportFailureIsIsolated(t *testing.T) {
	hub := newHub(events.Config{QueueDepth: 8, HeartbeatInterval: time.Hour})
	broken, err := hub.Register("broken")
	require.NoError(t, err)
	healthy, err := hub.Register("healthy")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bad := &recorder{writeErr: stderrors.New("connection reset")}
	good := &recorder{}
	errc := serve(t, ctx, broken, bad)
	serve(t, ctx, healthy, good)

	hub.Publish(note(1))

	select {
	case err := <-errc:
		assert.True(t, errors.IsTransport(err))
	case <-time.After(waitFor):
		t.Fatal("broken connection did not close")
	}
	assert.Equal(t, events.ReasonTransport, broken.Reason())

	hub.Publish(note(2))
	require.Eventually(t, func() bool { return good.count() == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, uint64(1), hub.Stats().TransportFailures)
}

func TestUnacknowledgedHeartbeatsReap(t *testing.T) {
	hub := newHub(events.Config{QueueDepth: 8, HeartbeatInterval: 10 * time.Millisecond, HeartbeatMisses: 2})
	conn, err := hub.Register("c1")
	require.NoError(t, err)

	rec := &recorder{}
	serve(t, context.Background(), conn, rec)

	select {
	case <-conn.Done():
	case <-time.After(waitFor):
		t.Fatal("unresponsive connection was not reaped")
	}
	assert.Equal(t, events.ReasonHeartbeat, conn.Reason())
	assert.Equal(t, uint64(1), hub.Stats().Reaped)

	rec.mu.Lock()
	assert.GreaterOrEqual(t, rec.heartbeats, 1)
	rec.mu.Unlock()
}

func TestAcknowledgedHeartbeatsKeepConnection(t *testing.T) {
	hub := newHub(events.Config{QueueDepth: 8, HeartbeatInterval: 5 * time.Millisecond, HeartbeatMisses: 2})
	conn, err := hub.Register("c1")
	require.NoError(t, err)

	rec := &recorder{onHeartbeat: conn.Touch}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serve(t, ctx, conn, rec)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, events.StateConnected, conn.State())

	rec.mu.Lock()
	assert.Greater(t, rec.heartbeats, 3)
	rec.mu.Unlock()
}

func TestCloseRejectsRegistration(t *testing.T) {
	hub := newHub(events.Config{})
	conn, err := hub.Register("c1")
	require.NoError(t, err)
	assert.False(t, hub.Closed())

	hub.Close()
	assert.True(t, hub.Closed())
	assert.Equal(t, events.StateDraining, conn.State())
	assert.Equal(t, events.ReasonShutdown, conn.Reason())

	_, err = hub.Register("c2")
	assert.True(t, errors.IsClosed(err))
}

func TestNotificationJSON(t *testing.T) {
	e := special.Event{ID: "evt-1", Name: "E1", Priority: special.PriorityHigh}
	created := events.Created(e, 7)
	created.EmittedAt = 1234

	data, err := json.Marshal(created)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "event:new", wire["type"])
	assert.Equal(t, float64(7), wire["sequence"])
	assert.Equal(t, float64(1234), wire["emittedAt"])
	assert.Equal(t, "E1", wire["payload"].(map[string]any)["name"])

	data, err = json.Marshal(events.Deleted("evt-1", 8))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"event:delete","sequence":8,"emittedAt":0,"payload":{"id":"evt-1"}}`, string(data))

	assert.Equal(t, "event:update", events.Updated(e, 9).Frame())
}
