package sse

import (
	"bufio"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/neowatch/internal/events"
	"github.com/agentstation/neowatch/pkg/special"
)

var _ events.Transport = (*Stream)(nil)

func TestOpenSetsHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	_, err := Open(w)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.True(t, w.Flushed)
}

func TestWriteConnected(t *testing.T) {
	w := httptest.NewRecorder()
	s, err := Open(w)
	require.NoError(t, err)

	require.NoError(t, s.WriteConnected(Connected{ConnectionID: "c1", Sequence: 41}))

	frames := parseFrames(t, w.Body.String())
	require.Len(t, frames, 1)
	assert.Equal(t, "connected", frames[0]["event"])
	assert.JSONEq(t, `{"connectionId":"c1","sequence":41}`, frames[0]["data"])
}

func TestWriteNotification(t *testing.T) {
	w := httptest.NewRecorder()
	s, err := Open(w)
	require.NoError(t, err)

	e := special.Event{ID: "abc", Name: "Oumuamua", Priority: special.PriorityHigh, IsActive: true}
	n := events.Created(e, 42)
	n.EmittedAt = 1000
	require.NoError(t, s.WriteNotification(n))
	require.NoError(t, s.WriteNotification(events.Deleted("abc", 43)))

	frames := parseFrames(t, w.Body.String())
	require.Len(t, frames, 2)

	assert.Equal(t, "event:new", frames[0]["event"])
	assert.Equal(t, "42", frames[0]["id"])
	assert.Contains(t, frames[0]["data"], `"sequence":42`)
	assert.Contains(t, frames[0]["data"], `"emittedAt":1000`)
	assert.Contains(t, frames[0]["data"], `"name":"Oumuamua"`)

	assert.Equal(t, "event:delete", frames[1]["event"])
	assert.Equal(t, "43", frames[1]["id"])
	assert.Contains(t, frames[1]["data"], `"payload":{"id":"abc"}`)
}

func TestHeartbeatAcks(t *testing.T) {
	w := httptest.NewRecorder()
	acks := 0
	s, err := Open(w, OnAck(func() { acks++ }))
	require.NoError(t, err)

	require.NoError(t, s.WriteHeartbeat())
	require.NoError(t, s.WriteHeartbeat())

	assert.Equal(t, 2, acks)
	assert.Contains(t, w.Body.String(), ": heartbeat ")
	assert.Empty(t, parseFrames(t, w.Body.String()), "heartbeats are comments")
}

type failingWriter struct {
	header http.Header
}

func (f *failingWriter) Header() http.Header       { return f.header }
func (f *failingWriter) WriteHeader(int)           {}
func (f *failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }
func (f *failingWriter) Flush()                    {}

func TestWriteErrorsSurface(t *testing.T) {
	acks := 0
	s, err := Open(&failingWriter{header: http.Header{}}, OnAck(func() { acks++ }))
	require.NoError(t, err)

	assert.Error(t, s.WriteNotification(events.Deleted("abc", 1)))
	assert.Error(t, s.WriteHeartbeat())
	assert.Zero(t, acks, "a failed heartbeat is not an ack")
}

type plainWriter struct {
	header http.Header
}

func (p *plainWriter) Header() http.Header         { return p.header }
func (p *plainWriter) WriteHeader(int)             {}
func (p *plainWriter) Write(b []byte) (int, error) { return len(b), nil }

func TestOpenRequiresFlusher(t *testing.T) {
	_, err := Open(&plainWriter{header: http.Header{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, http.ErrNotSupported)
}

func TestClosedStreamRejectsWrites(t *testing.T) {
	s, err := Open(httptest.NewRecorder())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Error(t, s.WriteNotification(events.Deleted("abc", 1)))
	assert.Error(t, s.WriteHeartbeat())
}

// parseFrames splits an SSE body into frames, skipping comments.
func parseFrames(t *testing.T, body string) []map[string]string {
	t.Helper()
	var (
		frames  []map[string]string
		current = map[string]string{}
	)
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if len(current) > 0 {
				frames = append(frames, current)
				current = map[string]string{}
			}
		case strings.HasPrefix(line, ":"):
		default:
			k, v, _ := strings.Cut(line, ": ")
			current[k] = v
		}
	}
	require.NoError(t, sc.Err())
	return frames
}
