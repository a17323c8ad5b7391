package mutation

import (
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/neowatch/internal/events"
)

// Publisher receives notifications in emission order.
type Publisher interface {
	Publish(n events.Notification)
}

// emitter publishes notifications in strictly increasing sequence order.
// Writers on different entities commit concurrently and may reach the
// emitter out of order; a notification is held until every lower sequence
// has been published.
//
// Local writes are counted from begin until emit or abort. A missing
// sequence while no local write is outstanding was written by another
// process; it is replayed through fill when possible and skipped otherwise.
type emitter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	next     uint64
	pending  map[uint64]events.Notification
	inflight int

	pub        Publisher
	published  func(n events.Notification)
	fill       func(after, upto uint64) []events.Notification
	gapTimeout time.Duration
	logger     *zerolog.Logger
}

func newEmitter(pub Publisher, last uint64, gapTimeout time.Duration, logger *zerolog.Logger) *emitter {
	e := &emitter{
		next:       last + 1,
		pending:    make(map[uint64]events.Notification),
		pub:        pub,
		gapTimeout: gapTimeout,
		logger:     logger,
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// begin marks a local write as started. Every begin is followed by exactly
// one emit or abort.
func (e *emitter) begin() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight++
}

// abort marks a local write as failed without a commit.
func (e *emitter) abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight--
	e.cond.Broadcast()
}

// emit hands n to the publisher in sequence order and returns once n has
// been published.
func (e *emitter) emit(n events.Notification) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight--

	if n.Sequence < e.next {
		// Already skipped past; publish rather than lose it.
		e.logger.Warn().
			Uint64("sequence", n.Sequence).
			Uint64("next", e.next).
			Msg("Late notification published out of order")
		e.publishLocked(n)
		return
	}

	e.pending[n.Sequence] = n
	e.drainLocked()
	e.cond.Broadcast()

	if e.next > n.Sequence {
		return
	}

	// If a local writer died between commit and emit, its sequence never
	// arrives; stop waiting for it after gapTimeout.
	timer := time.AfterFunc(e.gapTimeout, e.skipGap)
	defer timer.Stop()
	for e.next <= n.Sequence {
		if e.inflight == 0 {
			e.recoverLocked()
			continue
		}
		e.cond.Wait()
	}
}

// catchUp publishes writes up to rev made by other processes. It does
// nothing while local writes are outstanding, since they resolve any gap
// themselves. It returns how many notifications it published.
func (e *emitter) catchUp(rev uint64) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inflight > 0 || len(e.pending) > 0 || rev < e.next {
		return 0
	}
	from := e.next
	if e.fill != nil {
		for _, n := range e.fill(e.next-1, rev) {
			if n.Sequence >= e.next && n.Sequence <= rev {
				e.pending[n.Sequence] = n
			}
		}
	}
	count := e.skipLocked()
	if e.next <= rev {
		e.logger.Warn().
			Uint64("missing_from", e.next).
			Uint64("missing_to", rev).
			Msg("Sequence gap skipped")
		e.next = rev + 1
	}
	if count > 0 {
		e.logger.Info().
			Uint64("from", from).
			Uint64("to", rev).
			Int("published", count).
			Msg("Caught up with writes from another process")
	}
	e.cond.Broadcast()
	return count
}

func (e *emitter) publishLocked(n events.Notification) {
	e.pub.Publish(n)
	if e.published != nil {
		e.published(n)
	}
}

func (e *emitter) drainLocked() int {
	count := 0
	for {
		n, ok := e.pending[e.next]
		if !ok {
			break
		}
		delete(e.pending, e.next)
		e.publishLocked(n)
		e.next++
		count++
	}
	if count > 0 {
		e.cond.Broadcast()
	}
	return count
}

// recoverLocked fills the gap below the lowest pending sequence from the
// store's change log, then skips whatever is still missing.
func (e *emitter) recoverLocked() {
	if len(e.pending) == 0 {
		return
	}
	lowest := slices.Min(mapKeys(e.pending))
	if lowest > e.next && e.fill != nil {
		for _, n := range e.fill(e.next-1, lowest-1) {
			if n.Sequence >= e.next && n.Sequence < lowest {
				e.pending[n.Sequence] = n
			}
		}
	}
	e.skipLocked()
}

// skipLocked publishes every pending notification, jumping over missing
// sequences.
func (e *emitter) skipLocked() int {
	count := e.drainLocked()
	for len(e.pending) > 0 {
		lowest := slices.Min(mapKeys(e.pending))
		e.logger.Warn().
			Uint64("missing_from", e.next).
			Uint64("missing_to", lowest-1).
			Msg("Sequence gap skipped")
		e.next = lowest
		count += e.drainLocked()
	}
	return count
}

func (e *emitter) skipGap() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pending) == 0 {
		return
	}
	if _, ok := e.pending[e.next]; ok {
		return
	}
	e.recoverLocked()
}

// last returns the last published sequence.
func (e *emitter) last() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.next - 1
}

func mapKeys(m map[uint64]events.Notification) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
