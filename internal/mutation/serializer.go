// Package mutation serializes writes to the special event store and emits
// the resulting change notifications in commit order.
//
// Writes to the same event are applied one at a time. Writes to different
// events commit concurrently, but their notifications reach the hub in
// store revision order, and a write returns only after its notification has
// been handed to the hub.
package mutation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/neowatch/internal/events"
	"github.com/agentstation/neowatch/internal/store"
	"github.com/agentstation/neowatch/pkg/logging"
	"github.com/agentstation/neowatch/pkg/special"
)

// CommitHook runs after a notification has been published, in emission
// order. It must not write through the serializer.
type CommitHook func(n events.Notification)

// Option configures a Serializer.
type Option func(*Serializer)

// WithLogger sets the serializer logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Serializer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGapTimeout sets how long emission waits for a missing sequence.
func WithGapTimeout(d time.Duration) Option {
	return func(s *Serializer) {
		if d > 0 {
			s.gapTimeout = d
		}
	}
}

// OnCommit registers a hook that runs after each published notification.
func OnCommit(hook CommitHook) Option {
	return func(s *Serializer) {
		s.hooks = append(s.hooks, hook)
	}
}

// Serializer is the only path by which the service mutates the store.
type Serializer struct {
	store   store.Store
	log     store.ChangeLog
	locks   *keyedLock
	emitter *emitter
	hooks   []CommitHook

	gapTimeout time.Duration
	logger     *zerolog.Logger
}

// New creates a serializer over st publishing to pub. Emission continues
// from the store's current revision.
func New(ctx context.Context, st store.Store, pub Publisher, opts ...Option) (*Serializer, error) {
	s := &Serializer{
		store:      st,
		locks:      newKeyedLock(),
		gapTimeout: 5 * time.Second,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	rev, err := st.Revision(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading store revision: %w", err)
	}
	s.emitter = newEmitter(pub, rev, s.gapTimeout, s.logger)
	s.emitter.published = s.runHooks
	if log, ok := st.(store.ChangeLog); ok {
		s.log = log
		s.emitter.fill = s.replay
	}
	return s, nil
}

// Create stores a new event and announces it.
func (s *Serializer) Create(ctx context.Context, fields special.Fields) (special.Event, error) {
	if err := ctx.Err(); err != nil {
		return special.Event{}, err
	}
	// A new id cannot be contended, so no entity lock is taken. The commit
	// is not cancelable once started.
	s.emitter.begin()
	commit, err := s.store.Create(context.WithoutCancel(ctx), fields)
	if err != nil {
		s.emitter.abort()
		return special.Event{}, err
	}
	s.announce(ctx, events.Created(commit.Event, commit.Revision))
	return commit.Event, nil
}

// Update applies a partial update and announces it.
func (s *Serializer) Update(ctx context.Context, id string, patch special.Patch) (special.Event, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return special.Event{}, fmt.Errorf("waiting for event %s: %w", id, err)
	}
	defer unlock()

	return s.update(ctx, id, patch)
}

// UpdateIf applies patch only when cond holds for the event's current
// state. cond is evaluated while the event is locked, so no other write
// through this serializer lands between the check and the update. When
// cond does not hold the current event is returned with applied false.
func (s *Serializer) UpdateIf(ctx context.Context, id string, cond func(special.Event) bool, patch special.Patch) (special.Event, bool, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return special.Event{}, false, fmt.Errorf("waiting for event %s: %w", id, err)
	}
	defer unlock()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return special.Event{}, false, err
	}
	if !cond(current) {
		return current, false, nil
	}
	updated, err := s.update(ctx, id, patch)
	if err != nil {
		return special.Event{}, false, err
	}
	return updated, true, nil
}

func (s *Serializer) update(ctx context.Context, id string, patch special.Patch) (special.Event, error) {
	s.emitter.begin()
	commit, err := s.store.Update(context.WithoutCancel(ctx), id, patch)
	if err != nil {
		s.emitter.abort()
		return special.Event{}, err
	}
	s.announce(ctx, events.Updated(commit.Event, commit.Revision))
	return commit.Event, nil
}

// Delete removes an event and announces it. The removed event is returned.
func (s *Serializer) Delete(ctx context.Context, id string) (special.Event, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return special.Event{}, fmt.Errorf("waiting for event %s: %w", id, err)
	}
	defer unlock()

	s.emitter.begin()
	commit, err := s.store.Delete(context.WithoutCancel(ctx), id)
	if err != nil {
		s.emitter.abort()
		return special.Event{}, err
	}
	s.announce(ctx, events.Deleted(commit.Event.ID, commit.Revision))
	return commit.Event, nil
}

func (s *Serializer) announce(ctx context.Context, n events.Notification) {
	s.emitter.emit(n)
	logging.FromContext(ctx).Info().
		Str("event_id", n.ID).
		Str("kind", string(n.Kind)).
		Uint64("sequence", n.Sequence).
		Msg("Mutation committed")
}

func (s *Serializer) runHooks(n events.Notification) {
	for _, hook := range s.hooks {
		hook(n)
	}
}

// replay reads writes made by other processes from the store's change log.
func (s *Serializer) replay(after, upto uint64) []events.Notification {
	ctx, cancel := context.WithTimeout(context.Background(), s.gapTimeout)
	defer cancel()

	changes, err := s.log.Changes(ctx, after, upto)
	if err != nil {
		s.logger.Warn().Err(err).
			Uint64("after", after).
			Uint64("upto", upto).
			Msg("Reading change log failed")
		return nil
	}

	notes := make([]events.Notification, 0, len(changes))
	for _, c := range changes {
		switch c.Op {
		case store.OpCreate:
			notes = append(notes, events.Created(c.Event, c.Revision))
		case store.OpUpdate:
			notes = append(notes, events.Updated(c.Event, c.Revision))
		case store.OpDelete:
			notes = append(notes, events.Deleted(c.Event.ID, c.Revision))
		}
	}
	return notes
}

// Sync publishes writes that other processes made to a shared store since
// the last emitted sequence. It returns how many notifications it
// published. Stores without a change log only have their gap skipped.
func (s *Serializer) Sync(ctx context.Context) (int, error) {
	rev, err := s.store.Revision(ctx)
	if err != nil {
		return 0, err
	}
	return s.emitter.catchUp(rev), nil
}

// Watch calls Sync every interval until ctx is done.
func (s *Serializer) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("Checking store for outside writes failed")
			}
		}
	}
}

// Get reads one event without locking.
func (s *Serializer) Get(ctx context.Context, id string) (special.Event, error) {
	return s.store.Get(ctx, id)
}

// Active reads the active listing without locking.
func (s *Serializer) Active(ctx context.Context) ([]special.Event, error) {
	return s.store.Active(ctx)
}

// Query reads a filtered listing without locking.
func (s *Serializer) Query(ctx context.Context, filter special.Filter) ([]special.Event, error) {
	return s.store.Query(ctx, filter)
}

// Sequence returns the last emitted sequence.
func (s *Serializer) Sequence() uint64 {
	return s.emitter.last()
}
