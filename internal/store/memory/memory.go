// Package memory provides an in-memory entity store.
package memory

import (
	"context"
	"sync"

	"github.com/agentstation/neowatch/internal/store"
	"github.com/agentstation/neowatch/pkg/errors"
	"github.com/agentstation/neowatch/pkg/special"
)

// Store is a map-backed store.Store. Writes hold the write lock for the
// whole read-modify-write so the revision bump is atomic with the change.
type Store struct {
	mu       sync.RWMutex
	events   map[string]special.Event
	revision uint64
	closed   bool
	opts     store.Options
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New(opts ...store.Option) *Store {
	return &Store{
		events: make(map[string]special.Event),
		opts:   store.NewOptions(opts...),
	}
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, fields special.Fields) (store.Commit, error) {
	if err := ctx.Err(); err != nil {
		return store.Commit{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.Commit{}, errors.ErrClosed
	}

	e, err := special.New(s.opts.NewID(), fields, s.opts.NowMillis())
	if err != nil {
		return store.Commit{}, err
	}
	if _, exists := s.events[e.ID]; exists {
		return store.Commit{}, errors.NewConflictError("event", e.ID, "id already exists")
	}

	s.events[e.ID] = e
	s.revision++
	return store.Commit{Event: e.Clone(), Revision: s.revision}, nil
}

// Query implements store.Store.
func (s *Store) Query(ctx context.Context, filter special.Filter) ([]special.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.ErrClosed
	}

	out := make([]special.Event, 0, len(s.events))
	for _, e := range s.events {
		if filter.Match(e) {
			out = append(out, e.Clone())
		}
	}
	special.Sort(out, s.opts.TieBreak)
	return out, nil
}

// Active implements store.Store.
func (s *Store) Active(ctx context.Context) ([]special.Event, error) {
	return s.Query(ctx, special.Active())
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (special.Event, error) {
	if err := ctx.Err(); err != nil {
		return special.Event{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return special.Event{}, errors.ErrClosed
	}

	e, ok := s.events[id]
	if !ok {
		return special.Event{}, errors.NewNotFoundError("event", id)
	}
	return e.Clone(), nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, id string, patch special.Patch) (store.Commit, error) {
	if err := ctx.Err(); err != nil {
		return store.Commit{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.Commit{}, errors.ErrClosed
	}

	current, ok := s.events[id]
	if !ok {
		return store.Commit{}, errors.NewNotFoundError("event", id)
	}
	updated, err := current.Apply(patch, s.opts.NowMillis())
	if err != nil {
		return store.Commit{}, err
	}

	s.events[id] = updated
	s.revision++
	return store.Commit{Event: updated.Clone(), Revision: s.revision}, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, id string) (store.Commit, error) {
	if err := ctx.Err(); err != nil {
		return store.Commit{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.Commit{}, errors.ErrClosed
	}

	removed, ok := s.events[id]
	if !ok {
		return store.Commit{}, errors.NewNotFoundError("event", id)
	}

	delete(s.events, id)
	s.revision++
	return store.Commit{Event: removed, Revision: s.revision}, nil
}

// Revision implements store.Store.
func (s *Store) Revision(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision, nil
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
