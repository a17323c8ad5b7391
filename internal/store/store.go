// Package store defines the entity store for special events and the options
// shared by its implementations.
//
// Every successful write bumps a store-wide revision in the same atomic step
// as the write itself. Revisions are dense and strictly increasing, so they
// define the global commit order that change notifications are emitted in.
package store

import (
	"context"

	"github.com/agentstation/neowatch/pkg/special"
)

// Store is durable keyed storage for special events.
//
// Reads observe the latest committed state. Writes fail with a not-found
// error for unknown ids and a validation error for invalid input; a failed
// write does not change the revision.
type Store interface {
	// Create assigns an id and timestamps and stores a new event.
	Create(ctx context.Context, fields special.Fields) (Commit, error)

	// Query returns the events matching filter in listing order.
	Query(ctx context.Context, filter special.Filter) ([]special.Event, error)

	// Active returns the active events in listing order.
	Active(ctx context.Context) ([]special.Event, error)

	// Get returns one event.
	Get(ctx context.Context, id string) (special.Event, error)

	// Update applies a partial update.
	Update(ctx context.Context, id string, patch special.Patch) (Commit, error)

	// Delete removes an event and returns it as it was.
	Delete(ctx context.Context, id string) (Commit, error)

	// Revision returns the revision of the last successful write.
	Revision(ctx context.Context) (uint64, error)

	// Close releases the store's resources.
	Close() error
}

// Commit is the result of a successful write.
type Commit struct {
	// Event is the stored entity after the write, or the removed entity for
	// a delete.
	Event special.Event

	// Revision is the store revision this write produced.
	Revision uint64
}

// Op is the kind of write a change records.
type Op string

// Write kinds.
const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is one committed write as recorded by a ChangeLog.
type Change struct {
	Revision uint64
	Op       Op

	// Event is the entity after the write, or the removed entity for a
	// delete.
	Event special.Event
}

// ChangeLog is implemented by stores that several processes can write to.
// It lets a process learn about writes it did not make.
type ChangeLog interface {
	// Changes returns the recorded changes with after < Revision <= upto
	// in revision order. Changes older than the store's retention are
	// missing from the result.
	Changes(ctx context.Context, after, upto uint64) ([]Change, error)
}
