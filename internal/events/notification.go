// Package events fans committed special-event changes out to observer
// connections.
//
// A Hub owns the registry of live connections. Each Connection owns a
// bounded queue that only the hub writes to and only the connection's
// writer reads from. Publishing never blocks: a connection whose queue is
// full is evicted, and the rest keep receiving notifications in order.
package events

import (
	"encoding/json"

	"github.com/agentstation/neowatch/pkg/special"
)

// Kind is the kind of change a notification announces.
type Kind string

// Notification kinds.
const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
)

// Frame names as seen by streaming clients.
const (
	FrameNew    = "event:new"
	FrameUpdate = "event:update"
	FrameDelete = "event:delete"
)

// Frame returns the streaming frame name for the kind.
func (k Kind) Frame() string {
	switch k {
	case KindCreated:
		return FrameNew
	case KindUpdated:
		return FrameUpdate
	case KindDeleted:
		return FrameDelete
	default:
		return string(k)
	}
}

// Notification announces one committed change. It is never persisted.
type Notification struct {
	Kind Kind

	// Sequence is the store revision of the change. Sequences are strictly
	// increasing in emission order.
	Sequence uint64

	// EmittedAt is set by the hub at fan-out, in epoch milliseconds.
	EmittedAt int64

	// Event is the full entity for created and updated notifications.
	Event *special.Event

	// ID is the entity id, set for every kind.
	ID string
}

// Created returns the notification for a newly created event.
func Created(e special.Event, seq uint64) Notification {
	return Notification{Kind: KindCreated, Sequence: seq, Event: &e, ID: e.ID}
}

// Updated returns the notification for an updated event.
func Updated(e special.Event, seq uint64) Notification {
	return Notification{Kind: KindUpdated, Sequence: seq, Event: &e, ID: e.ID}
}

// Deleted returns the notification for a removed event. Only the id is sent.
func Deleted(id string, seq uint64) Notification {
	return Notification{Kind: KindDeleted, Sequence: seq, ID: id}
}

// Frame returns the streaming frame name.
func (n Notification) Frame() string {
	return n.Kind.Frame()
}

// Payload returns what clients receive: the entity, or {id} for deletes.
func (n Notification) Payload() any {
	if n.Kind == KindDeleted || n.Event == nil {
		return deletedPayload{ID: n.ID}
	}
	return n.Event
}

type deletedPayload struct {
	ID string `json:"id"`
}

type wireNotification struct {
	Type      string `json:"type"`
	Sequence  uint64 `json:"sequence"`
	EmittedAt int64  `json:"emittedAt"`
	Payload   any    `json:"payload"`
}

// MarshalJSON implements json.Marshaler.
func (n Notification) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireNotification{
		Type:      n.Frame(),
		Sequence:  n.Sequence,
		EmittedAt: n.EmittedAt,
		Payload:   n.Payload(),
	})
}
