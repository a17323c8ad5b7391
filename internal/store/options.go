package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/agentstation/neowatch/pkg/special"
)

// Option configures a store implementation.
type Option func(*Options)

// Options holds the settings shared by store implementations.
type Options struct {
	TieBreak special.TieBreak
	Now      func() time.Time
	NewID    func() string
}

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) Options {
	o := Options{
		TieBreak: special.TieBreakSoonest,
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NowMillis returns the configured clock in epoch milliseconds.
func (o Options) NowMillis() int64 {
	return o.Now().UnixMilli()
}

// WithTieBreak sets how equal-priority events are ordered in listings.
func WithTieBreak(tb special.TieBreak) Option {
	return func(o *Options) {
		if tb != "" {
			o.TieBreak = tb
		}
	}
}

// WithClock overrides the commit clock.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

// WithIDGenerator overrides how new event ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(o *Options) {
		if newID != nil {
			o.NewID = newID
		}
	}
}
