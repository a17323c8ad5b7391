// Package archive deactivates special events whose passage is long over.
//
// The archiver runs on a cron schedule and writes through the mutation
// path, so every deactivation reaches observers as an update.
package archive

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/agentstation/neowatch/pkg/errors"
	"github.com/agentstation/neowatch/pkg/logging"
	"github.com/agentstation/neowatch/pkg/special"
)

// Mutator is the slice of the mutation path the archiver needs. UpdateIf
// must evaluate cond and apply patch without another write in between.
type Mutator interface {
	Query(ctx context.Context, filter special.Filter) ([]special.Event, error)
	UpdateIf(ctx context.Context, id string, cond func(special.Event) bool, patch special.Patch) (special.Event, bool, error)
}

// Config configures the archiver.
type Config struct {
	// Schedule is a standard five-field cron expression, or a descriptor
	// such as "@hourly".
	Schedule string `mapstructure:"schedule"`

	// Grace is how long after its event time an event stays active.
	Grace time.Duration `mapstructure:"grace"`
}

// DefaultConfig returns the default archiver configuration.
func DefaultConfig() Config {
	return Config{
		Schedule: "@hourly",
		Grace:    72 * time.Hour,
	}
}

// Archiver periodically marks past events inactive.
type Archiver struct {
	events   Mutator
	cfg      Config
	schedule cron.Schedule
	logger   *zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	stopped chan struct{}
}

// New validates cfg and creates an archiver.
func New(events Mutator, cfg Config, logger *zerolog.Logger) (*Archiver, error) {
	if cfg.Grace < 0 {
		return nil, errors.NewConfigError("archive", "grace must not be negative", nil)
	}
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, errors.NewConfigError("archive", "invalid schedule "+cfg.Schedule, err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Archiver{
		events:   events,
		cfg:      cfg,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// RunOnce deactivates every active event older than the grace period and
// returns how many it changed. Each event is checked again at the moment
// it is deactivated, so events deleted, deactivated or moved later since
// the listing are skipped.
func (a *Archiver) RunOnce(ctx context.Context) (int, error) {
	cutoff := a.now().Add(-a.cfg.Grace).UnixMilli()
	expired := func(e special.Event) bool {
		return e.IsActive && e.EventTimestamp < cutoff
	}

	active, err := a.events.Query(ctx, special.Active())
	if err != nil {
		return 0, err
	}

	inactive := false
	archived := 0
	for _, e := range active {
		if !expired(e) {
			continue
		}
		_, applied, err := a.events.UpdateIf(ctx, e.ID, expired, special.Patch{IsActive: &inactive})
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return archived, err
		}
		if !applied {
			a.logger.Debug().Str("event_id", e.ID).Msg("Event changed since listing; not archived")
			continue
		}
		archived++
		a.logger.Debug().Str("event_id", e.ID).Str("name", e.Name).Msg("Archived event")
	}
	return archived, nil
}

// Start schedules the archiver. It stops when ctx is done or Stop is called.
func (a *Archiver) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cron != nil {
		return
	}

	l := cronLogger{logger: a.logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
	c.Schedule(a.schedule, cron.FuncJob(func() {
		n, err := a.RunOnce(ctx)
		if err != nil {
			a.logger.Error().Err(err).Int("archived", n).Msg("Archive run failed")
			return
		}
		if n > 0 {
			a.logger.Info().Int("archived", n).Msg("Archive run completed")
		}
	}))
	c.Start()
	stopped := make(chan struct{})
	a.cron = c
	a.stopped = stopped

	a.logger.Info().
		Str("schedule", a.cfg.Schedule).
		Dur("grace", a.cfg.Grace).
		Time("next_run", a.schedule.Next(a.now().UTC())).
		Msg("Archiver started")

	go func() {
		select {
		case <-ctx.Done():
			a.stop(c)
		case <-stopped:
		}
	}()
}

// Stop stops the schedule and waits for a running job to finish.
func (a *Archiver) Stop() {
	a.mu.Lock()
	c := a.cron
	a.mu.Unlock()
	if c != nil {
		a.stop(c)
	}
}

// stop stops c if it is still the running schedule.
func (a *Archiver) stop(c *cron.Cron) {
	a.mu.Lock()
	if a.cron != c {
		a.mu.Unlock()
		return
	}
	a.cron = nil
	close(a.stopped)
	a.stopped = nil
	a.mu.Unlock()
	<-c.Stop().Done()
}

// Next returns the next scheduled run after t.
func (a *Archiver) Next(t time.Time) time.Time {
	return a.schedule.Next(t)
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct {
	logger *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
