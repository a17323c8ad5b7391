// Package sqlstore provides a SQL-backed entity store using sqlx. SQLite
// (driver "sqlite3") and PostgreSQL (driver "pgx") are supported.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver

	"github.com/agentstation/neowatch/internal/store"
	"github.com/agentstation/neowatch/pkg/errors"
	"github.com/agentstation/neowatch/pkg/special"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// changeRetention is how many revisions of change log are kept.
const changeRetention = 10_000

// Store is a store.Store over a SQL database. Each write runs in one
// transaction that also bumps the single-row revision table and appends to
// the change log, so the write, its revision and its log entry commit
// together.
type Store struct {
	db   *sqlx.DB
	opts store.Options
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.ChangeLog = (*Store)(nil)
)

// Open connects to the database and applies the schema.
func Open(ctx context.Context, driver, dsn string, opts ...store.Option) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, errors.NewConfigError("store", fmt.Sprintf("unsupported driver %q", driver), nil)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.WrapResource("open", "store", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows one writer; a single connection also keeps
		// ":memory:" databases alive across calls.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, opts: store.NewOptions(opts...)}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.WrapResource("migrate", "store", "", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.WrapResource("migrate", "store", "", err)
		}
	}
	return tx.Commit()
}

// DB exposes the underlying handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, fields special.Fields) (store.Commit, error) {
	e, err := special.New(s.opts.NewID(), fields, s.opts.NowMillis())
	if err != nil {
		return store.Commit{}, err
	}
	r, err := fromEvent(e)
	if err != nil {
		return store.Commit{}, err
	}

	var commit store.Commit
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertEventSQL, r); err != nil {
			return err
		}
		rev, err := bumpRevision(ctx, tx)
		if err != nil {
			return err
		}
		if err := recordChange(ctx, tx, rev, store.OpCreate, r); err != nil {
			return err
		}
		commit = store.Commit{Event: e, Revision: rev}
		return nil
	})
	if err != nil {
		return store.Commit{}, errors.WrapResource("create", "event", e.ID, err)
	}
	return commit, nil
}

// Query implements store.Store. Filtering runs in SQL; ordering runs in Go
// so both drivers share one ordering.
func (s *Store) Query(ctx context.Context, filter special.Filter) ([]special.Event, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	query, args, err := buildQuery(filter)
	if err != nil {
		return nil, errors.WrapResource("query", "event", "", err)
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, errors.WrapResource("query", "event", "", err)
	}

	events := make([]special.Event, 0, len(rows))
	for _, r := range rows {
		e, err := toEvent(r)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	special.Sort(events, s.opts.TieBreak)
	return events, nil
}

func buildQuery(filter special.Filter) (string, []any, error) {
	query := `SELECT ` + eventColumns + ` FROM special_events WHERE 1 = 1`
	var args []any

	if filter.ActiveOnly {
		query += ` AND COALESCE(is_active, TRUE) = TRUE`
	}
	if len(filter.Types) > 0 {
		query += ` AND type IN (?)`
		args = append(args, strs(filter.Types))
	}
	if len(filter.Origins) > 0 {
		query += ` AND origin IN (?)`
		args = append(args, strs(filter.Origins))
	}
	if filter.MinPriority != "" {
		var allowed []string
		for _, p := range special.Priorities() {
			if p.Rank() >= filter.MinPriority.Rank() {
				allowed = append(allowed, p.String())
			}
		}
		query += ` AND priority IN (?)`
		args = append(args, allowed)
	}

	if len(args) == 0 {
		return query, nil, nil
	}
	return sqlx.In(query, args...)
}

func strs[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// Active implements store.Store.
func (s *Store) Active(ctx context.Context) ([]special.Event, error) {
	return s.Query(ctx, special.Active())
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (special.Event, error) {
	r, err := getRow(ctx, s.db, s.db.Rebind(selectEventSQL), id)
	if err != nil {
		return special.Event{}, err
	}
	return toEvent(r)
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, id string, patch special.Patch) (store.Commit, error) {
	var commit store.Commit
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		r, err := getRow(ctx, tx, tx.Rebind(selectEventSQL), id)
		if err != nil {
			return err
		}
		current, err := toEvent(r)
		if err != nil {
			return err
		}
		updated, err := current.Apply(patch, s.opts.NowMillis())
		if err != nil {
			return err
		}
		next, err := fromEvent(updated)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, updateEventSQL, next); err != nil {
			return err
		}
		rev, err := bumpRevision(ctx, tx)
		if err != nil {
			return err
		}
		if err := recordChange(ctx, tx, rev, store.OpUpdate, next); err != nil {
			return err
		}
		commit = store.Commit{Event: updated, Revision: rev}
		return nil
	})
	if err != nil {
		return store.Commit{}, errors.WrapResource("update", "event", id, err)
	}
	return commit, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, id string) (store.Commit, error) {
	var commit store.Commit
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		r, err := getRow(ctx, tx, tx.Rebind(selectEventSQL), id)
		if err != nil {
			return err
		}
		removed, err := toEvent(r)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(deleteEventSQL), id); err != nil {
			return err
		}
		rev, err := bumpRevision(ctx, tx)
		if err != nil {
			return err
		}
		if err := recordChange(ctx, tx, rev, store.OpDelete, r); err != nil {
			return err
		}
		commit = store.Commit{Event: removed, Revision: rev}
		return nil
	})
	if err != nil {
		return store.Commit{}, errors.WrapResource("delete", "event", id, err)
	}
	return commit, nil
}

// Revision implements store.Store.
func (s *Store) Revision(ctx context.Context) (uint64, error) {
	var rev int64
	if err := s.db.GetContext(ctx, &rev, selectRevisionSQL); err != nil {
		return 0, errors.WrapResource("fetch", "store", "revision", err)
	}
	return uint64(rev), nil
}

// Changes implements store.ChangeLog.
func (s *Store) Changes(ctx context.Context, after, upto uint64) ([]store.Change, error) {
	var entries []struct {
		Revision int64  `db:"revision"`
		Op       string `db:"op"`
		Payload  string `db:"payload"`
	}
	if err := s.db.SelectContext(ctx, &entries, s.db.Rebind(selectChangesSQL), int64(after), int64(upto)); err != nil {
		return nil, errors.WrapResource("fetch", "changes", "", err)
	}

	changes := make([]store.Change, 0, len(entries))
	for _, entry := range entries {
		var r row
		if err := json.Unmarshal([]byte(entry.Payload), &r); err != nil {
			return nil, errors.NewResourceError("fetch", "changes", fmt.Sprint(entry.Revision), err)
		}
		e, err := toEvent(r)
		if err != nil {
			return nil, err
		}
		changes = append(changes, store.Change{
			Revision: uint64(entry.Revision),
			Op:       store.Op(entry.Op),
			Event:    e,
		})
	}
	return changes, nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func bumpRevision(ctx context.Context, tx *sqlx.Tx) (uint64, error) {
	var rev int64
	if err := tx.GetContext(ctx, &rev, bumpRevisionSQL); err != nil {
		return 0, fmt.Errorf("bump revision: %w", err)
	}
	return uint64(rev), nil
}

// recordChange appends a write to the change log and drops entries that
// fell out of retention.
func recordChange(ctx context.Context, tx *sqlx.Tx, rev uint64, op store.Op, r row) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(insertChangeSQL), int64(rev), string(op), r.ID, string(payload)); err != nil {
		return fmt.Errorf("record change: %w", err)
	}
	if rev > changeRetention {
		if _, err := tx.ExecContext(ctx, tx.Rebind(pruneChangesSQL), int64(rev-changeRetention)); err != nil {
			return fmt.Errorf("prune changes: %w", err)
		}
	}
	return nil
}

func getRow(ctx context.Context, q sqlx.QueryerContext, query, id string) (row, error) {
	var r row
	if err := sqlx.GetContext(ctx, q, &r, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return row{}, errors.NewNotFoundError("event", id)
		}
		return row{}, err
	}
	return r, nil
}
