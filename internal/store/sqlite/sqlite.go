// Package sqlite persists the store tree in a single SQLite table so that
// the API server and the worker can share one local database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"charity/internal/store"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Store struct {
	db   *sql.DB
	poll time.Duration

	// writes serialises local transactions; SQLite locks the file for
	// writers in other processes.
	writes sync.Mutex
	notify store.Notifier

	closeOnce sync.Once
	closed    chan struct{}
}

var _ store.Store = (*Store)(nil)

// New opens (creating if needed) the database at dbPath and applies
// migrations. Subscriptions re-read every poll interval to observe writes
// made by other processes; zero disables polling.
func New(dbPath string, poll time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite store opened", "path", dbPath, "poll_interval", poll)
	return NewWithDB(db, poll), nil
}

// NewWithDB wraps an already migrated database.
func NewWithDB(db *sql.DB, poll time.Duration) *Store {
	db.SetMaxOpenConns(1)
	return &Store{db: db, poll: poll, closed: make(chan struct{})}
}

func (s *Store) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Store) Get(ctx context.Context, p store.Path) (json.RawMessage, error) {
	if s.isClosed() {
		return nil, store.WrapErr("get", p, store.ErrClosed)
	}
	node, err := read(ctx, s.db, p)
	if err != nil {
		return nil, store.WrapErr("get", p, err)
	}
	if node == nil {
		return nil, store.ErrNotFound
	}
	raw, err := store.Encode(node)
	return raw, store.WrapErr("get", p, err)
}

func (s *Store) Set(ctx context.Context, p store.Path, value any) error {
	if s.isClosed() {
		return store.WrapErr("set", p, store.ErrClosed)
	}
	node, err := store.Normalize(value)
	if err != nil {
		return store.WrapErr("set", p, err)
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		return write(ctx, tx, p, node)
	})
	if err != nil {
		return store.WrapErr("set", p, err)
	}
	s.notify.Notify(p)
	return nil
}

func (s *Store) Push(ctx context.Context, p store.Path) (store.Path, error) {
	if s.isClosed() {
		return store.Path{}, store.WrapErr("push", p, store.ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return store.Path{}, store.WrapErr("push", p, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return store.Path{}, store.WrapErr("push", p, err)
	}
	child, err := p.Child(id.String())
	return child, store.WrapErr("push", p, err)
}

// errAbort carries an UpdateFunc error out of the transaction untouched.
type errAbort struct{ err error }

func (e errAbort) Error() string { return e.err.Error() }

func (s *Store) Update(ctx context.Context, p store.Path, fn store.UpdateFunc) error {
	if s.isClosed() {
		return store.WrapErr("update", p, store.ErrClosed)
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := read(ctx, tx, p)
		if err != nil {
			return err
		}
		raw, err := store.Encode(cur)
		if err != nil {
			return err
		}
		next, err := fn(raw)
		if err != nil {
			return errAbort{err}
		}
		node, err := store.Normalize(next)
		if err != nil {
			return err
		}
		return write(ctx, tx, p, node)
	})
	var abort errAbort
	if errors.As(err, &abort) {
		return abort.err
	}
	if err != nil {
		return store.WrapErr("update", p, err)
	}
	s.notify.Notify(p)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, p store.Path) (*store.Subscription, error) {
	if s.isClosed() {
		return nil, store.WrapErr("subscribe", p, store.ErrClosed)
	}
	kick, stop := s.notify.Register(p)
	get := func(ctx context.Context) (json.RawMessage, error) {
		return s.Get(ctx, p)
	}
	return store.Watch(ctx, p, get, store.WatchOptions{Kick: kick, Interval: s.poll, OnStop: stop}), nil
}

func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.notify.Notify(store.Path{})
		err = s.db.Close()
	})
	return err
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.writes.Lock()
	defer s.writes.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// lineage returns the stored keys of p and all its ancestors, root first.
func lineage(p store.Path) []any {
	segs := p.Segments()
	out := make([]any, 0, len(segs)+1)
	out = append(out, "")
	for i := range segs {
		out = append(out, strings.Join(segs[:i+1], "/"))
	}
	return out
}

func descendantPrefix(p store.Path) string {
	if p.IsRoot() {
		return ""
	}
	return p.String() + "/"
}

func relative(base, full string) []string {
	rest := strings.TrimPrefix(strings.TrimPrefix(full, base), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// enclosing finds the row stored at p or one of its ancestors.
func enclosing(ctx context.Context, q querier, p store.Path) (string, any, bool, error) {
	keys := lineage(p)
	query := "SELECT path, value FROM nodes WHERE path IN (?" + strings.Repeat(", ?", len(keys)-1) + ") ORDER BY length(path) LIMIT 1"
	rows, err := q.QueryContext(ctx, query, keys...)
	if err != nil {
		return "", nil, false, fmt.Errorf("query enclosing node: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return "", nil, false, rows.Err()
	}
	var path, value string
	if err := rows.Scan(&path, &value); err != nil {
		return "", nil, false, fmt.Errorf("scan node: %w", err)
	}
	node, err := store.Decode([]byte(value))
	if err != nil {
		return "", nil, false, err
	}
	return path, node, true, nil
}

func read(ctx context.Context, q querier, p store.Path) (any, error) {
	base, node, ok, err := enclosing(ctx, q, p)
	if err != nil {
		return nil, err
	}
	if ok {
		v, _ := store.TreeGet(node, relative(base, p.String()))
		return v, nil
	}

	prefix := descendantPrefix(p)
	rows, err := q.QueryContext(ctx,
		"SELECT path, value FROM nodes WHERE substr(path, 1, ?) = ? ORDER BY path",
		len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("query descendants: %w", err)
	}
	defer rows.Close()

	var tree any
	for rows.Next() {
		var path, value string
		if err := rows.Scan(&path, &value); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		child, err := store.Decode([]byte(value))
		if err != nil {
			return nil, err
		}
		tree = store.TreeSet(tree, relative(p.String(), path), child)
	}
	return tree, rows.Err()
}

func write(ctx context.Context, q querier, p store.Path, node any) error {
	base, enc, ok, err := enclosing(ctx, q, p)
	if err != nil {
		return err
	}
	if ok && base != p.String() {
		return put(ctx, q, base, store.TreeSet(enc, relative(base, p.String()), node))
	}

	prefix := descendantPrefix(p)
	if _, err := q.ExecContext(ctx,
		"DELETE FROM nodes WHERE path = ? OR substr(path, 1, ?) = ?",
		p.String(), len(prefix), prefix); err != nil {
		return fmt.Errorf("delete subtree: %w", err)
	}
	if node == nil {
		return nil
	}
	return put(ctx, q, p.String(), node)
}

func put(ctx context.Context, q querier, path string, node any) error {
	if node == nil {
		if _, err := q.ExecContext(ctx, "DELETE FROM nodes WHERE path = ?", path); err != nil {
			return fmt.Errorf("delete node: %w", err)
		}
		return nil
	}
	raw, err := store.Encode(node)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO nodes (path, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		path, string(raw), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("write node: %w", err)
	}
	return nil
}
