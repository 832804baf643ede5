// Package rtdb adapts the Firebase Realtime Database to store.Store using
// the Admin SDK's REST client.
package rtdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"charity/internal/store"
)

// DefaultPollInterval is used when no interval is configured. The Admin
// SDK has no streaming listeners, so subscriptions poll.
const DefaultPollInterval = 2 * time.Second

// NewApp initialises a Firebase app. An empty credentials file falls back
// to Application Default Credentials.
func NewApp(ctx context.Context, databaseURL, credentialsFile string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: databaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	return app, nil
}

type Store struct {
	client *db.Client
	poll   time.Duration

	notify store.Notifier

	mu     sync.RWMutex
	closed bool
}

var _ store.Store = (*Store)(nil)

// New connects to the database at databaseURL.
func New(ctx context.Context, app *firebase.App, databaseURL string, poll time.Duration) (*Store, error) {
	client, err := app.DatabaseWithURL(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect realtime database: %w", err)
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	slog.InfoContext(ctx, "Realtime Database store ready", "url", databaseURL, "poll_interval", poll)
	return &Store{client: client, poll: poll}, nil
}

func (s *Store) ref(p store.Path) *db.Ref {
	return s.client.NewRef("/" + p.String())
}

func (s *Store) checkOpen(op string, p store.Path) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.WrapErr(op, p, store.ErrClosed)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, p store.Path) (json.RawMessage, error) {
	if err := s.checkOpen("get", p); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := s.ref(p).Get(ctx, &raw); err != nil {
		return nil, store.WrapErr("get", p, err)
	}
	raw = present(raw)
	if raw == nil {
		return nil, store.ErrNotFound
	}
	return raw, nil
}

func (s *Store) Set(ctx context.Context, p store.Path, value any) error {
	if err := s.checkOpen("set", p); err != nil {
		return err
	}
	var err error
	if value == nil {
		err = s.ref(p).Delete(ctx)
	} else {
		err = s.ref(p).Set(ctx, value)
	}
	if err != nil {
		return store.WrapErr("set", p, err)
	}
	s.notify.Notify(p)
	return nil
}

// Push allocates the key locally. Ref.Push would write a placeholder value.
func (s *Store) Push(ctx context.Context, p store.Path) (store.Path, error) {
	if err := s.checkOpen("push", p); err != nil {
		return store.Path{}, err
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

// Update runs fn inside a database transaction. The SDK retries fn when
// the node changed concurrently.
func (s *Store) Update(ctx context.Context, p store.Path, fn store.UpdateFunc) error {
	if err := s.checkOpen("update", p); err != nil {
		return err
	}
	var abort error
	err := s.ref(p).Transaction(ctx, func(node db.TransactionNode) (interface{}, error) {
		var raw json.RawMessage
		if err := node.Unmarshal(&raw); err != nil {
			return nil, err
		}
		next, err := fn(present(raw))
		if err != nil {
			abort = err
			return nil, err
		}
		return next, nil
	})
	if abort != nil && errors.Is(err, abort) {
		return abort
	}
	if err != nil {
		return store.WrapErr("update", p, err)
	}
	s.notify.Notify(p)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, p store.Path) (*store.Subscription, error) {
	if err := s.checkOpen("subscribe", p); err != nil {
		return nil, err
	}
	kick, stop := s.notify.Register(p)
	get := func(ctx context.Context) (json.RawMessage, error) {
		return s.Get(ctx, p)
	}
	return store.Watch(ctx, p, get, store.WatchOptions{Kick: kick, Interval: s.poll, OnStop: stop}), nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.notify.Notify(store.Path{})
	return nil
}

// present maps the database's "null" for absent nodes to nil.
func present(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return trimmed
}
