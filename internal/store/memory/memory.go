// Package memory is an in-process store used by tests, local development
// and the memory backend. It keeps the whole tree as generic JSON.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"charity/internal/store"
)

type Store struct {
	mu     sync.RWMutex
	root   any
	closed bool

	notify store.Notifier
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) Get(ctx context.Context, p store.Path) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.WrapErr("get", p, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.WrapErr("get", p, store.ErrClosed)
	}
	node, ok := store.TreeGet(s.root, p.Segments())
	if !ok {
		return nil, store.ErrNotFound
	}
	raw, err := store.Encode(node)
	if err != nil {
		return nil, store.WrapErr("get", p, err)
	}
	return raw, nil
}

func (s *Store) Set(ctx context.Context, p store.Path, value any) error {
	if err := ctx.Err(); err != nil {
		return store.WrapErr("set", p, err)
	}
	node, err := store.Normalize(value)
	if err != nil {
		return store.WrapErr("set", p, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.WrapErr("set", p, store.ErrClosed)
	}
	s.root = store.TreeSet(s.root, p.Segments(), node)
	s.mu.Unlock()

	s.notify.Notify(p)
	return nil
}

// Push returns a child path keyed by a UUIDv7, which sorts by creation time.
func (s *Store) Push(ctx context.Context, p store.Path) (store.Path, error) {
	if err := ctx.Err(); err != nil {
		return store.Path{}, store.WrapErr("push", p, err)
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return store.Path{}, store.WrapErr("push", p, store.ErrClosed)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return store.Path{}, store.WrapErr("push", p, err)
	}
	child, err := p.Child(id.String())
	if err != nil {
		return store.Path{}, store.WrapErr("push", p, err)
	}
	return child, nil
}

// Update runs fn under the write lock, so concurrent updates serialise.
func (s *Store) Update(ctx context.Context, p store.Path, fn store.UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return store.WrapErr("update", p, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.WrapErr("update", p, store.ErrClosed)
	}
	var current json.RawMessage
	if node, ok := store.TreeGet(s.root, p.Segments()); ok {
		raw, err := store.Encode(node)
		if err != nil {
			s.mu.Unlock()
			return store.WrapErr("update", p, err)
		}
		current = raw
	}
	next, err := fn(current)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	node, err := store.Normalize(next)
	if err != nil {
		s.mu.Unlock()
		return store.WrapErr("update", p, err)
	}
	s.root = store.TreeSet(s.root, p.Segments(), node)
	s.mu.Unlock()

	s.notify.Notify(p)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, p store.Path) (*store.Subscription, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, store.WrapErr("subscribe", p, store.ErrClosed)
	}
	kick, stop := s.notify.Register(p)
	get := func(ctx context.Context) (json.RawMessage, error) {
		return s.Get(ctx, p)
	}
	return store.Watch(ctx, p, get, store.WatchOptions{Kick: kick, OnStop: stop}), nil
}

// Close makes further calls fail and wakes subscribers so they terminate.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.notify.Notify(store.Path{})
	return nil
}
