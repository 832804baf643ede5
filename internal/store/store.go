// Package store defines the remote store adapter: a hierarchical,
// path-addressed tree of JSON values with point reads, overwrites,
// child-key allocation, atomic node updates and change subscriptions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when no value exists at a path.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidPath is returned for empty or malformed path segments.
	ErrInvalidPath = errors.New("store: invalid path")

	// ErrClosed is returned after the store has been closed.
	ErrClosed = errors.New("store: closed")
)

// UpdateFunc receives the current value of a node (nil when absent) and
// returns the value to write. Returning an error aborts the update and the
// error is returned from Update unchanged.
type UpdateFunc func(current json.RawMessage) (any, error)

// Store is the remote store adapter. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get reads the value at p, or ErrNotFound.
	Get(ctx context.Context, p Path) (json.RawMessage, error)

	// Set overwrites the node at p. A nil value deletes the node.
	Set(ctx context.Context, p Path, value any) error

	// Push allocates a new uniquely keyed child under the collection at p.
	// Keys sort in creation order. Nothing is written.
	Push(ctx context.Context, p Path) (Path, error)

	// Update atomically replaces the node at p with the result of fn.
	// fn may be called more than once and must not call back into the store.
	Update(ctx context.Context, p Path, fn UpdateFunc) error

	// Subscribe emits the value at p now and after every change, until the
	// subscription is cancelled or ctx is done.
	Subscribe(ctx context.Context, p Path) (*Subscription, error)

	Close() error
}

// OpError records a failed store call.
type OpError struct {
	Op   string
	Path Path
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// WrapErr wraps err in an OpError unless it is nil, already wrapped, or
// ErrNotFound, which callers compare directly.
func WrapErr(op string, p Path, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return err
	}
	return &OpError{Op: op, Path: p, Err: err}
}
