package services

import (
	"context"
	"encoding/json"
	"sync"

	"charity/internal/store"
)

// Feed is a cancellable stream of decoded values. C is closed when the
// feed ends; Err reports a terminal decoding or subscription failure.
type Feed[T any] struct {
	C <-chan T

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Cancel stops the feed and waits for it to release its subscriptions.
func (f *Feed[T]) Cancel() {
	f.cancel()
	<-f.done
}

func (f *Feed[T]) Done() <-chan struct{} { return f.done }

func (f *Feed[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// startFeed runs produce in its own goroutine. emit blocks until the value
// is received and returns false once the feed is cancelled.
func startFeed[T any](ctx context.Context, produce func(ctx context.Context, emit func(T) bool) error) *Feed[T] {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan T)
	f := &Feed[T]{C: out, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(f.done)
		defer close(out)
		defer cancel()

		err := produce(ctx, func(v T) bool {
			select {
			case out <- v:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil && ctx.Err() == nil {
			f.mu.Lock()
			f.err = err
			f.mu.Unlock()
		}
	}()
	return f
}

// watchPath decodes every snapshot of p.
func watchPath[T any](ctx context.Context, s store.Store, p store.Path, decode func(json.RawMessage) (T, error)) (*Feed[T], error) {
	sub, err := s.Subscribe(ctx, p)
	if err != nil {
		return nil, err
	}
	return startFeed(ctx, func(ctx context.Context, emit func(T) bool) error {
		defer sub.Cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-sub.C:
				if !ok {
					return sub.Err()
				}
				v, err := decode(snap.Value)
				if err != nil {
					return err
				}
				if !emit(v) {
					return nil
				}
			}
		}
	}), nil
}

// MapFeed converts every value of src. Cancelling the result cancels src.
func MapFeed[T, U any](ctx context.Context, src *Feed[T], fn func(T) U) *Feed[U] {
	return startFeed(ctx, func(ctx context.Context, emit func(U) bool) error {
		defer src.Cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case v, ok := <-src.C:
				if !ok {
					return src.Err()
				}
				if !emit(fn(v)) {
					return nil
				}
			}
		}
	})
}
