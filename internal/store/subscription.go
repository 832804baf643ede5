package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// Snapshot is the value of a node at one point in time.
type Snapshot struct {
	Path  Path
	Value json.RawMessage // nil when the node does not exist
}

// Exists reports whether the node had a value.
func (s Snapshot) Exists() bool { return s.Value != nil }

// Subscription delivers snapshots on C until cancelled. C is closed when
// the subscription ends; Err then reports why, or nil after Cancel.
type Subscription struct {
	C <-chan Snapshot

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Cancel stops the subscription and waits for it to wind down.
func (s *Subscription) Cancel() {
	s.cancel()
	<-s.done
}

// Done is closed once the subscription has ended.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns the error that terminated the subscription, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Getter reads the current value of the watched node.
type Getter func(ctx context.Context) (json.RawMessage, error)

// WatchOptions controls when Watch re-reads the node.
type WatchOptions struct {
	// Kick triggers an immediate re-read (local change notifications).
	Kick <-chan struct{}
	// Interval enables polling when positive.
	Interval time.Duration
	// OnStop runs once when the subscription ends.
	OnStop func()
}

// Watch turns a point read into a subscription: the current value is read
// and emitted at once, then re-read on every kick or poll tick and emitted
// when it differs from the last emission. A failed read terminates the
// subscription; retrying is left to the caller.
func Watch(ctx context.Context, p Path, get Getter, opts WatchOptions) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Snapshot)
	sub := &Subscription{C: out, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer close(out)
		defer cancel()
		if opts.OnStop != nil {
			defer opts.OnStop()
		}

		var tick <-chan time.Time
		if opts.Interval > 0 {
			ticker := time.NewTicker(opts.Interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		var last json.RawMessage
		first := true
		for {
			value, err := get(ctx)
			if errors.Is(err, ErrNotFound) {
				value, err = nil, nil
			}
			if err != nil {
				if ctx.Err() == nil {
					sub.fail(WrapErr("subscribe", p, err))
				}
				return
			}
			if first || !bytes.Equal(last, value) {
				select {
				case out <- Snapshot{Path: p, Value: value}:
				case <-ctx.Done():
					return
				}
				last, first = value, false
			}

			select {
			case <-ctx.Done():
				return
			case <-opts.Kick:
			case <-tick:
			}
		}
	}()

	return sub
}

// Notifier fans local change notifications out to watchers whose path
// overlaps the changed path.
type Notifier struct {
	mu       sync.Mutex
	next     int
	watchers map[int]notifyTarget
}

type notifyTarget struct {
	path Path
	kick chan struct{}
}

// Register returns a kick channel for p and a function that removes it.
func (n *Notifier) Register(p Path) (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.watchers == nil {
		n.watchers = make(map[int]notifyTarget)
	}
	id := n.next
	n.next++
	kick := make(chan struct{}, 1)
	n.watchers[id] = notifyTarget{path: p, kick: kick}
	return kick, func() {
		n.mu.Lock()
		delete(n.watchers, id)
		n.mu.Unlock()
	}
}

// Notify wakes every watcher affected by a change at changed. Pending
// kicks coalesce.
func (n *Notifier) Notify(changed Path) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, w := range n.watchers {
		if !w.path.Overlaps(changed) {
			continue
		}
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of registered watchers.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.watchers)
}
