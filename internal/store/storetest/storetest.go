// Package storetest holds behaviour checks shared by every store backend.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"charity/internal/store"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the shared suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("SetGet", func(t *testing.T) { testSetGet(t, newStore(t)) })
	t.Run("NestedReadsAndOverwrite", func(t *testing.T) { testNested(t, newStore(t)) })
	t.Run("DeleteWithNil", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("PushKeysAreUniqueAndOrdered", func(t *testing.T) { testPush(t, newStore(t)) })
	t.Run("UpdateIsAtomic", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("UpdateAbort", func(t *testing.T) { testUpdateAbort(t, newStore(t)) })
	t.Run("Subscribe", func(t *testing.T) { testSubscribe(t, newStore(t)) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, newStore(t)) })
}

func path(t *testing.T, s string) store.Path {
	t.Helper()
	p, err := store.ParsePath(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return p
}

func getMap(t *testing.T, s store.Store, p string) map[string]any {
	t.Helper()
	raw, err := s.Get(context.Background(), path(t, p))
	if err != nil {
		t.Fatalf("get %s: %v", p, err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v (%s)", p, err, raw)
	}
	return out
}

func testGetMissing(t *testing.T, s store.Store) {
	defer s.Close()
	if _, err := s.Get(context.Background(), path(t, "campaigns/none")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testSetGet(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	rec := map[string]any{"name": "Clean Water", "goalAmount": 5000, "raisedAmount": 100.5}
	if err := s.Set(ctx, path(t, "campaigns/c1"), rec); err != nil {
		t.Fatalf("set: %v", err)
	}
	got := getMap(t, s, "campaigns/c1")
	if got["name"] != "Clean Water" || got["raisedAmount"] != 100.5 || got["goalAmount"] != float64(5000) {
		t.Fatalf("unexpected record: %v", got)
	}
}

func testNested(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	if err := s.Set(ctx, path(t, "donations/c1/d1"), map[string]any{"amount": 10}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, path(t, "donations/c1/d2"), map[string]any{"amount": 20}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, path(t, "donations/c2/d3"), map[string]any{"amount": 30}); err != nil {
		t.Fatal(err)
	}

	all := getMap(t, s, "donations")
	if len(all) != 2 {
		t.Fatalf("expected two campaigns under donations, got %v", all)
	}
	c1 := getMap(t, s, "donations/c1")
	if len(c1) != 2 {
		t.Fatalf("expected two donations for c1, got %v", c1)
	}

	raw, err := s.Get(ctx, path(t, "donations/c1/d2/amount"))
	if err != nil || string(raw) != "20" {
		t.Fatalf("leaf read = %s, %v", raw, err)
	}

	// Writing below a leaf record and overwriting a subtree.
	if err := s.Set(ctx, path(t, "donations/c1/d2/amount"), 25); err != nil {
		t.Fatal(err)
	}
	if d2 := getMap(t, s, "donations/c1/d2"); d2["amount"] != float64(25) {
		t.Fatalf("expected patched amount, got %v", d2)
	}
	if err := s.Set(ctx, path(t, "donations/c1"), map[string]any{"d9": map[string]any{"amount": 1}}); err != nil {
		t.Fatal(err)
	}
	if c1 := getMap(t, s, "donations/c1"); len(c1) != 1 || c1["d9"] == nil {
		t.Fatalf("overwrite must replace the subtree, got %v", c1)
	}
}

func testDelete(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	if err := s.Set(ctx, path(t, "users/u1/donations/d1"), map[string]any{"amount": 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, path(t, "users/u1/donations/d1"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, path(t, "users/u1")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("emptied parents must disappear, got %v", err)
	}
}

func testPush(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	parent := path(t, "donations/c1")
	seen := map[string]bool{}
	prev := ""
	for i := 0; i < 50; i++ {
		child, err := s.Push(ctx, parent)
		if err != nil {
			t.Fatalf("push: %v", err)
		}
		if !parent.Contains(child) || child.Len() != parent.Len()+1 {
			t.Fatalf("pushed path %s is not a direct child of %s", child, parent)
		}
		key := child.Key()
		if seen[key] {
			t.Fatalf("duplicate push key %s", key)
		}
		if prev != "" && key <= prev {
			t.Fatalf("push keys must sort by creation: %s <= %s", key, prev)
		}
		seen[key], prev = true, key
	}
	if _, err := s.Get(ctx, parent); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("push must not write, got %v", err)
	}
}

func testUpdate(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	p := path(t, "campaigns/c1/raisedAmount")
	if err := s.Set(ctx, p, 0); err != nil {
		t.Fatal(err)
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Update(ctx, p, func(cur json.RawMessage) (any, error) {
				var v float64
				if cur != nil {
					if err := json.Unmarshal(cur, &v); err != nil {
						return nil, err
					}
				}
				return v + 1, nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	raw, err := s.Get(ctx, p)
	if err != nil || string(raw) != "20" {
		t.Fatalf("expected 20 after concurrent increments, got %s (%v)", raw, err)
	}
}

func testUpdateAbort(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	sentinel := errors.New("abort")
	p := path(t, "DonorData/a@b,com")
	err := s.Update(ctx, p, func(cur json.RawMessage) (any, error) {
		if cur != nil {
			t.Errorf("expected absent node, got %s", cur)
		}
		return nil, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected abort error, got %v", err)
	}
	if _, err := s.Get(ctx, p); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("aborted update must not write, got %v", err)
	}
}

func next(t *testing.T, sub *store.Subscription) store.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C:
		if !ok {
			t.Fatalf("subscription closed: %v", sub.Err())
		}
		return snap
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return store.Snapshot{}
}

func testSubscribe(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	p := path(t, "campaigns")

	sub, err := s.Subscribe(ctx, p)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if first := next(t, sub); first.Exists() {
		t.Fatalf("expected empty initial snapshot, got %s", first.Value)
	}

	if err := s.Set(ctx, path(t, "campaigns/c1"), map[string]any{"name": "a"}); err != nil {
		t.Fatal(err)
	}
	snap := next(t, sub)
	if !snap.Exists() || !snap.Path.Equal(p) {
		t.Fatalf("expected populated snapshot for %s, got %+v", p, snap)
	}

	// Unrelated writes do not produce snapshots of their own.
	if err := s.Set(ctx, path(t, "users/u1/donations/d1"), map[string]any{"amount": 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, path(t, "campaigns/c1/raisedAmount"), 5); err != nil {
		t.Fatal(err)
	}
	var got map[string]map[string]any
	if err := json.Unmarshal(next(t, sub).Value, &got); err != nil {
		t.Fatal(err)
	}
	if got["c1"]["raisedAmount"] != float64(5) {
		t.Fatalf("expected updated campaign, got %v", got)
	}

	sub.Cancel()
	if _, ok := <-sub.C; ok {
		t.Fatal("channel must be closed after Cancel")
	}
	if sub.Err() != nil {
		t.Fatalf("cancelled subscription must not report an error, got %v", sub.Err())
	}
}

func testClosed(t *testing.T, s store.Store) {
	ctx := context.Background()
	sub, err := s.Subscribe(ctx, path(t, "campaigns"))
	if err != nil {
		t.Fatal(err)
	}
	next(t, sub)

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Set(ctx, path(t, "campaigns/c1"), 1); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subscription must end when the store closes")
	}
	if !errors.Is(sub.Err(), store.ErrClosed) {
		t.Fatalf("expected ErrClosed from subscription, got %v", sub.Err())
	}
}
