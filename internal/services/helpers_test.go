package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"charity/internal/core"
	"charity/internal/repository"
	"charity/internal/store"
	"charity/internal/store/memory"
)

// hookedStore wraps a store to count calls and inject behaviour.
type hookedStore struct {
	store.Store

	mu    sync.Mutex
	calls int

	beforeGet func(p store.Path)
	setErr    func(p store.Path) error
}

func (h *hookedStore) count() {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
}

func (h *hookedStore) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func (h *hookedStore) Get(ctx context.Context, p store.Path) (json.RawMessage, error) {
	h.count()
	if h.beforeGet != nil {
		h.beforeGet(p)
	}
	return h.Store.Get(ctx, p)
}

func (h *hookedStore) Set(ctx context.Context, p store.Path, v any) error {
	h.count()
	if h.setErr != nil {
		if err := h.setErr(p); err != nil {
			return err
		}
	}
	return h.Store.Set(ctx, p, v)
}

func (h *hookedStore) Push(ctx context.Context, p store.Path) (store.Path, error) {
	h.count()
	return h.Store.Push(ctx, p)
}

func (h *hookedStore) Update(ctx context.Context, p store.Path, fn store.UpdateFunc) error {
	h.count()
	return h.Store.Update(ctx, p, fn)
}

func (h *hookedStore) Subscribe(ctx context.Context, p store.Path) (*store.Subscription, error) {
	h.count()
	return h.Store.Subscribe(ctx, p)
}

var fixedNow = time.UnixMilli(1_700_000_000_000)

func clock() time.Time { return fixedNow }

func seedCampaign(t *testing.T, s store.Store, id, category string, raised float64) core.Campaign {
	t.Helper()
	c := core.Campaign{
		ID:           id,
		Name:         "Campaign " + id,
		Category:     category,
		GoalAmount:   1000,
		RaisedAmount: raised,
		SeedAmount:   raised,
		Timestamp:    fixedNow.UnixMilli(),
	}
	require.NoError(t, repository.NewCampaigns(s).Put(context.Background(), c))
	return c
}

func newMemory(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	t.Cleanup(func() { s.Close() })
	return s
}

// recv reads one value from a feed or fails the test.
func recv[T any](t *testing.T, f *Feed[T]) T {
	t.Helper()
	select {
	case v, ok := <-f.C:
		require.True(t, ok, "feed closed: %v", f.Err())
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for feed value")
	}
	var zero T
	return zero
}
