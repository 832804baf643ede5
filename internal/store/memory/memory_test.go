package memory

import (
	"context"
	"encoding/json"
	"testing"

	"charity/internal/store"
	"charity/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestSubscribersAreReleased(t *testing.T) {
	s := New()
	defer s.Close()

	sub, err := s.Subscribe(context.Background(), store.MustPath("campaigns"))
	if err != nil {
		t.Fatal(err)
	}
	<-sub.C
	if n := s.notify.Len(); n != 1 {
		t.Fatalf("expected one watcher, got %d", n)
	}
	sub.Cancel()
	if n := s.notify.Len(); n != 0 {
		t.Fatalf("cancelled watcher must be removed, got %d", n)
	}
}

func TestUpdateSeesPreviousValue(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()
	p := store.MustPath("campaigns", "c1")

	if err := s.Set(ctx, p, map[string]any{"raisedAmount": 100}); err != nil {
		t.Fatal(err)
	}
	err := s.Update(ctx, p, func(cur json.RawMessage) (any, error) {
		var c struct {
			RaisedAmount float64 `json:"raisedAmount"`
		}
		if err := json.Unmarshal(cur, &c); err != nil {
			return nil, err
		}
		c.RaisedAmount += 50
		return c, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := s.Get(ctx, p)
	if err != nil || string(raw) != `{"raisedAmount":150}` {
		t.Fatalf("got %s, %v", raw, err)
	}
}
