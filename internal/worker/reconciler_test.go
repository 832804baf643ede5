package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"charity/internal/amqp"
	"charity/internal/core"
	"charity/internal/repository"
	"charity/internal/services"
	"charity/internal/store"
	"charity/internal/store/memory"
)

func setup(t *testing.T) (*memory.Store, *services.DonationService) {
	t.Helper()
	s := memory.New()
	t.Cleanup(func() { s.Close() })
	c := core.Campaign{ID: "c1", Name: "Water", Category: "Environment", GoalAmount: 1000, RaisedAmount: 100, SeedAmount: 100, Timestamp: 1}
	if err := repository.NewCampaigns(s).Put(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	return s, services.NewDonationService(s)
}

func TestReconcileConsistentCampaign(t *testing.T) {
	ctx := context.Background()
	s, donations := setup(t)
	for _, amount := range []string{"0.10", "0.20", "12.34"} {
		if _, err := donations.RecordDonation(ctx, core.DonationInput{Amount: amount}, "c1", "u1"); err != nil {
			t.Fatal(err)
		}
	}

	d, err := NewReconciler(s, ReconcilerConfig{}).Reconcile(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Consistent() || d.Donations != 3 || d.Donated != 12.64 {
		t.Fatalf("unexpected drift %+v", d)
	}
}

func TestSweepReportsDrift(t *testing.T) {
	ctx := context.Background()
	s, donations := setup(t)
	if _, err := donations.RecordDonation(ctx, core.DonationInput{Amount: "50"}, "c1", "u1"); err != nil {
		t.Fatal(err)
	}
	// A lost increment: the total is written back to its old value.
	if err := s.Set(ctx, store.MustPath("campaigns", "c1", "raisedAmount"), 100); err != nil {
		t.Fatal(err)
	}

	drifted, err := NewReconciler(s, ReconcilerConfig{}).Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(drifted) != 1 || drifted[0].CampaignID != "c1" || drifted[0].Drift != -50 {
		t.Fatalf("unexpected drift report %+v", drifted)
	}
}

func TestHandleDonationRecorded(t *testing.T) {
	ctx := context.Background()
	s, _ := setup(t)
	r := NewReconciler(s, ReconcilerConfig{})

	if err := r.HandleDonationRecorded(ctx, &amqp.DonationRecordedMessage{DonationID: "d1", CampaignID: "c1"}); err != nil {
		t.Fatalf("known campaign: %v", err)
	}
	if err := r.HandleDonationRecorded(ctx, &amqp.DonationRecordedMessage{DonationID: "d2", CampaignID: "ghost"}); err != nil {
		t.Fatalf("unknown campaigns must be acknowledged, got %v", err)
	}

	s.Close()
	err := r.HandleDonationRecorded(ctx, &amqp.DonationRecordedMessage{DonationID: "d3", CampaignID: "c1"})
	if !errors.Is(err, store.ErrClosed) {
		t.Fatalf("store failures must be returned for requeue, got %v", err)
	}
}

func TestStartStop(t *testing.T) {
	s, _ := setup(t)
	r := NewReconciler(s, ReconcilerConfig{Interval: 10 * time.Millisecond})
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(ctx); err == nil {
		t.Fatal("second Start must fail")
	}
	if !r.IsRunning() {
		t.Fatal("expected running")
	}
	time.Sleep(30 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Fatal(err)
	}
	if r.IsRunning() {
		t.Fatal("expected stopped")
	}
}

func TestConcurrentStop(t *testing.T) {
	s, _ := setup(t)
	r := NewReconciler(s, ReconcilerConfig{Interval: 10 * time.Millisecond})
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	errs := make(chan error, 8)
	for i := 0; i < cap(errs); i++ {
		go func() { errs <- r.Stop(ctx) }()
	}
	for i := 0; i < cap(errs); i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}
	if r.IsRunning() {
		t.Fatal("expected stopped")
	}

	// A stopped reconciler can be started again.
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}
