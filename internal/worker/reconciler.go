package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"charity/internal/amqp"
	"charity/internal/core"
	"charity/internal/repository"
	"charity/internal/store"
)

// Tolerance is the largest |drift| treated as rounding noise.
const Tolerance = 0.005

// Drift compares a campaign total against its donation records.
type Drift struct {
	CampaignID string
	Raised     float64
	Seed       float64
	Donated    float64
	Donations  int
	Drift      float64 // Raised - Seed - Donated
}

func (d Drift) Consistent() bool { return math.Abs(d.Drift) <= Tolerance }

func newDrift(c core.Campaign, ds []core.Donation) Drift {
	amounts := make([]float64, len(ds))
	for i, d := range ds {
		amounts[i] = d.Amount
	}
	donated := core.AddAmounts(amounts...)
	return Drift{
		CampaignID: c.ID,
		Raised:     c.RaisedAmount,
		Seed:       c.SeedAmount,
		Donated:    donated,
		Donations:  len(ds),
		Drift:      core.AddAmounts(c.RaisedAmount, -c.SeedAmount, -donated),
	}
}

// ReconcilerConfig holds the periodic sweep settings.
type ReconcilerConfig struct {
	// Interval between full sweeps (default: 5m)
	Interval time.Duration
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{Interval: 5 * time.Minute}
}

// Reconciler checks that campaign totals match their donation records.
// Drift is reported, never corrected.
type Reconciler struct {
	campaigns *repository.Campaigns
	donations *repository.Donations
	config    ReconcilerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReconciler(s store.Store, config ReconcilerConfig) *Reconciler {
	if config.Interval <= 0 {
		config.Interval = DefaultReconcilerConfig().Interval
	}
	return &Reconciler{
		campaigns: repository.NewCampaigns(s),
		donations: repository.NewDonations(s),
		config:    config,
	}
}

// Reconcile checks one campaign.
func (r *Reconciler) Reconcile(ctx context.Context, campaignID string) (Drift, error) {
	c, err := r.campaigns.Get(ctx, campaignID)
	if err != nil {
		return Drift{}, err
	}
	ds, err := r.donations.ForCampaign(ctx, campaignID)
	if err != nil {
		return Drift{}, fmt.Errorf("read donations: %w", err)
	}
	d := newDrift(c, ds)
	report(ctx, d)
	return d, nil
}

// HandleDonationRecorded reconciles the campaign named by an event.
// Events for unknown campaigns are acknowledged.
func (r *Reconciler) HandleDonationRecorded(ctx context.Context, msg *amqp.DonationRecordedMessage) error {
	slog.InfoContext(ctx, "Processing donation event",
		"donation_id", msg.DonationID,
		"campaign_id", msg.CampaignID)

	_, err := r.Reconcile(ctx, msg.CampaignID)
	if errors.Is(err, repository.ErrCampaignNotFound) {
		slog.WarnContext(ctx, "Donation event for unknown campaign",
			"donation_id", msg.DonationID,
			"campaign_id", msg.CampaignID)
		return nil
	}
	return err
}

// Sweep reconciles every campaign and returns those that drifted.
func (r *Reconciler) Sweep(ctx context.Context) ([]Drift, error) {
	campaigns, err := r.campaigns.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	all, err := r.donations.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	byCampaign := make(map[string][]core.Donation, len(campaigns))
	for _, d := range all {
		byCampaign[d.CampaignID] = append(byCampaign[d.CampaignID], d)
	}

	var drifted []Drift
	for _, c := range campaigns {
		d := newDrift(c, byCampaign[c.ID])
		report(ctx, d)
		if !d.Consistent() {
			drifted = append(drifted, d)
		}
	}

	slog.InfoContext(ctx, "Reconciliation sweep completed",
		"campaigns", len(campaigns),
		"donations", len(all),
		"drifted", len(drifted))
	return drifted, nil
}

func report(ctx context.Context, d Drift) {
	if d.Consistent() {
		slog.DebugContext(ctx, "Campaign total consistent",
			"campaign_id", d.CampaignID,
			"raised_amount", d.Raised,
			"donations", d.Donations)
		return
	}
	slog.WarnContext(ctx, "Campaign total drifted from donation records",
		"campaign_id", d.CampaignID,
		"raised_amount", d.Raised,
		"seed_amount", d.Seed,
		"donated", d.Donated,
		"drift", d.Drift)
}

// Start runs a sweep now and then every interval. Returns an error if
// already running.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler is already running")
	}
	r.running = true
	stop, done := make(chan struct{}), make(chan struct{})
	r.stopCh, r.doneCh = stop, done
	r.mu.Unlock()

	go r.runLoop(ctx, stop, done)

	slog.InfoContext(ctx, "Reconciler started", "interval", r.config.Interval)
	return nil
}

// Stop signals the loop and waits for it, or for ctx. Concurrent calls all
// wait for the same loop; only the first one signals it.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	if r.stopCh != nil {
		close(r.stopCh)
		r.stopCh = nil
	}
	done := r.doneCh
	r.mu.Unlock()

	select {
	case <-done:
		slog.InfoContext(ctx, "Reconciler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconciler stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	if r.doneCh == done {
		r.running = false
	}
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reconciler) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.sweep(ctx)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Reconciliation sweep failed", "error", err)
	}
}
