package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"charity/internal/core"
	"charity/internal/repository"
	"charity/internal/store"
)

// RaisedUpdateMode selects how a donation is added to the campaign total.
type RaisedUpdateMode string

const (
	// RaisedUpdateTransaction increments inside a store transaction.
	RaisedUpdateTransaction RaisedUpdateMode = "transaction"
	// RaisedUpdateReadModifyWrite reads the campaign and then writes the new
	// total. Concurrent donations to one campaign can lose increments.
	RaisedUpdateReadModifyWrite RaisedUpdateMode = "read_modify_write"
)

// ParseRaisedUpdateMode accepts "" as the transactional default.
func ParseRaisedUpdateMode(s string) (RaisedUpdateMode, error) {
	switch RaisedUpdateMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", RaisedUpdateTransaction:
		return RaisedUpdateTransaction, nil
	case RaisedUpdateReadModifyWrite:
		return RaisedUpdateReadModifyWrite, nil
	default:
		return "", fmt.Errorf("unknown raised update mode %q", s)
	}
}

// Step names a stage of RecordDonation.
type Step string

const (
	StepAllocateID        Step = "allocate_id"
	StepWriteCampaignCopy Step = "write_campaign_copy"
	StepWriteUserCopy     Step = "write_user_copy"
	StepIncrementRaised   Step = "increment_raised"
)

// RecordError reports which step of RecordDonation failed. Writes made by
// earlier steps are not undone; Partial is set when any exist.
type RecordError struct {
	Step       Step
	DonationID string
	Partial    bool
	Err        error
}

func (e *RecordError) Error() string {
	if e.DonationID == "" {
		return fmt.Sprintf("record donation: %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("record donation %s: %s (partial=%t): %v", e.DonationID, e.Step, e.Partial, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// DonationPublisher announces recorded donations.
type DonationPublisher interface {
	PublishDonationRecorded(ctx context.Context, d core.Donation) error
}

type DonationOption func(*DonationService)

func WithPublisher(p DonationPublisher) DonationOption {
	return func(s *DonationService) { s.publisher = p }
}

func WithRaisedUpdateMode(m RaisedUpdateMode) DonationOption {
	return func(s *DonationService) { s.mode = m }
}

func WithClock(now func() time.Time) DonationOption {
	return func(s *DonationService) { s.now = now }
}

// WithRecordedHook registers fn to run after every successful donation.
func WithRecordedHook(fn func(core.Donation)) DonationOption {
	return func(s *DonationService) { s.hooks = append(s.hooks, fn) }
}

// DonationService records donations and keeps campaign totals current.
type DonationService struct {
	campaigns *repository.Campaigns
	donations *repository.Donations
	publisher DonationPublisher
	mode      RaisedUpdateMode
	now       func() time.Time
	hooks     []func(core.Donation)
}

func NewDonationService(s store.Store, opts ...DonationOption) *DonationService {
	svc := &DonationService{
		campaigns: repository.NewCampaigns(s),
		donations: repository.NewDonations(s),
		mode:      RaisedUpdateTransaction,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *DonationService) Mode() RaisedUpdateMode { return s.mode }

func validateID(id string, empty error) error {
	if strings.TrimSpace(id) == "" {
		return core.Invalid(empty)
	}
	if err := store.ValidateKey(id); err != nil {
		return core.Invalid(err)
	}
	return nil
}

// RecordDonation validates input, stores the donation under the campaign
// and under the user, then adds the amount to the campaign total. Input
// errors wrap core.ErrValidation and happen before any store call; store
// failures are returned as *RecordError.
func (s *DonationService) RecordDonation(ctx context.Context, input core.DonationInput, campaignID, userID string) (core.Donation, error) {
	amount, err := input.Validate()
	if err != nil {
		return core.Donation{}, err
	}
	if err := validateID(campaignID, core.ErrEmptyCampaignID); err != nil {
		return core.Donation{}, err
	}
	if err := validateID(userID, core.ErrEmptyUserID); err != nil {
		return core.Donation{}, err
	}

	at, err := s.donations.Allocate(ctx, campaignID)
	if err != nil {
		return core.Donation{}, &RecordError{Step: StepAllocateID, Err: err}
	}

	d := core.NewDonation(at.Key(), input, amount, campaignID, userID, s.now())
	if err := s.donations.PutCampaignCopy(ctx, at, d); err != nil {
		return core.Donation{}, &RecordError{Step: StepWriteCampaignCopy, DonationID: d.ID, Err: err}
	}
	if err := s.donations.PutUserCopy(ctx, d); err != nil {
		return core.Donation{}, &RecordError{Step: StepWriteUserCopy, DonationID: d.ID, Partial: true, Err: err}
	}

	if err := s.addRaised(ctx, d); err != nil {
		if !errors.Is(err, repository.ErrCampaignNotFound) {
			return core.Donation{}, &RecordError{Step: StepIncrementRaised, DonationID: d.ID, Partial: true, Err: err}
		}
		slog.WarnContext(ctx, "Campaign missing, raised amount not updated",
			"campaign_id", campaignID,
			"donation_id", d.ID)
	}

	slog.InfoContext(ctx, "Donation recorded",
		"donation_id", d.ID,
		"campaign_id", campaignID,
		"user_id", userID,
		"amount", d.Amount,
		"mode", string(s.mode))

	s.publish(ctx, d)
	for _, hook := range s.hooks {
		hook(d)
	}
	return d, nil
}

func (s *DonationService) addRaised(ctx context.Context, d core.Donation) error {
	var (
		total float64
		err   error
	)
	if s.mode == RaisedUpdateReadModifyWrite {
		total, err = s.campaigns.AddRaisedNaive(ctx, d.CampaignID, d.Amount)
	} else {
		total, err = s.campaigns.AddRaised(ctx, d.CampaignID, d.Amount)
	}
	if err == nil {
		slog.DebugContext(ctx, "Campaign total updated", "campaign_id", d.CampaignID, "raised_amount", total)
	}
	return err
}

func (s *DonationService) publish(ctx context.Context, d core.Donation) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishDonationRecorded(ctx, d); err != nil {
		// The donation is stored; the reconciler sweep covers missed events.
		slog.ErrorContext(ctx, "Failed to publish donation event",
			"donation_id", d.ID, "error", err)
	}
}
