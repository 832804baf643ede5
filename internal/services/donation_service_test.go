package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charity/internal/core"
	"charity/internal/repository"
	"charity/internal/store"
)

type recordingPublisher struct {
	mu  sync.Mutex
	got []core.Donation
	err error
}

func (p *recordingPublisher) PublishDonationRecorded(_ context.Context, d core.Donation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, d)
	return p.err
}

func TestRecordDonationRejectsInvalidInputWithoutStoreCalls(t *testing.T) {
	tests := []struct {
		name       string
		input      core.DonationInput
		campaignID string
		userID     string
	}{
		{"empty amount", core.DonationInput{Amount: ""}, "c1", "u1"},
		{"text amount", core.DonationInput{Amount: "ten"}, "c1", "u1"},
		{"zero amount", core.DonationInput{Amount: "0"}, "c1", "u1"},
		{"negative amount", core.DonationInput{Amount: "-5"}, "c1", "u1"},
		{"empty campaign", core.DonationInput{Amount: "5"}, "", "u1"},
		{"empty user", core.DonationInput{Amount: "5"}, "c1", "  "},
		{"bad campaign key", core.DonationInput{Amount: "5"}, "c.1", "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := &hookedStore{Store: newMemory(t)}
			svc := NewDonationService(hs, WithClock(clock))

			_, err := svc.RecordDonation(context.Background(), tt.input, tt.campaignID, tt.userID)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrValidation)
			assert.Equal(t, core.OutcomeInvalidInput, core.Classify(err))
			assert.Zero(t, hs.Calls(), "no store call may happen on invalid input")
		})
	}
}

func TestRecordDonationWritesBothCopiesAndIncrements(t *testing.T) {
	for _, mode := range []RaisedUpdateMode{RaisedUpdateTransaction, RaisedUpdateReadModifyWrite} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			s := newMemory(t)
			seedCampaign(t, s, "c1", "Health", 100)
			pub := &recordingPublisher{}
			svc := NewDonationService(s, WithClock(clock), WithRaisedUpdateMode(mode), WithPublisher(pub))

			d, err := svc.RecordDonation(ctx, core.DonationInput{Amount: "50", Message: "keep going"}, "c1", "u1")
			require.NoError(t, err)
			assert.NotEmpty(t, d.ID)
			assert.Equal(t, core.AnonymousDonor, d.DonorName)
			assert.Equal(t, 50.0, d.Amount)
			assert.Equal(t, fixedNow.UnixMilli(), d.Timestamp)
			assert.Equal(t, "c1", d.CampaignID)
			assert.Equal(t, "u1", d.UserID)

			donations := repository.NewDonations(s)
			byCampaign, err := donations.ForCampaign(ctx, "c1")
			require.NoError(t, err)
			byUser, err := donations.ForUser(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, byCampaign, 1)
			require.Len(t, byUser, 1)
			assert.Equal(t, d, byCampaign[0])
			assert.Equal(t, byCampaign[0], byUser[0], "user copy must be identical to the campaign copy")

			c, err := repository.NewCampaigns(s).Get(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, 150.0, c.RaisedAmount)

			require.Len(t, pub.got, 1)
			assert.Equal(t, d, pub.got[0])
		})
	}
}

func TestRecordDonationToleratesMissingCampaign(t *testing.T) {
	ctx := context.Background()
	s := newMemory(t)
	svc := NewDonationService(s, WithClock(clock))

	d, err := svc.RecordDonation(ctx, core.DonationInput{DonorName: "Ann", Amount: "5,50"}, "ghost", "u1")
	require.NoError(t, err)
	assert.Equal(t, 5.5, d.Amount)
	assert.Equal(t, "Ann", d.DonorName)

	_, err = s.Get(ctx, store.MustPath("campaigns", "ghost"))
	assert.ErrorIs(t, err, store.ErrNotFound, "missing campaign must not be created")
	history, err := repository.NewDonations(s).ForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRecordDonationReportsFailedStep(t *testing.T) {
	ctx := context.Background()
	remote := errors.New("permission denied")
	hs := &hookedStore{Store: newMemory(t)}
	seedCampaign(t, hs.Store, "c1", "Health", 100)
	hs.setErr = func(p store.Path) error {
		if p.Segments()[0] == "users" {
			return remote
		}
		return nil
	}
	svc := NewDonationService(hs, WithClock(clock))

	_, err := svc.RecordDonation(ctx, core.DonationInput{Amount: "10"}, "c1", "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, remote)
	assert.Equal(t, core.OutcomeRemoteFailure, core.Classify(err))

	var recErr *RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, StepWriteUserCopy, recErr.Step)
	assert.True(t, recErr.Partial)
	assert.NotEmpty(t, recErr.DonationID)

	// The campaign copy stays; the total is untouched.
	byCampaign, err := repository.NewDonations(hs.Store).ForCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, byCampaign, 1)
	c, err := repository.NewCampaigns(hs.Store).Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, c.RaisedAmount)
}

func TestRecordDonationPublishFailureIsNotFatal(t *testing.T) {
	s := newMemory(t)
	seedCampaign(t, s, "c1", "Health", 0)
	pub := &recordingPublisher{err: errors.New("broker down")}
	var hooked []core.Donation
	svc := NewDonationService(s, WithPublisher(pub), WithRecordedHook(func(d core.Donation) {
		hooked = append(hooked, d)
	}))

	d, err := svc.RecordDonation(context.Background(), core.DonationInput{Amount: "1"}, "c1", "u1")
	require.NoError(t, err)
	assert.Len(t, pub.got, 1)
	require.Len(t, hooked, 1)
	assert.Equal(t, d.ID, hooked[0].ID)
}

func TestConcurrentDonationsSumExactlyInTransactionMode(t *testing.T) {
	ctx := context.Background()
	s := newMemory(t)
	seedCampaign(t, s, "c1", "Health", 0)
	svc := NewDonationService(s)

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordDonation(ctx, core.DonationInput{Amount: "2"}, "c1", "u1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	c, err := repository.NewCampaigns(s).Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, c.RaisedAmount)
	history, err := repository.NewDonations(s).ForCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, history, n)
}

func TestReadModifyWriteLosesConcurrentIncrement(t *testing.T) {
	ctx := context.Background()
	hs := &hookedStore{Store: newMemory(t)}
	seedCampaign(t, hs.Store, "c1", "Health", 100)

	// Both donations read the campaign before either writes the total.
	var barrier sync.WaitGroup
	barrier.Add(2)
	campaign := store.MustPath("campaigns", "c1")
	hs.beforeGet = func(p store.Path) {
		if p.Equal(campaign) {
			barrier.Done()
			barrier.Wait()
		}
	}
	svc := NewDonationService(hs, WithRaisedUpdateMode(RaisedUpdateReadModifyWrite))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordDonation(ctx, core.DonationInput{Amount: "50"}, "c1", "u1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	hs.beforeGet = nil
	c, err := repository.NewCampaigns(hs.Store).Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 150.0, c.RaisedAmount, "one increment is expected to be lost")

	history, err := repository.NewDonations(hs.Store).ForCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, history, 2, "both donation records are still written")
}

func TestParseRaisedUpdateMode(t *testing.T) {
	m, err := ParseRaisedUpdateMode("")
	require.NoError(t, err)
	assert.Equal(t, RaisedUpdateTransaction, m)
	m, err = ParseRaisedUpdateMode("READ_MODIFY_WRITE")
	require.NoError(t, err)
	assert.Equal(t, RaisedUpdateReadModifyWrite, m)
	_, err = ParseRaisedUpdateMode("optimistic")
	assert.Error(t, err)
}
