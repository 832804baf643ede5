package repository

import (
	"context"
	"errors"

	"charity/internal/core"
	"charity/internal/store"
)

type Donations struct {
	store store.Store
}

func NewDonations(s store.Store) *Donations {
	return &Donations{store: s}
}

// Allocate reserves a new donation path under the campaign's collection.
func (r *Donations) Allocate(ctx context.Context, campaignID string) (store.Path, error) {
	p, err := CampaignDonationsPath(campaignID)
	if err != nil {
		return store.Path{}, err
	}
	return r.store.Push(ctx, p)
}

// PutCampaignCopy writes d at the allocated path.
func (r *Donations) PutCampaignCopy(ctx context.Context, at store.Path, d core.Donation) error {
	return r.store.Set(ctx, at, d)
}

// PutUserCopy writes d at users/{userId}/donations/{id}.
func (r *Donations) PutUserCopy(ctx context.Context, d core.Donation) error {
	p, err := UserDonationPath(d.UserID, d.ID)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, p, d)
}

func (r *Donations) ForCampaign(ctx context.Context, campaignID string) ([]core.Donation, error) {
	p, err := CampaignDonationsPath(campaignID)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, p)
}

func (r *Donations) ForUser(ctx context.Context, userID string) ([]core.Donation, error) {
	p, err := UserDonationsPath(userID)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, p)
}

// All flattens every campaign's donations, newest first.
func (r *Donations) All(ctx context.Context) ([]core.Donation, error) {
	raw, err := r.store.Get(ctx, DonationsPath())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return DecodeAllDonations(raw)
}

func (r *Donations) list(ctx context.Context, p store.Path) ([]core.Donation, error) {
	raw, err := r.store.Get(ctx, p)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return DecodeDonations(p.String(), raw)
}
