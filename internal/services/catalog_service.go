package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"charity/internal/core"
	"charity/internal/repository"
	"charity/internal/store"
)

// CatalogService serves campaign and donation reads, one-shot or live.
type CatalogService struct {
	store     store.Store
	campaigns *repository.Campaigns
	donations *repository.Donations
	now       func() time.Time
}

func NewCatalogService(s store.Store) *CatalogService {
	return &CatalogService{
		store:     s,
		campaigns: repository.NewCampaigns(s),
		donations: repository.NewDonations(s),
		now:       time.Now,
	}
}

// FilterByCategory keeps campaigns of the given category. "" and "All"
// keep everything. Order is preserved.
func FilterByCategory(cs []core.Campaign, category string) []core.Campaign {
	if category == "" || category == core.AllCategories {
		return cs
	}
	out := make([]core.Campaign, 0, len(cs))
	for _, c := range cs {
		if c.Category == category {
			out = append(out, c)
		}
	}
	return out
}

// ListCampaigns emits the full, filtered catalog (newest first) now and
// after every change to it.
func (s *CatalogService) ListCampaigns(ctx context.Context, category string) (*Feed[[]core.Campaign], error) {
	return watchPath(ctx, s.store, repository.CampaignsPath(), func(raw json.RawMessage) ([]core.Campaign, error) {
		cs, err := repository.DecodeCampaigns(raw)
		if err != nil {
			return nil, err
		}
		return FilterByCategory(cs, category), nil
	})
}

// Campaigns is the one-shot form of ListCampaigns.
func (s *CatalogService) Campaigns(ctx context.Context, category string) ([]core.Campaign, error) {
	cs, err := s.campaigns.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	return FilterByCategory(cs, category), nil
}

// CampaignDetails follows one campaign; nil is emitted while it does not exist.
func (s *CatalogService) CampaignDetails(ctx context.Context, id string) (*Feed[*core.Campaign], error) {
	p, err := repository.CampaignPath(id)
	if err != nil {
		return nil, core.Invalid(err)
	}
	return watchPath(ctx, s.store, p, func(raw json.RawMessage) (*core.Campaign, error) {
		if raw == nil {
			return nil, nil
		}
		c, err := repository.DecodeCampaign(id, raw)
		if err != nil {
			return nil, err
		}
		return &c, nil
	})
}

func (s *CatalogService) Campaign(ctx context.Context, id string) (core.Campaign, error) {
	if _, err := repository.CampaignPath(id); err != nil {
		return core.Campaign{}, core.Invalid(err)
	}
	return s.campaigns.Get(ctx, id)
}

// UserDonations follows the user's donation history, newest first.
func (s *CatalogService) UserDonations(ctx context.Context, userID string) (*Feed[[]core.Donation], error) {
	p, err := repository.UserDonationsPath(userID)
	if err != nil {
		return nil, core.Invalid(err)
	}
	return watchPath(ctx, s.store, p, func(raw json.RawMessage) ([]core.Donation, error) {
		return repository.DecodeDonations(p.String(), raw)
	})
}

func (s *CatalogService) DonationHistory(ctx context.Context, userID string) ([]core.Donation, error) {
	if _, err := repository.UserDonationsPath(userID); err != nil {
		return nil, core.Invalid(err)
	}
	return s.donations.ForUser(ctx, userID)
}

func (s *CatalogService) CampaignDonations(ctx context.Context, campaignID string) ([]core.Donation, error) {
	if _, err := repository.CampaignDonationsPath(campaignID); err != nil {
		return nil, core.Invalid(err)
	}
	return s.donations.ForCampaign(ctx, campaignID)
}

// AllDonations follows every campaign's donations as one list.
func (s *CatalogService) AllDonations(ctx context.Context) (*Feed[[]core.Donation], error) {
	return watchPath(ctx, s.store, repository.DonationsPath(), repository.DecodeAllDonations)
}

// SeedSampleCampaigns writes the sample catalog, skipping campaigns that
// already exist. It returns how many were created.
func (s *CatalogService) SeedSampleCampaigns(ctx context.Context) (int, error) {
	now := s.now().UnixMilli()
	var (
		created int
		errs    []error
	)
	for i, c := range core.SampleCampaigns() {
		// Spread timestamps so the catalog lists in sample order.
		c.Timestamp = now - int64(i)*1000
		c.SeedAmount = c.RaisedAmount
		ok, err := s.campaigns.Create(ctx, c)
		if err != nil {
			errs = append(errs, fmt.Errorf("seed %s: %w", c.ID, err))
			continue
		}
		if ok {
			created++
			slog.InfoContext(ctx, "Sample campaign created", "campaign_id", c.ID, "category", c.Category)
		}
	}
	return created, errors.Join(errs...)
}
