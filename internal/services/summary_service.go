package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"charity/internal/core"
	"charity/internal/repository"
	"charity/internal/store"
)

// SummaryService aggregates a user's donations by campaign category.
type SummaryService struct {
	catalog   *CatalogService
	campaigns *repository.Campaigns
	donations *repository.Donations
}

func NewSummaryService(s store.Store) *SummaryService {
	return &SummaryService{
		catalog:   NewCatalogService(s),
		campaigns: repository.NewCampaigns(s),
		donations: repository.NewDonations(s),
	}
}

// Summary reads the user's donations and the catalog concurrently and
// groups the donations by category, largest total first.
func (s *SummaryService) Summary(ctx context.Context, userID string) ([]core.CategoryAmount, error) {
	if _, err := repository.UserDonationsPath(userID); err != nil {
		return nil, core.Invalid(err)
	}

	var (
		donations []core.Donation
		campaigns []core.Campaign
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		donations, err = s.donations.ForUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("read donations: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		campaigns, err = s.campaigns.List(gctx)
		if err != nil {
			return fmt.Errorf("read campaigns: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return core.SummarizeByCategory(donations, campaigns), nil
}

// WatchSummary re-emits the summary whenever the user's donations or the
// catalog change, once both have been read.
func (s *SummaryService) WatchSummary(ctx context.Context, userID string) (*Feed[[]core.CategoryAmount], error) {
	donationsFeed, err := s.catalog.UserDonations(ctx, userID)
	if err != nil {
		return nil, err
	}
	campaignsFeed, err := s.catalog.ListCampaigns(ctx, core.AllCategories)
	if err != nil {
		donationsFeed.Cancel()
		return nil, err
	}

	return startFeed(ctx, func(ctx context.Context, emit func([]core.CategoryAmount) bool) error {
		defer donationsFeed.Cancel()
		defer campaignsFeed.Cancel()

		var (
			donations     []core.Donation
			campaigns     []core.Campaign
			haveDonations bool
			haveCampaigns bool
		)
		for {
			select {
			case <-ctx.Done():
				return nil
			case ds, ok := <-donationsFeed.C:
				if !ok {
					return donationsFeed.Err()
				}
				donations, haveDonations = ds, true
			case cs, ok := <-campaignsFeed.C:
				if !ok {
					return campaignsFeed.Err()
				}
				campaigns, haveCampaigns = cs, true
			}
			if haveDonations && haveCampaigns {
				if !emit(core.SummarizeByCategory(donations, campaigns)) {
					return nil
				}
			}
		}
	}), nil
}
