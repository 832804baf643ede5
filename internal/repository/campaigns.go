package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"charity/internal/core"
	"charity/internal/store"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	errCampaignExists   = errors.New("campaign exists")
)

type Campaigns struct {
	store store.Store
}

func NewCampaigns(s store.Store) *Campaigns {
	return &Campaigns{store: s}
}

func (r *Campaigns) Get(ctx context.Context, id string) (core.Campaign, error) {
	p, err := CampaignPath(id)
	if err != nil {
		return core.Campaign{}, err
	}
	raw, err := r.store.Get(ctx, p)
	if errors.Is(err, store.ErrNotFound) {
		return core.Campaign{}, fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	if err != nil {
		return core.Campaign{}, err
	}
	return DecodeCampaign(id, raw)
}

// List returns every campaign, newest first.
func (r *Campaigns) List(ctx context.Context) ([]core.Campaign, error) {
	raw, err := r.store.Get(ctx, CampaignsPath())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	cs, err := DecodeCampaigns(raw)
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// Put overwrites a campaign record. Invalid campaigns are rejected with an
// error wrapping core.ErrValidation.
func (r *Campaigns) Put(ctx context.Context, c core.Campaign) error {
	if err := c.Validate(); err != nil {
		return core.Invalid(err)
	}
	p, err := CampaignPath(c.ID)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, p, c)
}

// Create writes c unless a campaign with the same id exists. It reports
// whether the record was written.
func (r *Campaigns) Create(ctx context.Context, c core.Campaign) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, core.Invalid(err)
	}
	p, err := CampaignPath(c.ID)
	if err != nil {
		return false, err
	}
	err = r.store.Update(ctx, p, func(cur json.RawMessage) (any, error) {
		if cur != nil {
			return nil, errCampaignExists
		}
		return c, nil
	})
	if errors.Is(err, errCampaignExists) {
		return false, nil
	}
	return err == nil, err
}

// AddRaised atomically adds amount to the campaign's raisedAmount. It
// returns ErrCampaignNotFound when the campaign does not exist.
func (r *Campaigns) AddRaised(ctx context.Context, id string, amount float64) (float64, error) {
	p, err := CampaignPath(id)
	if err != nil {
		return 0, err
	}
	var total float64
	err = r.store.Update(ctx, p, func(cur json.RawMessage) (any, error) {
		if cur == nil {
			return nil, fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
		}
		c, err := DecodeCampaign(id, cur)
		if err != nil {
			return nil, err
		}
		node, err := store.Decode(cur)
		if err != nil {
			return nil, err
		}
		rec, ok := node.(map[string]any)
		if !ok {
			return nil, malformed(p.String(), errors.New("not an object"))
		}
		total = core.AddAmounts(c.RaisedAmount, amount)
		rec["raisedAmount"] = total
		return rec, nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// AddRaisedNaive reads the campaign and then writes raisedAmount in a
// second call. Concurrent callers can lose increments; AddRaised does not.
func (r *Campaigns) AddRaisedNaive(ctx context.Context, id string, amount float64) (float64, error) {
	c, err := r.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	p, err := CampaignPath(id)
	if err != nil {
		return 0, err
	}
	raised, err := p.Child("raisedAmount")
	if err != nil {
		return 0, err
	}
	total := core.AddAmounts(c.RaisedAmount, amount)
	if err := r.store.Set(ctx, raised, total); err != nil {
		return 0, err
	}
	return total, nil
}
