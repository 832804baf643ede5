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
	ErrDonorNotFound = errors.New("donor not found")
	ErrDonorExists   = errors.New("donor already registered")
)

type Donors struct {
	store store.Store
}

func NewDonors(s store.Store) *Donors {
	return &Donors{store: s}
}

func (r *Donors) Get(ctx context.Context, key string) (core.Donor, error) {
	p, err := DonorPath(key)
	if err != nil {
		return core.Donor{}, err
	}
	raw, err := r.store.Get(ctx, p)
	if errors.Is(err, store.ErrNotFound) {
		return core.Donor{}, fmt.Errorf("%w: %s", ErrDonorNotFound, key)
	}
	if err != nil {
		return core.Donor{}, err
	}
	return DecodeDonor(key, raw)
}

// Create stores d under key, failing with ErrDonorExists if taken.
func (r *Donors) Create(ctx context.Context, key string, d core.Donor) error {
	p, err := DonorPath(key)
	if err != nil {
		return err
	}
	return r.store.Update(ctx, p, func(cur json.RawMessage) (any, error) {
		if cur != nil {
			return nil, fmt.Errorf("%w: %s", ErrDonorExists, key)
		}
		return d, nil
	})
}

// SetProfileImage replaces the avatar of an existing donor.
func (r *Donors) SetProfileImage(ctx context.Context, key, image string) (core.Donor, error) {
	p, err := DonorPath(key)
	if err != nil {
		return core.Donor{}, err
	}
	var updated core.Donor
	err = r.store.Update(ctx, p, func(cur json.RawMessage) (any, error) {
		if cur == nil {
			return nil, fmt.Errorf("%w: %s", ErrDonorNotFound, key)
		}
		d, err := DecodeDonor(key, cur)
		if err != nil {
			return nil, err
		}
		d.ProfileImage = image
		updated = d
		return d, nil
	})
	return updated, err
}
