package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"charity/internal/core"
)

// ErrMalformedRecord is returned when a stored value does not match the
// expected record shape.
var ErrMalformedRecord = errors.New("malformed record")

func malformed(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrMalformedRecord, path, err)
}

var positiveAmount = validation.By(func(value interface{}) error {
	if p, ok := value.(*float64); ok && p != nil && !core.ValidAmount(*p) {
		return errors.New("must be a positive amount")
	}
	return nil
})

type campaignRecord struct {
	Name         *string  `json:"name"`
	Description  string   `json:"description"`
	Category     *string  `json:"category"`
	GoalAmount   *float64 `json:"goalAmount"`
	RaisedAmount *float64 `json:"raisedAmount"`
	ImageURL     string   `json:"imageUrl"`
	Timestamp    *int64   `json:"timestamp"`
	SeedAmount   *float64 `json:"seedAmount"`
}

func (r *campaignRecord) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Category, validation.Required),
		validation.Field(&r.GoalAmount, validation.NotNil),
		validation.Field(&r.RaisedAmount, validation.NotNil),
		validation.Field(&r.Timestamp, validation.NotNil),
	)
}

// DecodeCampaign decodes the record stored at campaigns/{id}.
func DecodeCampaign(id string, raw json.RawMessage) (core.Campaign, error) {
	where := campaignsKey + "/" + id
	var rec campaignRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return core.Campaign{}, malformed(where, err)
	}
	if err := rec.Validate(); err != nil {
		return core.Campaign{}, malformed(where, err)
	}
	c := core.Campaign{
		ID:           id,
		Name:         *rec.Name,
		Description:  rec.Description,
		Category:     *rec.Category,
		GoalAmount:   *rec.GoalAmount,
		RaisedAmount: *rec.RaisedAmount,
		ImageURL:     rec.ImageURL,
		Timestamp:    *rec.Timestamp,
	}
	if rec.SeedAmount != nil {
		c.SeedAmount = *rec.SeedAmount
	}
	return c, nil
}

// DecodeCampaigns decodes the campaign collection, newest first. A nil
// value is an empty catalog.
func DecodeCampaigns(raw json.RawMessage) ([]core.Campaign, error) {
	children, err := decodeChildren(campaignsKey, raw)
	if err != nil {
		return nil, err
	}
	out := make([]core.Campaign, 0, len(children))
	for id, child := range children {
		c, err := DecodeCampaign(id, child)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	SortCampaigns(out)
	return out, nil
}

type donationRecord struct {
	DonorName  *string  `json:"donorName"`
	Amount     *float64 `json:"amount"`
	Message    string   `json:"message"`
	Timestamp  *int64   `json:"timestamp"`
	CampaignID *string  `json:"campaignId"`
	UserID     *string  `json:"userId"`
}

func (r *donationRecord) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.DonorName, validation.Required),
		validation.Field(&r.Amount, validation.NotNil, positiveAmount),
		validation.Field(&r.Timestamp, validation.NotNil),
		validation.Field(&r.CampaignID, validation.Required),
		validation.Field(&r.UserID, validation.Required),
	)
}

// DecodeDonation decodes one donation record; where names its location
// for error messages.
func DecodeDonation(where, id string, raw json.RawMessage) (core.Donation, error) {
	var rec donationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return core.Donation{}, malformed(where, err)
	}
	if err := rec.Validate(); err != nil {
		return core.Donation{}, malformed(where, err)
	}
	return core.Donation{
		ID:         id,
		DonorName:  *rec.DonorName,
		Amount:     *rec.Amount,
		Message:    rec.Message,
		Timestamp:  *rec.Timestamp,
		CampaignID: *rec.CampaignID,
		UserID:     *rec.UserID,
	}, nil
}

// DecodeDonations decodes a donation collection keyed by donation id,
// newest first.
func DecodeDonations(where string, raw json.RawMessage) ([]core.Donation, error) {
	children, err := decodeChildren(where, raw)
	if err != nil {
		return nil, err
	}
	out := make([]core.Donation, 0, len(children))
	for id, child := range children {
		d, err := DecodeDonation(where+"/"+id, id, child)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	SortDonations(out)
	return out, nil
}

// DecodeAllDonations flattens donations/{campaignId}/{donationId}.
func DecodeAllDonations(raw json.RawMessage) ([]core.Donation, error) {
	campaigns, err := decodeChildren(donationsKey, raw)
	if err != nil {
		return nil, err
	}
	var out []core.Donation
	for cid, child := range campaigns {
		ds, err := DecodeDonations(donationsKey+"/"+cid, child)
		if err != nil {
			return nil, err
		}
		out = append(out, ds...)
	}
	if out == nil {
		out = []core.Donation{}
	}
	SortDonations(out)
	return out, nil
}

type donorRecord struct {
	FullName     *string `json:"fullName"`
	Email        *string `json:"email"`
	Country      string  `json:"country"`
	PasswordHash *string `json:"passwordHash"`
	ProfileImage string  `json:"profileImage"`
}

func (r *donorRecord) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.FullName, validation.Required),
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.PasswordHash, validation.Required),
	)
}

func DecodeDonor(key string, raw json.RawMessage) (core.Donor, error) {
	where := donorsKey + "/" + key
	var rec donorRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return core.Donor{}, malformed(where, err)
	}
	if err := rec.Validate(); err != nil {
		return core.Donor{}, malformed(where, err)
	}
	return core.Donor{
		FullName:     *rec.FullName,
		Email:        *rec.Email,
		Country:      rec.Country,
		PasswordHash: *rec.PasswordHash,
		ProfileImage: rec.ProfileImage,
	}, nil
}

func decodeChildren(where string, raw json.RawMessage) (map[string]json.RawMessage, error) {
	if raw == nil {
		return nil, nil
	}
	var children map[string]json.RawMessage
	if err := json.Unmarshal(raw, &children); err != nil {
		return nil, malformed(where, err)
	}
	return children, nil
}

// SortCampaigns orders by creation time, newest first; ties by id.
func SortCampaigns(cs []core.Campaign) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Timestamp != cs[j].Timestamp {
			return cs[i].Timestamp > cs[j].Timestamp
		}
		return cs[i].ID < cs[j].ID
	})
}

// SortDonations orders by time, newest first; ties by id.
func SortDonations(ds []core.Donation) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].Timestamp != ds[j].Timestamp {
			return ds[i].Timestamp > ds[j].Timestamp
		}
		return ds[i].ID < ds[j].ID
	})
}
