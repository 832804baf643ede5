package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// AnonymousDonor is recorded when a donor leaves the name blank.
	AnonymousDonor = "Anonymous"

	// UnknownCategory groups donations whose campaign is not in the catalog.
	UnknownCategory = "Unknown Category"

	// AllCategories disables category filtering in catalog reads.
	AllCategories = "All"

	// MaxMessageLength bounds the optional donation message (in characters).
	MaxMessageLength = 500
)

type (
	Campaign struct {
		ID           string  `json:"id"`
		Name         string  `json:"name"`
		Description  string  `json:"description"`
		Category     string  `json:"category"`
		GoalAmount   float64 `json:"goalAmount"`
		RaisedAmount float64 `json:"raisedAmount"`
		ImageURL     string  `json:"imageUrl"`
		Timestamp    int64   `json:"timestamp"` // Unix milliseconds
		SeedAmount   float64 `json:"seedAmount,omitempty"`
	}

	Donation struct {
		ID         string  `json:"id"`
		DonorName  string  `json:"donorName"`
		Amount     float64 `json:"amount"`
		Message    string  `json:"message"`
		Timestamp  int64   `json:"timestamp"` // Unix milliseconds
		CampaignID string  `json:"campaignId"`
		UserID     string  `json:"userId"`
	}

	// DonationInput is what a donor submits. Amount is kept as text so that
	// parsing and validation happen in one place.
	DonationInput struct {
		DonorName string
		Amount    string
		Message   string
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyCampaignID  = errors.New("empty campaign id")
	ErrEmptyUserID      = errors.New("empty user id")
	ErrMessageTooLong   = fmt.Errorf("message too long (max %d characters)", MaxMessageLength)
	ErrInvalidGoal      = errors.New("goal amount must be positive")
	ErrEmptyCampaignKey = errors.New("campaign id, name and category are required")
)

// Progress returns the funded fraction of the goal, capped at 1.
func (c Campaign) Progress() float64 {
	if c.GoalAmount <= 0 {
		return 0
	}
	p := c.RaisedAmount / c.GoalAmount
	if p > 1 {
		return 1
	}
	return p
}

func (c Campaign) Validate() error {
	if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Category) == "" {
		return ErrEmptyCampaignKey
	}
	if c.GoalAmount <= 0 {
		return ErrInvalidGoal
	}
	if c.RaisedAmount < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the input and returns the parsed amount.
// Errors wrap ErrValidation.
func (in DonationInput) Validate() (float64, error) {
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return 0, Invalid(err)
	}
	if utf8.RuneCountInString(in.Message) > MaxMessageLength {
		return 0, Invalid(ErrMessageTooLong)
	}
	return amount, nil
}

// NewDonation builds the record persisted for a validated input.
func NewDonation(id string, in DonationInput, amount float64, campaignID, userID string, at time.Time) Donation {
	name := strings.TrimSpace(in.DonorName)
	if name == "" {
		name = AnonymousDonor
	}
	return Donation{
		ID:         id,
		DonorName:  name,
		Amount:     amount,
		Message:    strings.TrimSpace(in.Message),
		Timestamp:  at.UnixMilli(),
		CampaignID: campaignID,
		UserID:     userID,
	}
}

// UserKey turns an email into a store path segment. Dots are not allowed
// in keys, so they become commas; case is kept so existing records stay
// addressable.
func UserKey(email string) string {
	return strings.ReplaceAll(email, ".", ",")
}
