package amqp

import (
	"encoding/json"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"charity/internal/core"
)

// DonationRecordedMessage announces a stored donation. The worker reads
// the campaign and its donations from the store; the message only says
// which campaign to look at.
type DonationRecordedMessage struct {
	DonationID string    `json:"donationId"`
	CampaignID string    `json:"campaignId"`
	UserID     string    `json:"userId"`
	Amount     float64   `json:"amount"`
	DonatedAt  int64     `json:"donatedAt"` // Unix milliseconds
	Timestamp  time.Time `json:"timestamp"` // publish time
}

func NewDonationRecordedMessage(d core.Donation) *DonationRecordedMessage {
	return &DonationRecordedMessage{
		DonationID: d.ID,
		CampaignID: d.CampaignID,
		UserID:     d.UserID,
		Amount:     d.Amount,
		DonatedAt:  d.Timestamp,
		Timestamp:  time.Now(),
	}
}

func (m *DonationRecordedMessage) Validate() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.DonationID, validation.Required),
		validation.Field(&m.CampaignID, validation.Required),
		validation.Field(&m.UserID, validation.Required),
		validation.Field(&m.Amount, validation.By(func(v interface{}) error {
			if f, _ := v.(float64); !core.ValidAmount(f) {
				return errors.New("must be a positive amount")
			}
			return nil
		})),
	)
}

func (m *DonationRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DonationRecordedMessageFromJSON decodes and validates a message body.
func DonationRecordedMessageFromJSON(data []byte) (*DonationRecordedMessage, error) {
	var msg DonationRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
