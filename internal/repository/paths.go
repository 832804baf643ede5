// Package repository maps domain records onto store paths and decodes
// store values into typed records, rejecting malformed data.
//
// Layout:
//
//	campaigns/{campaignId}
//	donations/{campaignId}/{donationId}
//	users/{userId}/donations/{donationId}
//	DonorData/{userKey}
package repository

import "charity/internal/store"

const (
	campaignsKey = "campaigns"
	donationsKey = "donations"
	usersKey     = "users"
	donorsKey    = "DonorData"
)

// CampaignsPath is the campaign collection.
func CampaignsPath() store.Path { return store.MustPath(campaignsKey) }

func CampaignPath(campaignID string) (store.Path, error) {
	return store.NewPath(campaignsKey, campaignID)
}

// DonationsPath is the root of every campaign's donation collection.
func DonationsPath() store.Path { return store.MustPath(donationsKey) }

func CampaignDonationsPath(campaignID string) (store.Path, error) {
	return store.NewPath(donationsKey, campaignID)
}

func UserDonationsPath(userID string) (store.Path, error) {
	return store.NewPath(usersKey, userID, donationsKey)
}

func UserDonationPath(userID, donationID string) (store.Path, error) {
	return store.NewPath(usersKey, userID, donationsKey, donationID)
}

func DonorPath(userKey string) (store.Path, error) {
	return store.NewPath(donorsKey, userKey)
}
