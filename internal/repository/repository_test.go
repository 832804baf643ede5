package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"charity/internal/core"
	"charity/internal/store"
	"charity/internal/store/memory"
)

func campaign(id string, ts int64) core.Campaign {
	return core.Campaign{ID: id, Name: "Campaign " + id, Category: "Health", GoalAmount: 1000, RaisedAmount: 100, Timestamp: ts}
}

func TestDecodeCampaignRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing name", `{"category":"Health","goalAmount":1,"raisedAmount":0,"timestamp":1}`},
		{"missing raised", `{"name":"a","category":"Health","goalAmount":1,"timestamp":1}`},
		{"wrong type", `{"name":"a","category":"Health","goalAmount":"lots","raisedAmount":0,"timestamp":1}`},
		{"not an object", `42`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeCampaign("c1", json.RawMessage(tt.raw)); !errors.Is(err, ErrMalformedRecord) {
				t.Fatalf("expected ErrMalformedRecord, got %v", err)
			}
		})
	}

	c, err := DecodeCampaign("c1", json.RawMessage(`{"name":"a","category":"Health","goalAmount":10,"raisedAmount":0,"timestamp":5}`))
	if err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
	if c.ID != "c1" || c.RaisedAmount != 0 || c.SeedAmount != 0 {
		t.Fatalf("unexpected campaign %+v", c)
	}
}

func TestDecodeDonationRejectsBadAmount(t *testing.T) {
	raw := `{"donorName":"A","amount":-5,"timestamp":1,"campaignId":"c1","userId":"u1"}`
	if _, err := DecodeDonation("donations/c1/d1", "d1", json.RawMessage(raw)); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestCampaignListOrdering(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	repo := NewCampaigns(s)

	for _, c := range []core.Campaign{campaign("b", 10), campaign("a", 10), campaign("c", 30)} {
		if err := repo.Put(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	got, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, c := range got {
		ids = append(ids, c.ID)
	}
	if len(ids) != 3 || ids[0] != "c" || ids[1] != "a" || ids[2] != "b" {
		t.Fatalf("unexpected order %v", ids)
	}

	empty, err := NewCampaigns(memory.New()).List(ctx)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty catalog = %v, %v", empty, err)
	}
}

func TestAddRaised(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	repo := NewCampaigns(s)
	if err := repo.Put(ctx, campaign("c1", 1)); err != nil {
		t.Fatal(err)
	}

	total, err := repo.AddRaised(ctx, "c1", 50)
	if err != nil || total != 150 {
		t.Fatalf("AddRaised = %v, %v", total, err)
	}
	total, err = repo.AddRaisedNaive(ctx, "c1", 0.25)
	if err != nil || total != 150.25 {
		t.Fatalf("AddRaisedNaive = %v, %v", total, err)
	}
	c, err := repo.Get(ctx, "c1")
	if err != nil || c.RaisedAmount != 150.25 || c.Name != "Campaign c1" {
		t.Fatalf("stored campaign %+v, %v", c, err)
	}

	if _, err := repo.AddRaised(ctx, "ghost", 1); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}
	if _, err := repo.AddRaisedNaive(ctx, "ghost", 1); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, store.MustPath("campaigns", "ghost")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing campaign must not be created, got %v", err)
	}
}

func TestCreateCampaignOnlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewCampaigns(memory.New())

	created, err := repo.Create(ctx, campaign("c1", 1))
	if err != nil || !created {
		t.Fatalf("first create = %v, %v", created, err)
	}
	changed := campaign("c1", 1)
	changed.Name = "other"
	created, err = repo.Create(ctx, changed)
	if err != nil || created {
		t.Fatalf("second create = %v, %v", created, err)
	}
	c, _ := repo.Get(ctx, "c1")
	if c.Name != "Campaign c1" {
		t.Fatalf("existing campaign overwritten: %+v", c)
	}
}

func TestCampaignWritesRejectInvalidRecords(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	repo := NewCampaigns(s)

	noGoal := campaign("c1", 1)
	noGoal.GoalAmount = 0
	if err := repo.Put(ctx, noGoal); !errors.Is(err, core.ErrInvalidGoal) || !errors.Is(err, core.ErrValidation) {
		t.Fatalf("Put: expected invalid goal, got %v", err)
	}
	noName := campaign("c2", 1)
	noName.Name = " "
	if created, err := repo.Create(ctx, noName); created || !errors.Is(err, core.ErrEmptyCampaignKey) {
		t.Fatalf("Create = %v, %v", created, err)
	}
	if _, err := s.Get(ctx, CampaignsPath()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("nothing may be written, got %v", err)
	}
}

func TestDonationCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewDonations(memory.New())

	at, err := repo.Allocate(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	d := core.Donation{ID: at.Key(), DonorName: "Ann", Amount: 12.5, Timestamp: 100, CampaignID: "c1", UserID: "ann@x,org"}
	if err := repo.PutCampaignCopy(ctx, at, d); err != nil {
		t.Fatal(err)
	}
	if err := repo.PutUserCopy(ctx, d); err != nil {
		t.Fatal(err)
	}

	byCampaign, err := repo.ForCampaign(ctx, "c1")
	if err != nil || len(byCampaign) != 1 {
		t.Fatalf("ForCampaign = %v, %v", byCampaign, err)
	}
	byUser, err := repo.ForUser(ctx, "ann@x,org")
	if err != nil || len(byUser) != 1 {
		t.Fatalf("ForUser = %v, %v", byUser, err)
	}
	if byCampaign[0] != byUser[0] || byCampaign[0] != d {
		t.Fatalf("copies differ: %+v vs %+v", byCampaign[0], byUser[0])
	}

	all, err := repo.All(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("All = %v, %v", all, err)
	}
	none, err := repo.ForUser(ctx, "nobody")
	if err != nil || len(none) != 0 {
		t.Fatalf("ForUser(nobody) = %v, %v", none, err)
	}
}

func TestDonors(t *testing.T) {
	ctx := context.Background()
	repo := NewDonors(memory.New())
	key := core.UserKey("ann@example.org")
	d := core.Donor{FullName: "Ann", Email: "ann@example.org", PasswordHash: "hash"}

	if err := repo.Create(ctx, key, d); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, key, d); !errors.Is(err, ErrDonorExists) {
		t.Fatalf("expected ErrDonorExists, got %v", err)
	}
	updated, err := repo.SetProfileImage(ctx, key, "aGVsbG8=")
	if err != nil || updated.ProfileImage != "aGVsbG8=" {
		t.Fatalf("SetProfileImage = %+v, %v", updated, err)
	}
	got, err := repo.Get(ctx, key)
	if err != nil || got != updated {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrDonorNotFound) {
		t.Fatalf("expected ErrDonorNotFound, got %v", err)
	}
	if _, err := repo.SetProfileImage(ctx, "missing", "x"); !errors.Is(err, ErrDonorNotFound) {
		t.Fatalf("expected ErrDonorNotFound, got %v", err)
	}
}
