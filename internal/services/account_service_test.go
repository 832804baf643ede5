package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"charity/internal/core"
	"charity/internal/repository"
)

type memorySession struct {
	mu       sync.Mutex
	loggedIn bool
	profile  *core.Profile
}

func (m *memorySession) SetLoginStatus(v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loggedIn = v
	return nil
}

func (m *memorySession) SetCachedProfile(p core.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = &p
	return nil
}

func (m *memorySession) GetCachedProfile() (core.Profile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return core.Profile{}, false, nil
	}
	return *m.profile, true, nil
}

func (m *memorySession) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loggedIn, m.profile = false, nil
	return nil
}

func validRegistration() Registration {
	return Registration{
		FullName:        "Ann Lee",
		Email:           "ann.lee@example.org",
		Country:         "Ireland",
		Password:        "secret123",
		ConfirmPassword: "secret123",
		ProfileImage:    "aGVsbG8gd29ybGQ=",
	}
}

func newAccounts(t *testing.T) (*AccountService, *memorySession) {
	t.Helper()
	sess := &memorySession{}
	svc := NewAccountService(newMemory(t), sess)
	svc.cost = bcrypt.MinCost
	return svc, sess
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Registration)
	}{
		{"digits in name", func(r *Registration) { r.FullName = "Ann 2" }},
		{"bad email", func(r *Registration) { r.Email = "not-an-email" }},
		{"short password", func(r *Registration) { r.Password, r.ConfirmPassword = "abc", "abc" }},
		{"mismatch", func(r *Registration) { r.ConfirmPassword = "other123" }},
		{"missing image", func(r *Registration) { r.ProfileImage = "" }},
		{"image not base64", func(r *Registration) { r.ProfileImage = "%%%" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newAccounts(t)
			r := validRegistration()
			tt.mutate(&r)
			_, err := svc.Register(context.Background(), r)
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}
}

func TestRegisterStoresHashAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAccounts(t)

	profile, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	assert.Equal(t, "ann,lee@example,org", profile.UserID)

	donor, err := svc.donors.Get(ctx, profile.UserID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", donor.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(donor.PasswordHash), []byte("secret123")))

	_, err = svc.Register(ctx, validRegistration())
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestLoginLogout(t *testing.T) {
	ctx := context.Background()
	svc, sess := newAccounts(t)
	_, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	_, err = svc.Login(ctx, "nobody@example.org", "secret123")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	_, err = svc.Login(ctx, "ann.lee@example.org", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.False(t, sess.loggedIn)

	profile, err := svc.Login(ctx, "ann.lee@example.org", "secret123")
	require.NoError(t, err)
	assert.True(t, sess.loggedIn)
	cached, ok, _ := sess.GetCachedProfile()
	require.True(t, ok)
	assert.Equal(t, profile, cached)

	got, err := svc.Profile(ctx, profile.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", got.FullName)

	require.NoError(t, svc.Logout(ctx))
	assert.False(t, sess.loggedIn)
	_, ok, _ = sess.GetCachedProfile()
	assert.False(t, ok)

	// Without a cached profile the record is read from the store.
	got, err = svc.Profile(ctx, profile.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Ireland", got.Country)
}

func TestUpdateProfileImage(t *testing.T) {
	ctx := context.Background()
	svc, sess := newAccounts(t)
	_, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	profile, err := svc.Login(ctx, "ann.lee@example.org", "secret123")
	require.NoError(t, err)

	_, err = svc.UpdateProfileImage(ctx, profile.UserID, "not base64!")
	assert.ErrorIs(t, err, core.ErrValidation)

	updated, err := svc.UpdateProfileImage(ctx, profile.UserID, "bmV3IGF2YXRhcg==")
	require.NoError(t, err)
	assert.Equal(t, "bmV3IGF2YXRhcg==", updated.ProfileImage)
	cached, _, _ := sess.GetCachedProfile()
	assert.Equal(t, "bmV3IGF2YXRhcg==", cached.ProfileImage)

	_, err = svc.UpdateProfileImage(ctx, "ghost@example,org", "bmV3IGF2YXRhcg==")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	_, err = repository.NewDonors(newMemory(t)).Get(ctx, "ghost@example,org")
	assert.ErrorIs(t, err, repository.ErrDonorNotFound)
}

func TestUserKeyKeepsEmailCase(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAccounts(t)
	r := validRegistration()
	r.Email = "Ann.Lee@Example.org"

	profile, err := svc.Register(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, "Ann,Lee@Example,org", profile.UserID)

	_, err = svc.Login(ctx, " Ann.Lee@Example.org ", "secret123")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "ann.lee@example.org", "secret123")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
