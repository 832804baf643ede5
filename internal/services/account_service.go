package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"golang.org/x/crypto/bcrypt"

	"charity/internal/core"
	"charity/internal/repository"
	"charity/internal/store"
)

var (
	ErrAccountExists      = errors.New("an account with this email already exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// SessionStore keeps the signed-in user's state on this device.
type SessionStore interface {
	SetLoginStatus(loggedIn bool) error
	SetCachedProfile(p core.Profile) error
	GetCachedProfile() (core.Profile, bool, error)
	Clear() error
}

var (
	fullNameRule = validation.Match(regexp.MustCompile(`^[\p{L} ]+$`)).Error("must contain only letters and spaces")
	pwdRules     = []validation.Rule{validation.Required, validation.Length(6, 64)}
)

// Registration is the sign-up form.
type Registration struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	Country         string `json:"country"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	ProfileImage    string `json:"profileImage"`
}

func (r Registration) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Required, validation.Length(2, 100), fullNameRule),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, pwdRules...),
		validation.Field(&r.ConfirmPassword, validation.Required, validation.In(r.Password).Error("passwords do not match")),
		validation.Field(&r.ProfileImage, validation.Required, is.Base64),
	)
}

// AccountService handles donor accounts and the local session.
type AccountService struct {
	donors  *repository.Donors
	session SessionStore
	cost    int
}

// NewAccountService builds the service. session may be nil when identity
// comes from elsewhere; login state is then not persisted.
func NewAccountService(s store.Store, session SessionStore) *AccountService {
	return &AccountService{
		donors:  repository.NewDonors(s),
		session: session,
		cost:    bcrypt.DefaultCost,
	}
}

// Register creates the donor record. The password is stored as a bcrypt
// hash.
func (s *AccountService) Register(ctx context.Context, r Registration) (core.Profile, error) {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.TrimSpace(r.Email)
	r.Country = strings.TrimSpace(r.Country)
	if err := r.Validate(); err != nil {
		return core.Profile{}, core.Invalid(err)
	}

	key := core.UserKey(r.Email)
	if err := store.ValidateKey(key); err != nil {
		return core.Profile{}, core.Invalid(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.cost)
	if err != nil {
		return core.Profile{}, fmt.Errorf("hash password: %w", err)
	}
	donor := core.Donor{
		FullName:     r.FullName,
		Email:        r.Email,
		Country:      r.Country,
		PasswordHash: string(hash),
		ProfileImage: r.ProfileImage,
	}
	if err := s.donors.Create(ctx, key, donor); err != nil {
		if errors.Is(err, repository.ErrDonorExists) {
			return core.Profile{}, ErrAccountExists
		}
		return core.Profile{}, fmt.Errorf("create account: %w", err)
	}

	slog.InfoContext(ctx, "Account registered", "user_id", key)
	return donor.Profile(), nil
}

// Login checks the credentials and records the session.
func (s *AccountService) Login(ctx context.Context, email, password string) (core.Profile, error) {
	key := core.UserKey(strings.TrimSpace(email))
	if err := store.ValidateKey(key); err != nil {
		return core.Profile{}, core.Invalid(err)
	}

	donor, err := s.donors.Get(ctx, key)
	if errors.Is(err, repository.ErrDonorNotFound) {
		return core.Profile{}, ErrAccountNotFound
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("read account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(donor.PasswordHash), []byte(password)); err != nil {
		slog.WarnContext(ctx, "Login rejected", "user_id", key)
		return core.Profile{}, ErrInvalidCredentials
	}

	profile := donor.Profile()
	if s.session != nil {
		if err := s.session.SetLoginStatus(true); err != nil {
			return core.Profile{}, fmt.Errorf("save session: %w", err)
		}
		if err := s.session.SetCachedProfile(profile); err != nil {
			return core.Profile{}, fmt.Errorf("save session: %w", err)
		}
	}
	slog.InfoContext(ctx, "User logged in", "user_id", key)
	return profile, nil
}

func (s *AccountService) Logout(ctx context.Context) error {
	if s.session == nil {
		return nil
	}
	if err := s.session.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	slog.InfoContext(ctx, "User logged out")
	return nil
}

// Profile returns the cached profile when it belongs to userID, otherwise
// the stored record.
func (s *AccountService) Profile(ctx context.Context, userID string) (core.Profile, error) {
	if s.session != nil {
		if p, ok, err := s.session.GetCachedProfile(); err == nil && ok && p.UserID == userID {
			return p, nil
		}
	}
	if err := store.ValidateKey(userID); err != nil {
		return core.Profile{}, core.Invalid(err)
	}
	donor, err := s.donors.Get(ctx, userID)
	if errors.Is(err, repository.ErrDonorNotFound) {
		return core.Profile{}, ErrAccountNotFound
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("read account: %w", err)
	}
	return donor.Profile(), nil
}

// UpdateProfileImage replaces the avatar and refreshes the cached profile.
func (s *AccountService) UpdateProfileImage(ctx context.Context, userID, image string) (core.Profile, error) {
	if err := validation.Validate(image, validation.Required, is.Base64); err != nil {
		return core.Profile{}, core.Invalid(fmt.Errorf("profile image: %w", err))
	}
	if err := store.ValidateKey(userID); err != nil {
		return core.Profile{}, core.Invalid(err)
	}

	donor, err := s.donors.SetProfileImage(ctx, userID, image)
	if errors.Is(err, repository.ErrDonorNotFound) {
		return core.Profile{}, ErrAccountNotFound
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("update profile image: %w", err)
	}

	profile := donor.Profile()
	if s.session != nil {
		if cached, ok, err := s.session.GetCachedProfile(); err == nil && ok && cached.UserID == userID {
			if err := s.session.SetCachedProfile(profile); err != nil {
				slog.WarnContext(ctx, "Failed to refresh cached profile", "user_id", userID, "error", err)
			}
		}
	}
	return profile, nil
}
