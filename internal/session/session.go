// Package session keeps the signed-in user's state in a small TOML file,
// standing in for the device-local preferences of a mobile client. The same
// file holds the tokens issued to API clients at login, so that each client
// carries its own identity.
package session

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"charity/internal/core"
)

var (
	// ErrNotLoggedIn is returned by GetCurrentUserID when nobody is signed in.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrUnknownToken is returned by Resolve for tokens that were never
	// issued, were revoked or have expired.
	ErrUnknownToken = errors.New("unknown or expired session token")
)

type token struct {
	UserID  string    `toml:"user_id"`
	Expires time.Time `toml:"expires"`
}

type state struct {
	LoggedIn bool             `toml:"logged_in"`
	Profile  *core.Profile    `toml:"profile,omitempty"`
	Tokens   map[string]token `toml:"tokens,omitempty"`
}

// Store is safe for concurrent use within one process.
type Store struct {
	path string
	now  func() time.Time

	mu    sync.Mutex
	state state
}

// Open loads the session file at path; a missing file is an empty session.
func Open(path string) (*Store, error) {
	s := &Store{path: path, now: time.Now}
	md, err := toml.DecodeFile(path, &s.state)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		slog.Warn("Ignoring unknown session keys", "path", path, "keys", fmt.Sprint(undecoded))
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// GetCurrentUserID returns the user key of the signed-in donor.
func (s *Store) GetCurrentUserID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.LoggedIn || s.state.Profile == nil || s.state.Profile.Email == "" {
		return "", ErrNotLoggedIn
	}
	return core.UserKey(s.state.Profile.Email), nil
}

func (s *Store) GetLoginStatus() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LoggedIn, nil
}

func (s *Store) SetLoginStatus(loggedIn bool) error {
	return s.update(func(st *state) { st.LoggedIn = loggedIn })
}

// GetCachedProfile reports false when no profile is cached.
func (s *Store) GetCachedProfile() (core.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Profile == nil {
		return core.Profile{}, false, nil
	}
	return *s.state.Profile, true, nil
}

func (s *Store) SetCachedProfile(p core.Profile) error {
	return s.update(func(st *state) { st.Profile = &p })
}

// Clear signs the user out and forgets the cached profile. Issued tokens
// are left alone.
func (s *Store) Clear() error {
	return s.update(func(st *state) {
		st.LoggedIn = false
		st.Profile = nil
	})
}

// Issue creates a token identifying userID until ttl has passed. Expired
// tokens are dropped on the way.
func (s *Store) Issue(userID string, ttl time.Duration) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrNotLoggedIn
	}
	id := uuid.NewString()
	expires := s.now().Add(ttl).UTC().Truncate(time.Second)
	err := s.update(func(st *state) {
		st.Tokens = s.liveTokens(st.Tokens)
		st.Tokens[id] = token{UserID: userID, Expires: expires}
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return id, expires, nil
}

// Resolve returns the user key a token was issued for.
func (s *Store) Resolve(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.Tokens[id]
	if !ok || !s.now().Before(t.Expires) {
		return "", ErrUnknownToken
	}
	return t.UserID, nil
}

// Revoke forgets a token. Unknown tokens are ignored.
func (s *Store) Revoke(id string) error {
	s.mu.Lock()
	_, ok := s.state.Tokens[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.update(func(st *state) {
		st.Tokens = s.liveTokens(st.Tokens)
		delete(st.Tokens, id)
	})
}

// liveTokens copies the unexpired entries of tokens into a new map.
func (s *Store) liveTokens(tokens map[string]token) map[string]token {
	now := s.now()
	live := maps.Clone(tokens)
	if live == nil {
		live = make(map[string]token)
	}
	maps.DeleteFunc(live, func(_ string, t token) bool { return !now.Before(t.Expires) })
	return live
}

func (s *Store) update(fn func(*state)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state
	fn(&next)
	if err := s.write(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

// write replaces the file atomically via a temporary file and rename.
func (s *Store) write(st state) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(st); err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.toml")
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
