package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"

	"charity/internal/core"
	"charity/internal/session"
)

var (
	// ErrUnauthenticated means the request carries no usable identity.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidToken means a bearer token was present but rejected.
	ErrInvalidToken = errors.New("invalid token")
)

// Identity resolves the user key acting on a request.
type Identity interface {
	UserID(r *http.Request) (string, error)
}

// SessionCookie carries the token issued by /api/login.
const SessionCookie = "charity_session"

// SessionIssuer hands out and revokes per-client session tokens.
type SessionIssuer interface {
	Issue(userID string, ttl time.Duration) (string, time.Time, error)
	Revoke(token string) error
}

// TokenIdentity resolves the session token a client received at login. The
// token is read from an "Authorization: Bearer" header, the access_token
// query parameter or the session cookie. Requests without one are
// anonymous, whoever else is signed in.
type TokenIdentity struct {
	Sessions *session.Store
}

func (i TokenIdentity) UserID(r *http.Request) (string, error) {
	raw := sessionToken(r)
	if raw == "" {
		return "", ErrUnauthenticated
	}
	id, err := i.Sessions.Resolve(raw)
	if errors.Is(err, session.ErrUnknownToken) {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return id, err
}

func sessionToken(r *http.Request) string {
	if t := bearerToken(r); t != "" {
		return t
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// TokenVerifier is the part of the Firebase auth client used here.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

var (
	_ TokenVerifier = (*auth.Client)(nil)
	_ SessionIssuer = (*session.Store)(nil)
)

// FirebaseIdentity verifies an "Authorization: Bearer" ID token and keys
// the user by the token's email claim. Browsers cannot set headers on
// websocket handshakes, so an access_token query parameter is accepted too.
type FirebaseIdentity struct {
	Verifier TokenVerifier
}

func bearerToken(r *http.Request) string {
	if scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func (i FirebaseIdentity) UserID(r *http.Request) (string, error) {
	raw := bearerToken(r)
	if raw == "" {
		return "", ErrUnauthenticated
	}
	token, err := i.Verifier.VerifyIDToken(r.Context(), raw)
	if err != nil {
		return "", ErrInvalidToken
	}
	email, _ := token.Claims["email"].(string)
	if email == "" {
		return "", ErrInvalidToken
	}
	return core.UserKey(email), nil
}
