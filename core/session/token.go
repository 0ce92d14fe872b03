package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/pkg/errors"

	"github.com/codeabode/backend/core"
)

// tokenBytes is the amount of randomness in a token (256 bits).
const tokenBytes = 32

var (
	NowFunc = time.Now // mockable

	randRead = rand.Read // mockable
)

// Token is an opaque bearer credential owned by one account.
// It is valid while ExpiresAt is in the future; revocation moves ExpiresAt to the revocation instant.
type Token struct {
	Value     string    `json:"token"`
	AccountID int       `json:"-"`
	ExpiresAt time.Time `json:"expires_at"` // UTC
	CreatedAt time.Time `json:"-"`          // UTC
}

func (t Token) ValidAt(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}

type (
	Repository interface {
		CreateToken(ctx context.Context, tok Token, exec ...core.DBExecutor) error
		// GetLiveToken returns the token only if its expiry is strictly after now; ErrNotFound otherwise.
		GetLiveToken(ctx context.Context, value string, now time.Time, exec ...core.DBExecutor) (Token, error)
		// ExpireTokens sets expires_at = now on the account's live tokens (all of them when value is empty).
		ExpireTokens(ctx context.Context, accountID int, value string, now time.Time, exec ...core.DBExecutor) (int64, error)
	}

	Manager struct {
		repo Repository
		ttl  time.Duration
	}
)

var ErrNotFound = errors.New("token not found")

func NewManager(conf *core.Config, repo Repository) *Manager {
	return &Manager{repo: repo, ttl: conf.Session.TTL}
}

func newTokenValue() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := randRead(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Issue creates a fresh token for the account. Other live tokens are left untouched.
func (m *Manager) Issue(ctx context.Context, accountID int) (Token, error) {
	value, err := newTokenValue()
	if err != nil {
		return Token{}, errors.Wrap(err, "generating token")
	}
	now := NowFunc().UTC()
	tok := Token{
		Value:     value,
		AccountID: accountID,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.repo.CreateToken(ctx, tok); err != nil {
		return Token{}, errors.Wrap(err, "storing token")
	}
	return tok, nil
}

// Validate returns the ID of the account owning a live token.
// Missing, unknown, expired and revoked tokens all give core.ErrUnauthorized.
func (m *Manager) Validate(ctx context.Context, value string) (int, error) {
	if value == "" {
		return 0, core.ErrUnauthorized
	}
	tok, err := m.repo.GetLiveToken(ctx, value, NowFunc().UTC())
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return 0, core.ErrUnauthorized
		}
		return 0, errors.Wrap(err, "finding token")
	}
	return tok.AccountID, nil
}

// RevokeAll expires every live token of the account and returns how many were live.
// Pass exec to make the revocation part of the caller's transaction.
func (m *Manager) RevokeAll(ctx context.Context, accountID int, exec ...core.DBExecutor) (int64, error) {
	n, err := m.repo.ExpireTokens(ctx, accountID, "", NowFunc().UTC(), exec...)
	if err != nil {
		return 0, errors.Wrap(err, "expiring tokens")
	}
	return n, nil
}

// Revoke expires a single token of the account (logout).
func (m *Manager) Revoke(ctx context.Context, accountID int, value string) error {
	if value == "" {
		return nil
	}
	if _, err := m.repo.ExpireTokens(ctx, accountID, value, NowFunc().UTC()); err != nil {
		return errors.Wrap(err, "expiring token")
	}
	return nil
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}
