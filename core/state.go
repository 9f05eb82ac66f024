package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidState  = errors.New("invalid state")
	ErrStateMismatch = errors.New("state mismatch")
)

// StateManager issues and validates the CSRF state artifact bound to a return
// URL. The artifact is a signed, then encrypted token held in a short-lived
// httpOnly cookie; the bare id is round-tripped through the provider redirect.
type StateManager struct {
	codec *TokenCodec
	ttl   time.Duration
}

func NewStateManager(codec *TokenCodec, ttl time.Duration) *StateManager {
	return &StateManager{codec: codec, ttl: ttl}
}

// Issue generates a fresh state id bound to returnURL and returns both the id
// (for the authorize redirect) and the cookie value.
func (m *StateManager) Issue(returnURL string) (id, cookieValue string, err error) {
	id = uuid.NewString()
	now := time.Now()

	claims := &StateClaims{
		State: StatePayload{ID: id, URL: returnURL},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   SubjectState,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := m.codec.Sign(claims)
	if err != nil {
		return "", "", fmt.Errorf("signing state: %w", err)
	}

	cookieValue, err = m.codec.Encrypt(signed)
	if err != nil {
		return "", "", fmt.Errorf("encrypting state: %w", err)
	}

	return id, cookieValue, nil
}

// Validate decrypts and verifies the state cookie and requires the embedded id
// to equal the id echoed back by the provider redirect. A cookie that fails to
// decrypt or verify, including plain expiry, is ErrInvalidState; a verified
// cookie whose id differs from queryState is ErrStateMismatch, with the
// embedded return URL still reported so the caller can route a declined
// consent. The caller deletes the cookie before looking at the outcome, so a
// state is validated at most once.
func (m *StateManager) Validate(cookieValue, queryState string) (returnURL string, err error) {
	signed, err := m.codec.Decrypt(cookieValue)
	if err != nil {
		return "", ErrInvalidState
	}

	var claims StateClaims
	if err := m.codec.Verify(signed, &claims, SubjectState); err != nil {
		return "", ErrInvalidState
	}

	if claims.State.ID == "" || claims.State.ID != queryState {
		return claims.State.URL, ErrStateMismatch
	}

	return claims.State.URL, nil
}
