package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/errgroup"
)

var ErrUnauthorized = errors.New("unauthorized")

// Session is the outcome of issuing or validating the two-cookie session.
// PublicToken/SecuredToken are set when the corresponding cookie must be
// (re)written in the outgoing response; SecuredToken stays empty on a plain
// refresh because the provider does not rotate refresh tokens on every
// exchange.
type Session struct {
	UserID      string
	UserName    string
	UserImage   string
	AccessToken string
	ExpiresAt   time.Time

	PublicToken  string
	SecuredToken string
	Refreshed    bool
}

// SessionManager owns minting, validating and rotating the two session
// cookies. It holds no per-request state; everything round-trips through the
// client.
type SessionManager struct {
	codec      *TokenCodec
	provider   AuthProvider
	repo       Repository
	securedTTL time.Duration
	leeway     time.Duration
}

func NewSessionManager(codec *TokenCodec, provider AuthProvider, repo Repository, securedTTL, refreshLeeway time.Duration) *SessionManager {
	return &SessionManager{
		codec:      codec,
		provider:   provider,
		repo:       repo,
		securedTTL: securedTTL,
		leeway:     refreshLeeway,
	}
}

// Issue builds a fresh session right after a successful authorization-code
// exchange: fetch profile and token-verify info in parallel, upsert the user
// record, mint both tokens.
func (m *SessionManager) Issue(ctx context.Context, tokens *OAuthTokens) (*Session, error) {
	info, tokenInfo, err := m.fetchIdentity(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	return m.mint(ctx, tokens, info, tokenInfo, tokens.RefreshToken, true)
}

// Validate resolves the session from the two cookie values. A public token
// whose expiry is comfortably ahead is returned as-is with zero provider
// calls. An expired, missing or near-expiry public token triggers a refresh
// via the secured token. A secured token that is missing, tampered, expired
// or rejected by the provider is ErrUnauthorized and the caller must clear
// both cookies; a transient upstream failure during the refresh is reported
// as-is so the caller can fail the request without destroying the session.
// The refresh always completes before the session is returned.
func (m *SessionManager) Validate(ctx context.Context, publicValue, securedValue string) (*Session, error) {
	if publicValue != "" {
		var claims SessionClaims
		if err := m.codec.Verify(publicValue, &claims, SubjectSession); err == nil {
			expiresAt := claims.ExpiresAt.Time
			if time.Until(expiresAt) > m.leeway {
				return &Session{
					UserID:      claims.User.UserID,
					UserName:    claims.User.UserName,
					UserImage:   claims.User.UserImage,
					AccessToken: claims.User.AccessToken,
					ExpiresAt:   expiresAt,
				}, nil
			}
		}
	}

	return m.refresh(ctx, securedValue)
}

func (m *SessionManager) refresh(ctx context.Context, securedValue string) (*Session, error) {
	if securedValue == "" {
		return nil, ErrUnauthorized
	}

	signed, err := m.codec.Decrypt(securedValue)
	if err != nil {
		return nil, ErrUnauthorized
	}

	var claims SecuredClaims
	if err := m.codec.Verify(signed, &claims, SubjectSecured); err != nil {
		return nil, ErrUnauthorized
	}

	refreshToken := claims.User.RefreshToken
	if refreshToken == "" {
		return nil, ErrUnauthorized
	}

	tokens, err := m.provider.RefreshAccessToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrProviderUnauthorized) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("refreshing access token: %w", err)
	}

	info, tokenInfo, err := m.fetchIdentity(ctx, tokens.AccessToken)
	if err != nil {
		if errors.Is(err, ErrProviderUnauthorized) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	sess, err := m.mint(ctx, tokens, info, tokenInfo, refreshToken, false)
	if err != nil {
		return nil, err
	}
	sess.Refreshed = true
	return sess, nil
}

// mint upserts the user record and signs the session tokens. The secured
// token is minted on issue, and on refresh only when the provider handed back
// a different refresh token.
func (m *SessionManager) mint(ctx context.Context, tokens *OAuthTokens, info *UserInfo, tokenInfo *TokenInfo, priorRefreshToken string, issue bool) (*Session, error) {
	now := time.Now()

	expiresAt := tokenInfo.ExpireDate
	if expiresAt.IsZero() {
		expiresAt = now.Add(time.Duration(tokens.ExpiresIn) * time.Second)
	}

	user := &User{
		UserID:    info.ProviderUserID,
		UserName:  info.Name,
		UserImage: info.Picture,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.repo.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}

	sessionClaims := &SessionClaims{
		User: SessionUser{
			UserID:      info.ProviderUserID,
			UserName:    info.Name,
			UserImage:   info.Picture,
			AccessToken: tokens.AccessToken,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   SubjectSession,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	publicToken, err := m.codec.Sign(sessionClaims)
	if err != nil {
		return nil, fmt.Errorf("signing session token: %w", err)
	}

	sess := &Session{
		UserID:      info.ProviderUserID,
		UserName:    info.Name,
		UserImage:   info.Picture,
		AccessToken: tokens.AccessToken,
		ExpiresAt:   expiresAt,
		PublicToken: publicToken,
	}

	refreshToken := tokens.RefreshToken
	rotated := refreshToken != "" && refreshToken != priorRefreshToken
	if issue || rotated {
		if refreshToken == "" {
			refreshToken = priorRefreshToken
		}
		securedClaims := &SecuredClaims{
			User: SecuredUser{RefreshToken: refreshToken},
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   SubjectSecured,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(m.securedTTL)),
			},
		}

		signed, err := m.codec.Sign(securedClaims)
		if err != nil {
			return nil, fmt.Errorf("signing secured token: %w", err)
		}
		sess.SecuredToken, err = m.codec.Encrypt(signed)
		if err != nil {
			return nil, fmt.Errorf("encrypting secured token: %w", err)
		}
	}

	return sess, nil
}

// fetchIdentity fetches the live profile and the token-verify metadata in
// parallel.
func (m *SessionManager) fetchIdentity(ctx context.Context, accessToken string) (*UserInfo, *TokenInfo, error) {
	var (
		info      *UserInfo
		tokenInfo *TokenInfo
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = m.provider.GetUserInfo(gctx, accessToken)
		return err
	})
	g.Go(func() error {
		var err error
		tokenInfo, err = m.provider.VerifyToken(gctx, accessToken)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("fetching identity: %w", err)
	}

	return info, tokenInfo, nil
}

// Revoke asks the provider to invalidate the access token. Best effort: the
// caller clears cookies regardless of the outcome.
func (m *SessionManager) Revoke(ctx context.Context, accessToken string) (*RevokeResult, error) {
	result, err := m.provider.RevokeToken(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("revoking token: %w", err)
	}
	return result, nil
}

// DeleteAccount revokes upstream and deletes the profile record. Both are
// attempted even if the revoke fails; the directory deletion is authoritative
// for "account deleted".
func (m *SessionManager) DeleteAccount(ctx context.Context, sess *Session) (*RevokeResult, error) {
	result, revokeErr := m.provider.RevokeToken(ctx, sess.AccessToken)
	if revokeErr != nil {
		slog.Warn("revoking token during account deletion", "error", revokeErr)
	}

	if err := m.repo.DeleteUser(ctx, sess.UserID); err != nil && !errors.Is(err, ErrNotFound) {
		return result, fmt.Errorf("deleting user: %w", err)
	}

	if revokeErr != nil {
		// Revoke failed but the account is gone, which is what the user asked
		// for; report success without a provider payload.
		return nil, nil
	}
	return result, nil
}
