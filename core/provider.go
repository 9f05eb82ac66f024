package core

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProviderTokenExchange = errors.New("provider token exchange failed")
	ErrProviderRefreshToken  = errors.New("provider token refresh failed")
	ErrProviderUserInfo      = errors.New("provider user info request failed")
	ErrProviderVerify        = errors.New("provider token verify request failed")
	ErrProviderRevoke        = errors.New("provider token revoke failed")
	ErrProviderUnauthorized  = errors.New("provider rejected the access token")
)

// OAuthTokens represents the tokens returned by the identity provider's token
// endpoint.
type OAuthTokens struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int
}

// UserInfo represents the profile returned by the identity provider.
type UserInfo struct {
	ProviderUserID string
	Name           string
	Picture        string
}

// TokenInfo is the token-verify metadata; ExpireDate is the provider's own
// word on when the access token dies.
type TokenInfo struct {
	ExpireDate time.Time
	ClientID   string
}

// RevokeResult is the provider's revoke response, relayed verbatim to the
// caller of DELETE /me.
type RevokeResult struct {
	AccessToken string `json:"access_token"`
	Result      string `json:"result"`
}

type AuthProvider interface {
	// AuthorizeURL builds the authorization-code redirect URL carrying state.
	AuthorizeURL(state string) string

	ExchangeCode(ctx context.Context, code string) (*OAuthTokens, error)

	RefreshAccessToken(ctx context.Context, refreshToken string) (*OAuthTokens, error)

	GetUserInfo(ctx context.Context, accessToken string) (*UserInfo, error)

	VerifyToken(ctx context.Context, accessToken string) (*TokenInfo, error)

	RevokeToken(ctx context.Context, accessToken string) (*RevokeResult, error)

	Provider() Provider
}
