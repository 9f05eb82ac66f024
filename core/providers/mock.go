package providers

import (
	"context"
	"net/url"
	"time"

	"chedauth/core"
)

const ProviderMock core.Provider = "mock"

// Predefined test authorization codes
const (
	ValidCode1 = "mock_auth_code_1"
	ValidCode2 = "mock_auth_code_2"
)

// Predefined test OAuth tokens
var (
	Tokens1 = &core.OAuthTokens{
		AccessToken:  "mock_access_token_1",
		RefreshToken: "mock_refresh_token_1",
		TokenType:    "bearer",
		ExpiresIn:    3600,
	}

	Tokens2 = &core.OAuthTokens{
		AccessToken:  "mock_access_token_2",
		RefreshToken: "mock_refresh_token_2",
		TokenType:    "bearer",
		ExpiresIn:    3600,
	}

	Tokens1Refreshed = &core.OAuthTokens{
		AccessToken:  "mock_access_token_1_refreshed",
		RefreshToken: "", // provider keeps the refresh token by default
		TokenType:    "bearer",
		ExpiresIn:    3600,
	}

	Tokens2Refreshed = &core.OAuthTokens{
		AccessToken:  "mock_access_token_2_refreshed",
		RefreshToken: "",
		TokenType:    "bearer",
		ExpiresIn:    3600,
	}
)

// Predefined test user info
var (
	User1 = &core.UserInfo{
		ProviderUserID: "mock_user_1",
		Name:           "Mock User One",
		Picture:        "https://mock.test/avatar1.jpg",
	}

	User2 = &core.UserInfo{
		ProviderUserID: "mock_user_2",
		Name:           "Mock User Two",
		Picture:        "https://mock.test/avatar2.jpg",
	}
)

// MockProvider is a test implementation of AuthProvider
type MockProvider struct {
	codeToTokens     map[string]*core.OAuthTokens
	accessToUserInfo map[string]*core.UserInfo
	refreshToTokens  map[string]*core.OAuthTokens

	// TokenLifetime controls the expire date reported by VerifyToken.
	TokenLifetime time.Duration

	// RotateRefreshTokens makes every refresh hand back a new refresh token.
	RotateRefreshTokens bool

	// track method calls for verification
	ExchangeCodeCalls       int
	GetUserInfoCalls        int
	VerifyTokenCalls        int
	RefreshAccessTokenCalls int
	RevokeTokenCalls        int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		codeToTokens: map[string]*core.OAuthTokens{
			ValidCode1: Tokens1,
			ValidCode2: Tokens2,
		},

		accessToUserInfo: map[string]*core.UserInfo{
			Tokens1.AccessToken:          User1,
			Tokens1Refreshed.AccessToken: User1,
			Tokens2.AccessToken:          User2,
			Tokens2Refreshed.AccessToken: User2,
		},

		refreshToTokens: map[string]*core.OAuthTokens{
			Tokens1.RefreshToken: Tokens1Refreshed,
			Tokens2.RefreshToken: Tokens2Refreshed,
		},

		TokenLifetime: time.Hour,
	}
}

func (m *MockProvider) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", "mock_client")
	q.Set("state", state)
	return "https://auth.mock.test/oauth2.0/authorize?" + q.Encode()
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code string) (*core.OAuthTokens, error) {
	m.ExchangeCodeCalls++

	tokens, ok := m.codeToTokens[code]
	if !ok {
		return nil, core.ErrProviderTokenExchange
	}
	return tokens, nil
}

func (m *MockProvider) RefreshAccessToken(ctx context.Context, refreshToken string) (*core.OAuthTokens, error) {
	m.RefreshAccessTokenCalls++

	tokens, ok := m.refreshToTokens[refreshToken]
	if !ok {
		return nil, core.ErrProviderUnauthorized
	}
	if m.RotateRefreshTokens {
		rotated := *tokens
		rotated.RefreshToken = refreshToken + "_rotated"
		m.refreshToTokens[rotated.RefreshToken] = &rotated
		return &rotated, nil
	}
	return tokens, nil
}

func (m *MockProvider) GetUserInfo(ctx context.Context, accessToken string) (*core.UserInfo, error) {
	m.GetUserInfoCalls++

	userInfo, ok := m.accessToUserInfo[accessToken]
	if !ok {
		return nil, core.ErrProviderUnauthorized
	}
	return userInfo, nil
}

func (m *MockProvider) VerifyToken(ctx context.Context, accessToken string) (*core.TokenInfo, error) {
	m.VerifyTokenCalls++

	if _, ok := m.accessToUserInfo[accessToken]; !ok {
		return nil, core.ErrProviderUnauthorized
	}
	return &core.TokenInfo{
		ExpireDate: time.Now().Add(m.TokenLifetime),
		ClientID:   "mock_client",
	}, nil
}

func (m *MockProvider) RevokeToken(ctx context.Context, accessToken string) (*core.RevokeResult, error) {
	m.RevokeTokenCalls++

	if _, ok := m.accessToUserInfo[accessToken]; !ok {
		return nil, core.ErrProviderRevoke
	}
	delete(m.accessToUserInfo, accessToken)
	return &core.RevokeResult{AccessToken: accessToken, Result: "success"}, nil
}

func (m *MockProvider) Provider() core.Provider {
	return ProviderMock
}
