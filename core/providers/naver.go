package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"chedauth/core"
)

type NaverConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	AuthBaseURL  string `yaml:"auth_base_url"`    // defaults to https://nid.naver.com
	APIBaseURL   string `yaml:"openapi_base_url"` // defaults to https://openapi.naver.com
}

type NaverProvider struct {
	config     *NaverConfig
	httpClient *http.Client
}

func NewNaverProvider(config *NaverConfig) *NaverProvider {
	if config.AuthBaseURL == "" {
		config.AuthBaseURL = "https://nid.naver.com"
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = "https://openapi.naver.com"
	}
	return &NaverProvider{
		config:     config,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Naver serves expires_in as a JSON string on some endpoints and a number on
// others.
type naverSeconds int

func (n *naverSeconds) UnmarshalJSON(data []byte) error {
	var asInt int
	if err := json.Unmarshal(data, &asInt); err == nil {
		*n = naverSeconds(asInt)
		return nil
	}
	var asString string
	if err := json.Unmarshal(data, &asString); err != nil {
		return err
	}
	parsed, err := strconv.Atoi(asString)
	if err != nil {
		return err
	}
	*n = naverSeconds(parsed)
	return nil
}

type naverTokenResponse struct {
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token"`
	TokenType        string       `json:"token_type"`
	ExpiresIn        naverSeconds `json:"expires_in"`
	Error            string       `json:"error"`
	ErrorDescription string       `json:"error_description"`
}

// nidEnvelope wraps every openapi.naver.com response; resultcode "00" means
// success.
type nidEnvelope struct {
	ResultCode string          `json:"resultcode"`
	Message    string          `json:"message"`
	Response   json.RawMessage `json:"response"`
}

type naverMe struct {
	ID           string `json:"id"`
	Nickname     string `json:"nickname"`
	ProfileImage string `json:"profile_image"`
}

type naverVerify struct {
	Token      string `json:"token"`
	ExpireDate string `json:"expire_date"`
	ClientID   string `json:"client_id"`
}

// Naver reports expire_date in KST without an offset.
var kst = time.FixedZone("KST", 9*60*60)

const naverExpireDateLayout = "2006-01-02 15:04:05"

func (p *NaverProvider) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", p.config.ClientID)
	q.Set("redirect_uri", p.config.RedirectURI)
	q.Set("state", state)
	return p.config.AuthBaseURL + "/oauth2.0/authorize?" + q.Encode()
}

func (p *NaverProvider) ExchangeCode(ctx context.Context, code string) (*core.OAuthTokens, error) {
	q := url.Values{}
	q.Set("grant_type", "authorization_code")
	q.Set("client_id", p.config.ClientID)
	q.Set("client_secret", p.config.ClientSecret)
	q.Set("code", code)

	tokens, err := p.tokenRequest(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderTokenExchange, err)
	}
	return tokens, nil
}

func (p *NaverProvider) RefreshAccessToken(ctx context.Context, refreshToken string) (*core.OAuthTokens, error) {
	q := url.Values{}
	q.Set("grant_type", "refresh_token")
	q.Set("client_id", p.config.ClientID)
	q.Set("client_secret", p.config.ClientSecret)
	q.Set("refresh_token", refreshToken)

	tokens, err := p.tokenRequest(ctx, q)
	if err != nil {
		if tokenErr, ok := err.(*naverTokenError); ok && tokenErr.invalidGrant() {
			return nil, fmt.Errorf("%w: %v", core.ErrProviderUnauthorized, err)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRefreshToken, err)
	}
	return tokens, nil
}

func (p *NaverProvider) GetUserInfo(ctx context.Context, accessToken string) (*core.UserInfo, error) {
	var me naverMe
	if err := p.nidRequest(ctx, "/v1/nid/me", accessToken, &me); err != nil {
		if err == errNidUnauthorized {
			return nil, fmt.Errorf("%w: userinfo", core.ErrProviderUnauthorized)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrProviderUserInfo, err)
	}

	return &core.UserInfo{
		ProviderUserID: me.ID,
		Name:           me.Nickname,
		Picture:        me.ProfileImage,
	}, nil
}

func (p *NaverProvider) VerifyToken(ctx context.Context, accessToken string) (*core.TokenInfo, error) {
	var verify naverVerify
	if err := p.nidRequest(ctx, "/v1/nid/verify?info=true", accessToken, &verify); err != nil {
		if err == errNidUnauthorized {
			return nil, fmt.Errorf("%w: verify", core.ErrProviderUnauthorized)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrProviderVerify, err)
	}

	info := &core.TokenInfo{ClientID: verify.ClientID}
	if expireDate, err := time.ParseInLocation(naverExpireDateLayout, verify.ExpireDate, kst); err == nil {
		info.ExpireDate = expireDate
	} else if expireDate, err := time.Parse(time.RFC3339, verify.ExpireDate); err == nil {
		info.ExpireDate = expireDate
	}
	return info, nil
}

func (p *NaverProvider) RevokeToken(ctx context.Context, accessToken string) (*core.RevokeResult, error) {
	q := url.Values{}
	q.Set("grant_type", "delete")
	q.Set("client_id", p.config.ClientID)
	q.Set("client_secret", p.config.ClientSecret)
	q.Set("access_token", accessToken)
	q.Set("service_provider", "NAVER")

	req, err := http.NewRequestWithContext(ctx, "GET", p.config.AuthBaseURL+"/oauth2.0/token?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRevoke, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRevoke, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", core.ErrProviderRevoke, resp.StatusCode, string(body))
	}

	var result core.RevokeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRevoke, err)
	}

	return &result, nil
}

func (p *NaverProvider) Provider() core.Provider {
	return core.ProviderNaver
}

type naverTokenError struct {
	status      int
	code        string
	description string
}

func (e *naverTokenError) Error() string {
	if e.code != "" {
		return fmt.Sprintf("status %d: %s: %s", e.status, e.code, e.description)
	}
	return fmt.Sprintf("status %d", e.status)
}

func (e *naverTokenError) invalidGrant() bool {
	return e.code == "invalid_grant" || e.status == http.StatusUnauthorized
}

// tokenRequest calls the token endpoint. Naver takes the parameters in the
// query string, and reports errors either via the status code or via an error
// field in a 200 body.
func (p *NaverProvider) tokenRequest(ctx context.Context, q url.Values) (*core.OAuthTokens, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.config.AuthBaseURL+"/oauth2.0/token?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var tokenResp naverTokenResponse
		_ = json.Unmarshal(body, &tokenResp)
		return nil, &naverTokenError{status: resp.StatusCode, code: tokenResp.Error, description: tokenResp.ErrorDescription}
	}

	var tokenResp naverTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, err
	}
	if tokenResp.Error != "" || tokenResp.AccessToken == "" {
		return nil, &naverTokenError{status: resp.StatusCode, code: tokenResp.Error, description: tokenResp.ErrorDescription}
	}

	return &core.OAuthTokens{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		TokenType:    tokenResp.TokenType,
		ExpiresIn:    int(tokenResp.ExpiresIn),
	}, nil
}

var errNidUnauthorized = fmt.Errorf("unauthorized")

func (p *NaverProvider) nidRequest(ctx context.Context, path, accessToken string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", p.config.APIBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errNidUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var envelope nidEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if envelope.ResultCode != "00" {
		return fmt.Errorf("resultcode %s: %s", envelope.ResultCode, envelope.Message)
	}

	return json.Unmarshal(envelope.Response, out)
}
