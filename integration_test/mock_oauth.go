package integration_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"
)

type mockAccount struct {
	ID           string `json:"id"`
	Nickname     string `json:"nickname"`
	ProfileImage string `json:"profile_image"`
}

var mockAccounts = map[string]mockAccount{
	"valid_code_1": {
		ID:           "naver_user_1",
		Nickname:     "Test User 1",
		ProfileImage: "https://example.com/avatar1.jpg",
	},
	"valid_code_2": {
		ID:           "naver_user_1",
		Nickname:     "Test User 1",
		ProfileImage: "https://example.com/avatar1.jpg",
	},
	"another_user_code": {
		ID:           "naver_user_2",
		Nickname:     "Test User 2",
		ProfileImage: "https://example.com/avatar2.jpg",
	},
}

var mockKST = time.FixedZone("KST", 9*60*60)

// MockOAuthServer speaks just enough of Naver's OAuth dialect for the
// standalone server to log in against: the authorize redirect, the GET token
// endpoint with query parameters, and the nid envelope endpoints.
type MockOAuthServer struct {
	server        *httptest.Server
	mu            sync.Mutex
	nextCode      string
	refreshTokens map[string]mockAccount
	accessTokens  map[string]mockAccount
	tokenLifetime time.Duration
	revoked       []string
}

func NewMockOAuthServer() *MockOAuthServer {
	m := &MockOAuthServer{
		nextCode:      "valid_code_1",
		refreshTokens: make(map[string]mockAccount),
		accessTokens:  make(map[string]mockAccount),
		tokenLifetime: time.Hour,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2.0/authorize", m.handleAuthorize)
	mux.HandleFunc("/oauth2.0/token", m.handleToken)
	mux.HandleFunc("/v1/nid/me", m.handleMe)
	mux.HandleFunc("/v1/nid/verify", m.handleVerify)

	m.server = httptest.NewServer(mux)
	return m
}

func (m *MockOAuthServer) URL() string {
	return m.server.URL
}

func (m *MockOAuthServer) Close() {
	m.server.Close()
}

// SetNextCode controls which authorization code the next authorize redirect
// hands out.
func (m *MockOAuthServer) SetNextCode(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCode = code
}

// SetTokenLifetime controls the expire_date reported by the verify endpoint.
func (m *MockOAuthServer) SetTokenLifetime(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenLifetime = d
}

func (m *MockOAuthServer) RevokedTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.revoked...)
}

func (m *MockOAuthServer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" || q.Get("state") == "" {
		http.Error(w, "missing redirect_uri or state", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	code := m.nextCode
	m.mu.Unlock()

	callback, _ := url.Parse(redirectURI)
	cq := callback.Query()
	cq.Set("code", code)
	cq.Set("state", q.Get("state"))
	callback.RawQuery = cq.Encode()

	http.Redirect(w, r, callback.String(), http.StatusFound)
}

func (m *MockOAuthServer) handleToken(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	w.Header().Set("Content-Type", "application/json")

	switch q.Get("grant_type") {
	case "authorization_code":
		code := q.Get("code")
		account, ok := mockAccounts[code]
		if !ok {
			json.NewEncoder(w).Encode(map[string]string{
				"error":             "invalid_request",
				"error_description": "no valid data in session",
			})
			return
		}

		m.mu.Lock()
		m.refreshTokens["refresh_"+code] = account
		m.accessTokens["access_"+code] = account
		m.mu.Unlock()

		// expires_in goes out as a string, matching the live endpoint.
		json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "access_" + code,
			"refresh_token": "refresh_" + code,
			"token_type":    "bearer",
			"expires_in":    "3600",
		})

	case "refresh_token":
		refreshToken := q.Get("refresh_token")
		m.mu.Lock()
		account, ok := m.refreshTokens[refreshToken]
		if ok {
			m.accessTokens["refreshed_"+refreshToken] = account
		}
		m.mu.Unlock()

		if !ok {
			json.NewEncoder(w).Encode(map[string]string{
				"error":             "invalid_grant",
				"error_description": "refresh token is invalid",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "refreshed_" + refreshToken,
			"token_type":   "bearer",
			"expires_in":   "3600",
		})

	case "delete":
		accessToken := q.Get("access_token")
		m.mu.Lock()
		delete(m.accessTokens, accessToken)
		m.revoked = append(m.revoked, accessToken)
		m.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]string{
			"access_token": accessToken,
			"result":       "success",
		})

	default:
		json.NewEncoder(w).Encode(map[string]string{"error": "unsupported_grant_type"})
	}
}

func (m *MockOAuthServer) bearerAccount(r *http.Request) (mockAccount, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return mockAccount{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accessTokens[auth[7:]]
	return account, ok
}

func (m *MockOAuthServer) handleMe(w http.ResponseWriter, r *http.Request) {
	account, ok := m.bearerAccount(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"resultcode": "00",
		"message":    "success",
		"response":   account,
	})
}

func (m *MockOAuthServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	_, ok := m.bearerAccount(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	m.mu.Lock()
	lifetime := m.tokenLifetime
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"resultcode": "00",
		"message":    "success",
		"response": map[string]string{
			"token":       "verified",
			"expire_date": time.Now().In(mockKST).Add(lifetime).Format("2006-01-02 15:04:05"),
			"client_id":   "mock_client_id",
		},
	})
}
