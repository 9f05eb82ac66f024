package integration_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"database/sql"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

// newBrowser returns a client with a cookie jar that never follows redirects,
// so each hop of the login flow can be inspected.
func newBrowser() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Jar:     jar,
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

// loginFlow walks the browser through login, the provider authorize redirect,
// and the callback, leaving the session cookies in the jar. It returns the
// final redirect target.
func loginFlow(client *http.Client, baseURL, prevURL string) (string, error) {
	resp, err := client.Get(baseURL + "/login?prevUrl=" + url.QueryEscape(prevURL))
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		return "", fmt.Errorf("login returned %d", resp.StatusCode)
	}

	authorizeURL := resp.Header.Get("Location")
	resp, err = client.Get(authorizeURL)
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		return "", fmt.Errorf("authorize returned %d", resp.StatusCode)
	}

	callbackURL := resp.Header.Get("Location")
	resp, err = client.Get(callbackURL)
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		return "", fmt.Errorf("callback returned %d", resp.StatusCode)
	}

	return resp.Header.Get("Location"), nil
}

func getMe(client *http.Client, baseURL string) (*http.Response, error) {
	return client.Get(baseURL + "/me")
}

func deleteMe(client *http.Client, baseURL string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodDelete, baseURL+"/me", nil)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}

func logout(client *http.Client, baseURL, prevURL string) (*http.Response, error) {
	return client.Get(baseURL + "/logout?prevUrl=" + url.QueryEscape(prevURL))
}

type profileResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

func parseProfile(resp *http.Response) (*profileResponse, error) {
	defer resp.Body.Close()
	var profile profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// sessionCookies reports the session cookie values currently in the jar.
func sessionCookies(client *http.Client, baseURL string) (public, secured string) {
	u, _ := url.Parse(baseURL)
	for _, cookie := range client.Jar.Cookies(u) {
		switch cookie.Name {
		case "session_id":
			public = cookie.Value
		case "session_sid":
			secured = cookie.Value
		}
	}
	return public, secured
}

func countUsers(dbPath string) (int, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

func cleanDatabase(dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec("DELETE FROM users")
	return err
}

// writeKeyFile generates a fresh P-256 key and writes it PEM-encoded to path.
func writeKeyFile(path string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	return os.WriteFile(path, block, 0600)
}

func waitForServer(baseURL string, maxAttempts int) error {
	client := &http.Client{Timeout: 1 * time.Second}
	for i := 0; i < maxAttempts; i++ {
		resp, err := client.Get(baseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("server failed to start after %d attempts", maxAttempts)
}
