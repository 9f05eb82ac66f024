package integration_test

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type IntegrationTestSuite struct {
	suite.Suite
	mockOAuth  *MockOAuthServer
	serverProc *exec.Cmd
	baseURL    string
	dbPath     string
	binaryPath string
	configPath string
	keyDir     string
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}
	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) SetupSuite() {
	projectRoot, _ := filepath.Abs("..")
	s.binaryPath = filepath.Join(projectRoot, "chedauth-integration-test")
	s.configPath = filepath.Join(projectRoot, "integration_test", "config.test.yaml")
	s.dbPath = "/tmp/chedauth-integration-test.db"
	s.baseURL = "http://localhost:8083"
	s.keyDir = s.T().TempDir()

	s.mockOAuth = NewMockOAuthServer()

	if err := writeKeyFile(filepath.Join(s.keyDir, "signing.pem")); err != nil {
		s.T().Fatalf("Failed to write signing key: %v", err)
	}
	if err := writeKeyFile(filepath.Join(s.keyDir, "encryption.pem")); err != nil {
		s.T().Fatalf("Failed to write encryption key: %v", err)
	}

	if err := s.createTestConfig(); err != nil {
		s.T().Fatalf("Failed to create test config: %v", err)
	}

	if err := s.buildServer(); err != nil {
		s.T().Fatalf("Failed to build server: %v", err)
	}

	if err := s.startServer(); err != nil {
		s.T().Fatalf("Failed to start server: %v", err)
	}

	if err := waitForServer(s.baseURL, 10); err != nil {
		s.T().Fatalf("Server failed to start: %v", err)
	}
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.serverProc != nil {
		s.serverProc.Process.Kill()
		s.serverProc.Wait()
	}

	if s.mockOAuth != nil {
		s.mockOAuth.Close()
	}

	os.Remove(s.dbPath)
	os.Remove(s.binaryPath)
	os.Remove(s.configPath)
}

func (s *IntegrationTestSuite) SetupTest() {
	s.mockOAuth.SetNextCode("valid_code_1")
	s.mockOAuth.SetTokenLifetime(time.Hour)
	if err := cleanDatabase(s.dbPath); err != nil {
		s.T().Fatalf("Failed to clean database: %v", err)
	}
}

func (s *IntegrationTestSuite) createTestConfig() error {
	config := fmt.Sprintf(`port: "8083"

signing_key_path: "%s"
encryption_key_path: "%s"

home_url: "https://cheda.kr/"
cookie_secure: false

state_ttl: 300
secured_session_ttl: 2592000
refresh_leeway: 600

naver:
  client_id: "mock_client_id"
  client_secret: "mock_client_secret"
  redirect_uri: "http://localhost:8083/callback"
  auth_base_url: "%s"
  openapi_base_url: "%s"

db:
  type: "sqlite"
  sqlite_path: "%s"
`,
		filepath.Join(s.keyDir, "signing.pem"),
		filepath.Join(s.keyDir, "encryption.pem"),
		s.mockOAuth.URL(), s.mockOAuth.URL(), s.dbPath)

	return os.WriteFile(s.configPath, []byte(config), 0644)
}

func (s *IntegrationTestSuite) buildServer() error {
	projectRoot, _ := filepath.Abs("..")
	cmd := exec.Command("go", "build", "-o", s.binaryPath, "./cmd/standalone")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("build failed: %v\n%s", err, output)
	}
	return nil
}

func (s *IntegrationTestSuite) startServer() error {
	s.serverProc = exec.Command(s.binaryPath)
	s.serverProc.Env = append(os.Environ(), "CONFIG_PATH="+s.configPath)
	s.serverProc.Stdout = io.Discard
	s.serverProc.Stderr = io.Discard

	return s.serverProc.Start()
}

func (s *IntegrationTestSuite) TestFullLoginFlow() {
	client, err := newBrowser()
	s.Require().NoError(err)

	finalURL, err := loginFlow(client, s.baseURL, "https://cheda.kr/dashboard")
	s.Require().NoError(err)
	s.Equal("https://cheda.kr/dashboard", finalURL)

	public, secured := sessionCookies(client, s.baseURL)
	s.NotEmpty(public)
	s.NotEmpty(secured)

	resp, err := getMe(client, s.baseURL)
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)

	profile, err := parseProfile(resp)
	s.Require().NoError(err)
	s.Equal("naver_user_1", profile.ID)
	s.Equal("Test User 1", profile.Name)
	s.Equal("https://example.com/avatar1.jpg", profile.Image)

	count, err := countUsers(s.dbPath)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *IntegrationTestSuite) TestRepeatedLoginKeepsOneUser() {
	client, err := newBrowser()
	s.Require().NoError(err)

	_, err = loginFlow(client, s.baseURL, "https://cheda.kr/")
	s.Require().NoError(err)

	s.mockOAuth.SetNextCode("valid_code_2")
	client2, err := newBrowser()
	s.Require().NoError(err)
	_, err = loginFlow(client2, s.baseURL, "https://cheda.kr/")
	s.Require().NoError(err)

	count, err := countUsers(s.dbPath)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *IntegrationTestSuite) TestMeRefreshesShortLivedToken() {
	// Tokens the provider reports as expiring inside the leeway get
	// refreshed on the next /me.
	s.mockOAuth.SetTokenLifetime(5 * time.Minute)

	client, err := newBrowser()
	s.Require().NoError(err)
	_, err = loginFlow(client, s.baseURL, "https://cheda.kr/")
	s.Require().NoError(err)

	publicBefore, _ := sessionCookies(client, s.baseURL)

	resp, err := getMe(client, s.baseURL)
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	publicAfter, _ := sessionCookies(client, s.baseURL)
	s.NotEqual(publicBefore, publicAfter, "session cookie must rotate on refresh")
}

func (s *IntegrationTestSuite) TestMeWithoutSession() {
	client, err := newBrowser()
	s.Require().NoError(err)

	resp, err := getMe(client, s.baseURL)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *IntegrationTestSuite) TestCallbackReplayRejected() {
	client, err := newBrowser()
	s.Require().NoError(err)

	resp, err := client.Get(s.baseURL + "/login?prevUrl=" + url.QueryEscape("https://cheda.kr/"))
	s.Require().NoError(err)
	resp.Body.Close()
	authorizeURL := resp.Header.Get("Location")

	resp, err = client.Get(authorizeURL)
	s.Require().NoError(err)
	resp.Body.Close()
	callbackURL := resp.Header.Get("Location")

	resp, err = client.Get(callbackURL)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusFound, resp.StatusCode)

	// The state cookie was consumed; replaying the same callback fails.
	resp, err = client.Get(callbackURL)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *IntegrationTestSuite) TestLogout() {
	client, err := newBrowser()
	s.Require().NoError(err)
	_, err = loginFlow(client, s.baseURL, "https://cheda.kr/")
	s.Require().NoError(err)

	resp, err := logout(client, s.baseURL, "https://cheda.kr/bye")
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("https://cheda.kr/bye", resp.Header.Get("Location"))

	public, secured := sessionCookies(client, s.baseURL)
	s.Empty(public)
	s.Empty(secured)

	resp, err = getMe(client, s.baseURL)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	s.NotEmpty(s.mockOAuth.RevokedTokens())
}

func (s *IntegrationTestSuite) TestDeleteAccount() {
	client, err := newBrowser()
	s.Require().NoError(err)
	_, err = loginFlow(client, s.baseURL, "https://cheda.kr/")
	s.Require().NoError(err)

	resp, err := deleteMe(client, s.baseURL)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	count, err := countUsers(s.dbPath)
	s.Require().NoError(err)
	s.Equal(0, count)

	resp2, err := getMe(client, s.baseURL)
	s.Require().NoError(err)
	defer resp2.Body.Close()
	s.Equal(http.StatusUnauthorized, resp2.StatusCode)
}
