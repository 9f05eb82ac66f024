package main

import (
	"log/slog"
	"net/http"
	"os"
	"strings"

	"chedauth/core"
	"chedauth/core/providers"
	"chedauth/storage"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	SigningKeyPath    string `yaml:"signing_key_path"`
	EncryptionKeyPath string `yaml:"encryption_key_path"`

	HomeURL      string `yaml:"home_url"`
	CookieDomain string `yaml:"cookie_domain"`
	CookieSecure bool   `yaml:"cookie_secure"`

	StateTTL          int `yaml:"state_ttl"`
	SecuredSessionTTL int `yaml:"secured_session_ttl"`
	RefreshLeeway     int `yaml:"refresh_leeway"`

	Naver *providers.NaverConfig `yaml:"naver"`

	DB   DBConfig `yaml:"db"`
	Port string   `yaml:"port"`
}

type DBConfig struct {
	Type       string `yaml:"type"`
	SQLitePath string `yaml:"sqlite_path"`
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	configPath := getEnv("CONFIG_PATH", "config.yaml")
	appConfig := loadConfigFromYAML(configPath)

	keys, err := core.NewKeySet(
		readKeyFile(appConfig.SigningKeyPath),
		readKeyFile(appConfig.EncryptionKeyPath),
	)
	if err != nil {
		slog.Error("failed to load keys", "error", err)
		os.Exit(1)
	}

	config := &core.Config{
		HomeURL:           appConfig.HomeURL,
		CookieDomain:      appConfig.CookieDomain,
		CookieSecure:      appConfig.CookieSecure,
		StateTTL:          appConfig.StateTTL,
		SecuredSessionTTL: appConfig.SecuredSessionTTL,
		RefreshLeeway:     appConfig.RefreshLeeway,
	}

	if appConfig.Naver == nil {
		slog.Error("naver provider configuration is required")
		os.Exit(1)
	}
	provider := providers.NewNaverProvider(appConfig.Naver)

	repo := initRepository(appConfig.DB)

	codec := core.NewTokenCodec(keys)
	states := core.NewStateManager(codec, config.StateTTLDuration())
	sessions := core.NewSessionManager(codec, provider, repo,
		config.SecuredSessionTTLDuration(), config.RefreshLeewayDuration())
	server := core.NewServer(states, sessions, provider, config)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", server.HandleLogin)
	mux.HandleFunc("GET /callback", server.HandleCallback)
	mux.HandleFunc("GET /me", server.HandleMe)
	mux.HandleFunc("DELETE /me", server.HandleDeleteMe)
	mux.HandleFunc("GET /logout", server.HandleLogout)
	mux.HandleFunc("GET /health", server.HandleHealth)

	slog.Info("starting chedauth server", "port", appConfig.Port, "provider", provider.Provider())

	if err := http.ListenAndServe(":"+appConfig.Port, mux); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func loadConfigFromYAML(path string) *AppConfig {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("failed to read config file", "path", path, "error", err)
		os.Exit(1)
	}

	var config AppConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		slog.Error("failed to parse config file", "error", err)
		os.Exit(1)
	}

	return &config
}

func readKeyFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("failed to read key file", "path", path, "error", err)
		os.Exit(1)
	}
	return string(data)
}

func initRepository(dbConfig DBConfig) core.Repository {
	switch strings.ToLower(dbConfig.Type) {
	case "sqlite":
		repo, err := storage.NewSQLiteRepository(dbConfig.SQLitePath)
		if err != nil {
			slog.Error("failed to initialize sqlite repository", "error", err)
			os.Exit(1)
		}
		slog.Info("using sqlite database", "path", dbConfig.SQLitePath)
		return repo

	case "mock":
		slog.Info("using mock repository (in-memory)")
		return storage.NewMockRepository()

	default:
		slog.Error("unsupported db type", "type", dbConfig.Type)
		os.Exit(1)
		return nil
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
