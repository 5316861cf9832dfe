package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Port        int
	Database    DatabaseConfig
	JWTSecret   string
	Environment string
	LogLevel    string
	AppURL      string
	CORSOrigins []string

	// TokenEncryptionKey is a base64 encoded 32 byte key used to seal
	// provider access tokens at rest.
	TokenEncryptionKey string

	OAuth     OAuthConfig
	Notion    ProviderConfig
	Facebook  ProviderConfig
	Instagram ProviderConfig
	TikTok    ProviderConfig

	// Warnings collected while loading, logged by the caller once a logger exists.
	Warnings []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type         string // postgres or memory
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// OAuthConfig holds settings shared by every provider flow
type OAuthConfig struct {
	StateTTL              time.Duration
	HTTPTimeout           time.Duration
	RequireLongLivedToken bool
	FacebookPageID        string
}

// ProviderConfig holds the client credentials of one OAuth provider
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
}

// Enabled reports whether both credentials are present.
func (p ProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Load reads configuration from the environment and, when configFile is not
// empty, from that file. Environment variables win over file values.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("environment", "production")
	v.SetDefault("log_level", "info")
	v.SetDefault("database.type", "postgres")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "notionsocial")
	v.SetDefault("postgres.password", "secret")
	v.SetDefault("postgres.db", "notionsocial")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("oauth.state_ttl", 10*time.Minute)
	v.SetDefault("http.timeout", 15*time.Second)
	v.SetDefault("oauth.require_long_lived", false)
}

func fromViper(v *viper.Viper) (*Config, error) {
	env := v.GetString("environment")

	cfg := &Config{
		Port:        v.GetInt("port"),
		Environment: env,
		LogLevel:    v.GetString("log_level"),
		AppURL:      strings.TrimRight(v.GetString("app_url"), "/"),
		Database: DatabaseConfig{
			Type:         v.GetString("database.type"),
			DSN:          v.GetString("database.dsn"),
			MaxOpenConns: v.GetInt("db.max_open_conns"),
			MaxIdleConns: v.GetInt("db.max_idle_conns"),
		},
		OAuth: OAuthConfig{
			StateTTL:              v.GetDuration("oauth.state_ttl"),
			HTTPTimeout:           v.GetDuration("http.timeout"),
			RequireLongLivedToken: v.GetBool("oauth.require_long_lived"),
			FacebookPageID:        v.GetString("facebook.page_id"),
		},
		Notion:    providerConfig(v, "notion"),
		Facebook:  providerConfig(v, "facebook"),
		Instagram: providerConfig(v, "instagram"),
		TikTok:    providerConfig(v, "tiktok"),
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = buildPostgresDSN(v)
	}

	secret, err := cfg.loadSecret(v, "jwt_secret", "JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.JWTSecret = secret

	key, err := cfg.loadSecret(v, "token_encryption_key", "TOKEN_ENCRYPTION_KEY")
	if err != nil {
		return nil, err
	}
	cfg.TokenEncryptionKey = key

	cfg.CORSOrigins = cfg.loadCORSOrigins()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func providerConfig(v *viper.Viper, name string) ProviderConfig {
	return ProviderConfig{
		ClientID:     v.GetString(name + ".client_id"),
		ClientSecret: v.GetString(name + ".client_secret"),
	}
}

func buildPostgresDSN(v *viper.Viper) string {
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(v.GetString("postgres.user"), v.GetString("postgres.password")),
		Host:   fmt.Sprintf("%s:%s", v.GetString("postgres.host"), v.GetString("postgres.port")),
		Path:   v.GetString("postgres.db"),
	}

	query := u.Query()
	query.Set("sslmode", v.GetString("postgres.sslmode"))
	u.RawQuery = query.Encode()

	return u.String()
}

// loadSecret returns the configured secret, or a random one outside production.
func (c *Config) loadSecret(v *viper.Viper, key, envName string) (string, error) {
	secret := v.GetString(key)
	if secret != "" {
		return secret, nil
	}
	if c.IsProduction() {
		return "", fmt.Errorf("%s is required in production", envName)
	}

	c.Warnings = append(c.Warnings,
		fmt.Sprintf("%s not set, generated a random value that will change on restart", envName))
	return generateRandomSecret()
}

func (c *Config) loadCORSOrigins() []string {
	if c.AppURL != "" {
		return []string{c.AppURL}
	}
	c.Warnings = append(c.Warnings, "APP_URL not set, using default localhost origins")
	return []string{"http://localhost:3000", "http://localhost:8080"}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.IsProduction() {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}

		insecureSecrets := []string{
			"change-this-secret-in-production",
			"change-me-in-production",
			"secret",
			"password",
			"changeme",
		}
		for _, insecure := range insecureSecrets {
			if c.JWTSecret == insecure {
				return fmt.Errorf("JWT_SECRET is set to an insecure default value. Please set a strong random secret")
			}
		}

		if c.AppURL == "" {
			return fmt.Errorf("APP_URL is required in production")
		}
	}

	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters long")
	}

	key, err := base64.StdEncoding.DecodeString(c.TokenEncryptionKey)
	if err != nil || len(key) != 32 {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be 32 bytes encoded as standard base64")
	}

	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be configured")
	}

	switch c.Database.Type {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.OAuth.StateTTL <= 0 {
		return fmt.Errorf("OAUTH_STATE_TTL must be positive")
	}
	if c.OAuth.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}

	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// PublicURL returns the externally visible base URL used in redirects.
func (c *Config) PublicURL() string {
	if c.AppURL != "" {
		return c.AppURL
	}
	return fmt.Sprintf("http://localhost:%d", c.Port)
}

func generateRandomSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(bytes), nil
}
