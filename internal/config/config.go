// Package config handles loading and validation of storefront configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Store backends for durable client state.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Checkout modes for the synchronous provider.
const (
	ModeUnified = "unified"
	ModeLegacy  = "legacy"
)

// Config holds all storefront configuration.
// Environment determines whether secrets load from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string `json:"port"`
	Environment string `json:"environment"` // "development" or "production"
	LogLevel    string `json:"log_level"`   // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject   string `json:"gcp_project,omitempty"`
	StorefrontID string `json:"storefront_id,omitempty"`

	// APIBaseURL is the commerce backend serving /cart/guest and /payments.
	APIBaseURL string `json:"api_base_url"`
	// PublicBaseURL is where buyers reach this storefront; payment providers
	// redirect back to it.
	PublicBaseURL string `json:"public_base_url"`
	// TLSFingerprint is "chrome" or "none".
	TLSFingerprint string `json:"tls_fingerprint"`

	Store    StoreConfig    `json:"store"`
	Checkout CheckoutConfig `json:"checkout"`

	// Secrets (loaded from Secret Manager in production)
	Secrets Secrets `json:"secrets"`
}

// StoreConfig selects where the guest session id and saved form live.
type StoreConfig struct {
	Backend       string `json:"backend"`
	Dir           string `json:"dir,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPrefix   string `json:"redis_prefix,omitempty"`
	RedisPassword string `json:"-"` // from Secrets
}

// CheckoutConfig holds checkout defaults.
type CheckoutConfig struct {
	Currency        string `json:"currency"`
	DefaultProvider string `json:"default_provider"`
	Mode            string `json:"mode"`
}

// Secrets contains credentials.
// In production, this is loaded from Secret Manager as JSON.
type Secrets struct {
	APIKey        string `json:"api_key"`
	RedisPassword string `json:"redis_password,omitempty"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:           envOrDefault("PORT", "8080"),
		Environment:    envOrDefault("ENVIRONMENT", "development"),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		GCPProject:     os.Getenv("GCP_PROJECT"),
		StorefrontID:   os.Getenv("STOREFRONT_ID"),
		APIBaseURL:     os.Getenv("API_BASE_URL"),
		PublicBaseURL:  os.Getenv("PUBLIC_BASE_URL"),
		TLSFingerprint: envOrDefault("TLS_FINGERPRINT", "none"),
		Store: StoreConfig{
			Backend:     envOrDefault("STORE_BACKEND", BackendFile),
			Dir:         os.Getenv("STATE_DIR"),
			RedisAddr:   os.Getenv("REDIS_ADDR"),
			RedisPrefix: envOrDefault("REDIS_PREFIX", "guest:"),
		},
		Checkout: CheckoutConfig{
			Currency:        envOrDefault("CURRENCY", "USD"),
			DefaultProvider: envOrDefault("DEFAULT_PROVIDER", "stripe"),
			Mode:            envOrDefault("CHECKOUT_MODE", ModeUnified),
		},
	}

	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if cfg.StorefrontID == "" {
			return nil, fmt.Errorf("STOREFRONT_ID required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		cfg.loadSecretsFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading secrets: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Port = withDefault(cfg.Port, "8080")
	cfg.Environment = withDefault(cfg.Environment, "development")
	cfg.LogLevel = withDefault(cfg.LogLevel, "info")
	cfg.TLSFingerprint = withDefault(cfg.TLSFingerprint, "none")
	cfg.Store.Backend = withDefault(cfg.Store.Backend, BackendFile)
	cfg.Store.RedisPrefix = withDefault(cfg.Store.RedisPrefix, "guest:")
	cfg.Checkout.Currency = withDefault(cfg.Checkout.Currency, "USD")
	cfg.Checkout.DefaultProvider = withDefault(cfg.Checkout.DefaultProvider, "stripe")
	cfg.Checkout.Mode = withDefault(cfg.Checkout.Mode, ModeUnified)

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finish derives defaults that depend on other fields, then validates.
func (c *Config) finish() error {
	c.Store.RedisPassword = c.Secrets.RedisPassword
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = fmt.Sprintf("http://localhost:%s", c.Port)
	}
	c.APIBaseURL = strings.TrimSuffix(c.APIBaseURL, "/")
	c.PublicBaseURL = strings.TrimSuffix(c.PublicBaseURL, "/")
	c.Checkout.Currency = strings.ToUpper(c.Checkout.Currency)
	if c.Store.Backend == BackendFile && c.Store.Dir == "" {
		c.Store.Dir = defaultStateDir()
	}
	return c.validate()
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches secrets from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{storefront_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.StorefrontID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Secrets); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	return nil
}

// loadSecretsFromEnv reads secrets from environment variables.
// Used in development mode for local testing.
func (c *Config) loadSecretsFromEnv() {
	c.Secrets = Secrets{
		APIKey:        os.Getenv("API_KEY"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api_base_url is required")
	}
	if err := checkURL("api_base_url", c.APIBaseURL); err != nil {
		return err
	}
	if err := checkURL("public_base_url", c.PublicBaseURL); err != nil {
		return err
	}

	switch c.Store.Backend {
	case BackendFile, BackendMemory:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis store backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q (file, redis or memory)", c.Store.Backend)
	}

	switch c.TLSFingerprint {
	case "none", "chrome":
	default:
		return fmt.Errorf("unknown tls_fingerprint %q (chrome or none)", c.TLSFingerprint)
	}

	switch c.Checkout.Mode {
	case ModeUnified, ModeLegacy:
	default:
		return fmt.Errorf("unknown checkout mode %q (unified or legacy)", c.Checkout.Mode)
	}

	if len(c.Checkout.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter code, got %q", c.Checkout.Currency)
	}
	return nil
}

// SuccessURL is where a redirect provider sends the buyer after paying.
// {CHECKOUT_SESSION_ID} is filled in by the provider.
func (c *Config) SuccessURL() string {
	return c.PublicBaseURL + "/checkout/success?success=true&session_id={CHECKOUT_SESSION_ID}"
}

// CancelURL is where a redirect provider sends the buyer after cancelling.
func (c *Config) CancelURL() string {
	return c.PublicBaseURL + "/checkout/cancel?canceled=true"
}

func checkURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("invalid %s: %q is not an absolute http(s) URL", field, raw)
	}
	return nil
}

// defaultStateDir is the per-user location of durable client state.
func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "guest-checkout")
	}
	return ".guest-checkout"
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
