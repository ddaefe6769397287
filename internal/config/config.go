package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultAPIBaseURL = "https://car-rental-api-gyfw.onrender.com"

type Config struct {
	// Remote API
	APIBaseURL      string        `yaml:"api_base_url"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
	PaymentCardType string        `yaml:"payment_card_type"`

	// Local secure store
	StorePath          string `yaml:"store_path"`
	StoreEncryptionKey string `yaml:"-"`

	// Application encryption (stored values, archived contracts)
	AppEncryptionKey string `yaml:"-"`

	// Contract archive
	ContractsDir           string `yaml:"contracts_dir"`
	ContractsRetentionDays int    `yaml:"contracts_retention_days"`

	// Audit configuration
	AuditLogPath   string `yaml:"audit_log_path"`
	AuditAsyncMode bool   `yaml:"audit_async_mode"`

	// Submission rate limiting
	RateLimitRPS   int `yaml:"rate_limit_rps"`
	RateLimitBurst int `yaml:"rate_limit_burst"`

	// Compensation reconciliation
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`

	// Application settings
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		APIBaseURL:             DefaultAPIBaseURL,
		PaymentCardType:        "uzcard",
		StorePath:              "./data/car_rental.db",
		ContractsDir:           "./data/contracts",
		ContractsRetentionDays: 365,
		AuditLogPath:           "./logs/audit.log",
		AuditAsyncMode:         true,
		RateLimitRPS:           1,
		RateLimitBurst:         3,
		ReconcileInterval:      15 * time.Minute,
		Environment:            "development",
		LogLevel:               "info",
	}
}

// Load reads configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment variables, in that order of precedence.
func Load() (*Config, error) {
	return load((*Config).Validate)
}

// LoadEphemeral is Load for runs that keep nothing on disk: the encryption
// keys are not required.
func LoadEphemeral() (*Config, error) {
	return load((*Config).validateRemote)
}

func load(validate func(*Config) error) (*Config, error) {
	// Load .env file if exists (not required in production)
	godotenv.Load()

	config := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	config.applyEnv()

	// Validate critical configuration
	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) applyEnv() {
	c.APIBaseURL = strings.TrimRight(getEnv("API_BASE_URL", c.APIBaseURL), "/")
	c.HTTPTimeout = getEnvAsDuration("HTTP_TIMEOUT", c.HTTPTimeout)
	c.PaymentCardType = getEnv("PAYMENT_CARD_TYPE", c.PaymentCardType)
	c.StorePath = getEnv("STORE_PATH", c.StorePath)
	c.StoreEncryptionKey = getEnv("STORE_ENCRYPTION_KEY", c.StoreEncryptionKey)
	c.AppEncryptionKey = getEnv("APP_ENCRYPTION_KEY", c.AppEncryptionKey)
	c.ContractsDir = getEnv("CONTRACTS_DIR", c.ContractsDir)
	c.ContractsRetentionDays = getEnvAsInt("CONTRACTS_RETENTION_DAYS", c.ContractsRetentionDays)
	c.AuditLogPath = getEnv("AUDIT_LOG_PATH", c.AuditLogPath)
	c.AuditAsyncMode = getEnvAsBool("AUDIT_ASYNC_MODE", c.AuditAsyncMode)
	c.RateLimitRPS = getEnvAsInt("RATE_LIMIT_REQUESTS_PER_SECOND", c.RateLimitRPS)
	c.RateLimitBurst = getEnvAsInt("RATE_LIMIT_BURST", c.RateLimitBurst)
	c.ReconcileInterval = time.Duration(getEnvAsInt("RECONCILE_INTERVAL_MINUTES", int(c.ReconcileInterval/time.Minute))) * time.Minute
	c.Environment = getEnv("APP_ENV", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	if err := c.validateRemote(); err != nil {
		return err
	}

	if c.StoreEncryptionKey == "" {
		return fmt.Errorf("STORE_ENCRYPTION_KEY is required")
	}

	if len(c.StoreEncryptionKey) < 32 {
		return fmt.Errorf("STORE_ENCRYPTION_KEY must be at least 32 characters")
	}

	if c.AppEncryptionKey == "" {
		return fmt.Errorf("APP_ENCRYPTION_KEY is required")
	}

	if len(c.AppEncryptionKey) < 32 {
		return fmt.Errorf("APP_ENCRYPTION_KEY must be at least 32 characters")
	}

	return nil
}

func (c *Config) validateRemote() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.APIBaseURL)
	}

	if c.PaymentCardType == "" {
		return fmt.Errorf("PAYMENT_CARD_TYPE must not be empty")
	}

	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL_MINUTES must be positive")
	}

	return nil
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Helper functions to read environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// MockAPIConfig configures the local mock API server.
type MockAPIConfig struct {
	Addr           string
	JWTSecret      string
	DeclinePrefix  string
	AllowedOrigins []string
	GinMode        string
}

// LoadMockAPI reads the mock server settings from the environment.
func LoadMockAPI() (*MockAPIConfig, error) {
	godotenv.Load()

	cfg := &MockAPIConfig{
		Addr:          getEnv("MOCKAPI_ADDR", ":8080"),
		JWTSecret:     getEnv("MOCKAPI_JWT_SECRET", ""),
		DeclinePrefix: getEnv("MOCKAPI_DECLINE_PREFIX", "4000"),
		GinMode:       getEnv("GIN_MODE", ""),
	}

	for _, origin := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", ""), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if len(cfg.JWTSecret) < 16 {
		return nil, fmt.Errorf("MOCKAPI_JWT_SECRET must be at least 16 characters")
	}

	return cfg, nil
}
