package application

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EntryConfig identifies one remote account to poll.
type EntryConfig struct {
	EntryID     string `yaml:"entry_id"`
	Token       string `yaml:"token"`
	PaymentNo   string `yaml:"payment_no"`
	CompanyCode string `yaml:"company_code"`
}

// StorageConfig selects the history store backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // file | postgres | memory
	Root   string `yaml:"root"`
	DSN    string `yaml:"dsn"`
}

// UpstreamConfig configures the remote account API.
type UpstreamConfig struct {
	BaseURL       string `yaml:"base_url"`
	SigningSecret string `yaml:"signing_secret"`
	ClientType    string `yaml:"client_type"`
}

// Config is the full service configuration. Values come from a yaml file
// named by GASLEDGER_CONFIG with env fallbacks for everything scalar.
type Config struct {
	Entries  []EntryConfig  `yaml:"entries"`
	Storage  StorageConfig  `yaml:"storage"`
	Upstream UpstreamConfig `yaml:"upstream"`

	HTTPAddr  string `yaml:"http_addr"`
	JWTSecret string `yaml:"jwt_secret"`

	PollInterval        time.Duration `yaml:"-"`
	PollIntervalRaw     string        `yaml:"poll_interval"`
	ZoneOffsetHours     int           `yaml:"zone_offset_hours"`
	CycleMode           CycleMode     `yaml:"cycle_mode"`
	RetentionDays       int           `yaml:"known_id_retention_days"`
	DivergenceThreshold float64       `yaml:"divergence_threshold"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		Storage: StorageConfig{
			Driver: getenvDefault("STORAGE_DRIVER", "file"),
			Root:   getenvDefault("STORAGE_ROOT", filepath.FromSlash("var/state")),
			DSN:    getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		},
		Upstream: UpstreamConfig{
			BaseURL:       os.Getenv("UPSTREAM_BASE_URL"),
			SigningSecret: os.Getenv("UPSTREAM_SIGNING_SECRET"),
			ClientType:    os.Getenv("UPSTREAM_CLIENT_TYPE"),
		},
		HTTPAddr:            getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:           getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		PollInterval:        getenvDuration("POLL_INTERVAL", 30*time.Minute),
		ZoneOffsetHours:     getenvIntDefault("ZONE_OFFSET_HOURS", 8),
		CycleMode:           CycleMode(getenvDefault("CYCLE_MODE", string(CycleCalendarMonth))),
		RetentionDays:       getenvIntDefault("KNOWN_ID_RETENTION_DAYS", defaultRetentionDays),
		DivergenceThreshold: getenvFloatDefault("DIVERGENCE_THRESHOLD", defaultDivergenceThreshold),
	}

	if path := os.Getenv("GASLEDGER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.PollIntervalRaw != "" {
		parsed, err := time.ParseDuration(cfg.PollIntervalRaw)
		if err != nil {
			return cfg, errors.New("config: invalid poll_interval " + cfg.PollIntervalRaw)
		}
		cfg.PollInterval = parsed
	}
	if len(cfg.Entries) == 0 {
		cfg.Entries = entriesFromEnv()
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case "file":
		if c.Storage.Root == "" {
			return errors.New("config: storage root required for file driver")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("config: dsn required for postgres driver")
		}
	case "memory":
	default:
		return errors.New("config: unknown storage driver " + c.Storage.Driver)
	}
	switch c.CycleMode {
	case CycleCalendarMonth, CycleDescriptionChange:
	default:
		return errors.New("config: unknown cycle mode " + string(c.CycleMode))
	}
	if c.PollInterval <= 0 {
		return errors.New("config: poll interval must be positive")
	}
	for _, entry := range c.Entries {
		if entry.EntryID == "" || entry.PaymentNo == "" {
			return errors.New("config: every entry needs entry_id and payment_no")
		}
	}
	return nil
}

// entriesFromEnv reads a single entry from flat env vars, enough for
// one-account deployments without a config file.
func entriesFromEnv() []EntryConfig {
	entryID := os.Getenv("ENTRY_ID")
	if entryID == "" {
		return nil
	}
	return []EntryConfig{{
		EntryID:     entryID,
		Token:       os.Getenv("ENTRY_TOKEN"),
		PaymentNo:   getenvDefault("ENTRY_PAYMENT_NO", entryID),
		CompanyCode: os.Getenv("ENTRY_COMPANY_CODE"),
	}}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}
