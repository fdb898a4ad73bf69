package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Network  string `validate:"required"`
	Feed     FeedConfig
	Database DatabaseConfig
	Stations StationsConfig
	Alerts   AlertsConfig
	Logging  LoggingConfig
}

// FeedConfig describes the upstream open-data search API.
type FeedConfig struct {
	BaseURL     string        `validate:"required,url"`
	Timeout     time.Duration `validate:"gt=0"`
	CatalogPath string
	Catalog     Catalog
}

// Catalog names every dataset the service reads and the per-mode row caps.
type Catalog struct {
	BusStops      string `yaml:"busStops" validate:"required"`
	MetroStops    string `yaml:"metroStops" validate:"required"`
	BusPassages   string `yaml:"busPassages" validate:"required"`
	MetroPassages string `yaml:"metroPassages" validate:"required"`
	BusRoutes     string `yaml:"busRoutes" validate:"required"`
	MetroRoutes   string `yaml:"metroRoutes" validate:"required"`
	Alerts        string `yaml:"alerts" validate:"required"`
	Ridership     string `yaml:"ridership" validate:"required"`
	BusPositions  string `yaml:"busPositions" validate:"required"`
	BusRowCap     int    `yaml:"busRowCap" validate:"gt=0"`
	MetroRowCap   int    `yaml:"metroRowCap" validate:"gt=0"`
	MetroLineID   string `yaml:"metroLineId" validate:"required"`
	MetroLineCode string `yaml:"metroLineCode" validate:"required"`
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type StationsConfig struct {
	SyncInterval time.Duration `validate:"gt=0"`
	// Stations not seen by a sync for this long are pruned.
	RetainFor time.Duration `validate:"gt=0"`
}

type AlertsConfig struct {
	PollInterval time.Duration `validate:"gt=0"`
}

type LoggingConfig struct {
	Level      string
	FilePath   string
	DiscordURL string `validate:"omitempty,url"`
}

// DefaultCatalog is the STAR (Rennes) open-data catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		BusStops:      "tco-bus-topologie-dessertes-td",
		MetroStops:    "tco-metro-topologie-dessertes-td",
		BusPassages:   "tco-bus-circulation-passages-tr",
		MetroPassages: "tco-metro-circulation-passages-tr",
		BusRoutes:     "tco-bus-topologie-parcours-td",
		MetroRoutes:   "tco-metro-topologie-parcours-td",
		Alerts:        "tco-busmetro-trafic-alertes-tr",
		Ridership:     "mkt-frequentation-niveau-freq-max-ligne",
		BusPositions:  "tco-bus-vehicules-position-tr",
		BusRowCap:     40,
		MetroRowCap:   60,
		MetroLineID:   "1001",
		MetroLineCode: "a",
	}
}

func Load() (*Config, error) {
	cfg := &Config{
		Network: getEnv("NETWORK_NAME", "Star"),
		Feed: FeedConfig{
			BaseURL:     getEnv("FEED_BASE_URL", "https://data.explore.star.fr"),
			Timeout:     getDurationEnv("FEED_TIMEOUT", 10*time.Second),
			CatalogPath: getEnv("FEED_CATALOG", ""),
			Catalog:     DefaultCatalog(),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "moov"),
		},
		Stations: StationsConfig{
			SyncInterval: getDurationEnv("STATION_SYNC_INTERVAL", 24*time.Hour),
			RetainFor:    getDurationEnv("STATION_RETAIN_FOR", 7*24*time.Hour),
		},
		Alerts: AlertsConfig{
			PollInterval: getDurationEnv("ALERT_POLL_INTERVAL", 2*time.Minute),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			FilePath:   getEnv("LOG_FILE", "moov-data.log"),
			DiscordURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		},
	}

	if cfg.Feed.CatalogPath != "" {
		catalog, err := LoadCatalog(cfg.Feed.CatalogPath, cfg.Feed.Catalog)
		if err != nil {
			return nil, err
		}
		cfg.Feed.Catalog = catalog
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return cfg, nil
}

// LoadCatalog reads a YAML catalog file. Keys absent from the file keep the
// values from base.
func LoadCatalog(path string, base Catalog) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	catalog := base
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("decoding catalog %s: %w", path, err)
	}
	if err := validator.New().Struct(catalog); err != nil {
		return Catalog{}, fmt.Errorf("validating catalog %s: %w", path, err)
	}
	return catalog, nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("DB_PORT must be numeric, got %q", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.DBName == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
