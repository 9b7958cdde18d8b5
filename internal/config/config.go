package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/lake-forcing-etl/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Station report API.
	FeedBaseURL   string
	FeedTimeout   time.Duration
	FeedCacheSize int

	// NWS gridpoint forecast.
	ForecastBaseURL    string
	ForecastOffice     string
	ForecastGridX      int
	ForecastGridY      int
	ForecastUserAgent  string
	ForecastRetryDelay time.Duration

	// Station ids.
	BuoyID      int
	USCGID      int
	NearshoreID int
	TChainID    int

	// Model files.
	ModelDir        string
	TFNodeFile      string
	ForecastArchive string
	SiteConfig      string

	Lookback    time.Duration
	RunInterval time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	Site domain.Site
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		FeedBaseURL:       sharedcfg.EnvOrDefault("FEED_BASE_URL", "https://tepfsail50.execute-api.us-west-2.amazonaws.com/v1"),
		ForecastBaseURL:   sharedcfg.EnvOrDefault("FORECAST_BASE_URL", "https://api.weather.gov"),
		ForecastOffice:    sharedcfg.EnvOrDefault("FORECAST_OFFICE", "REV"),
		ForecastUserAgent: sharedcfg.EnvOrDefault("FORECAST_USER_AGENT", "(lake-forcing-etl, ops@example.org)"),
		ModelDir:          sharedcfg.EnvOrDefault("MODEL_DIR", "./model/psi3d"),
		TFNodeFile:        os.Getenv("TF_NODE_FILE"),
		ForecastArchive:   sharedcfg.EnvOrDefault("FORECAST_ARCHIVE", "./forecast.csv"),
		SiteConfig:        os.Getenv("SITE_CONFIG"),
		HTTPAddr:          sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:   shutdownTimeout,
		KafkaEnabled:      os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:        sharedcfg.EnvOrDefault("KAFKA_TOPIC", "lake-forcing-rows"),
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"FEED_TIMEOUT", "30s", &cfg.FeedTimeout},
		{"FORECAST_RETRY_DELAY", "10s", &cfg.ForecastRetryDelay},
		{"LOOKBACK", "168h", &cfg.Lookback},
		{"RUN_INTERVAL", "6h", &cfg.RunInterval},
	}
	for _, d := range durations {
		if *d.dest, err = parseDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"FEED_CACHE_SIZE", 64, &cfg.FeedCacheSize},
		{"FORECAST_GRID_X", 32, &cfg.ForecastGridX},
		{"FORECAST_GRID_Y", 86, &cfg.ForecastGridY},
		{"BUOY_ID", 4, &cfg.BuoyID},
		{"USCG_ID", 1, &cfg.USCGID},
		{"NEARSHORE_ID", 9, &cfg.NearshoreID},
		{"TCHAIN_ID", 1, &cfg.TChainID},
	}
	for _, n := range ints {
		if *n.dest, err = parseInt(n.key, n.def); err != nil {
			return nil, err
		}
	}

	cfg.Site, err = LoadSite(cfg.SiteConfig)
	if err != nil {
		return nil, err
	}

	if cfg.ModelDir == "" {
		return nil, errors.New("MODEL_DIR is required")
	}
	if cfg.ForecastUserAgent == "" {
		return nil, errors.New("FORECAST_USER_AGENT is required")
	}
	if cfg.FeedCacheSize <= 0 {
		return nil, errors.New("FEED_CACHE_SIZE must be positive")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

// LoadSite returns the default site overlaid with the YAML file at path.
// An empty path uses the defaults. Bounds listed in the file replace the
// defaults for those features only.
func LoadSite(path string) (domain.Site, error) {
	site := domain.DefaultSite()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return domain.Site{}, fmt.Errorf("read site config: %w", err)
		}
		if err := yaml.Unmarshal(data, &site); err != nil {
			return domain.Site{}, fmt.Errorf("parse site config: %w", err)
		}
	}
	if err := ValidateSite(site); err != nil {
		return domain.Site{}, err
	}
	return site, nil
}

// ValidateSite checks the struct tags on domain.Site and that chain sensor
// offsets run from the top sensor down.
func ValidateSite(site domain.Site) error {
	if err := validator.New().Struct(site); err != nil {
		return fmt.Errorf("invalid site config: %w", err)
	}
	for i := 1; i < len(site.ChainOffsets); i++ {
		if site.ChainOffsets[i] >= site.ChainOffsets[i-1] {
			return fmt.Errorf("invalid site config: chain_offsets must be strictly decreasing, got %v", site.ChainOffsets)
		}
	}
	return nil
}

func parseDuration(key, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
