package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix of every environment variable read by Load
const EnvPrefix = "SALES"

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Cache      CacheConfig      `yaml:"cache" envconfig:"CACHE"`
	Validation ValidationConfig `yaml:"validation" envconfig:"VALIDATION"`
	Cleaning   CleaningConfig   `yaml:"cleaning" envconfig:"CLEANING"`
	Analysis   AnalysisConfig   `yaml:"analysis" envconfig:"ANALYSIS"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" envconfig:"ENABLED"`
	RequestsPerMinute float64 `yaml:"requests_per_minute" envconfig:"REQUESTS_PER_MINUTE"`
	Burst             int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// CacheConfig selects and tunes the result cache backend
type CacheConfig struct {
	Enabled          bool          `yaml:"enabled" envconfig:"ENABLED"`
	Backend          string        `yaml:"backend" envconfig:"BACKEND"`
	RedisURL         string        `yaml:"redis_url" envconfig:"REDIS_URL"`
	BadgerDir        string        `yaml:"badger_dir" envconfig:"BADGER_DIR"`
	TTL              time.Duration `yaml:"ttl" envconfig:"TTL"`
	MaxEntries       int           `yaml:"max_entries" envconfig:"MAX_ENTRIES"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval" envconfig:"CLEANUP_INTERVAL"`
	OperationTimeout time.Duration `yaml:"operation_timeout" envconfig:"OPERATION_TIMEOUT"`
}

// ValidationConfig holds dataset validation thresholds
type ValidationConfig struct {
	MissingThreshold float64 `yaml:"missing_threshold" envconfig:"MISSING_THRESHOLD"`
	MinRows          int     `yaml:"min_rows" envconfig:"MIN_ROWS"`
	StrictMode       bool    `yaml:"strict_mode" envconfig:"STRICT_MODE"`
}

// CleaningConfig holds the default cleaning pass applied before analysis
type CleaningConfig struct {
	RemoveOutliers     bool    `yaml:"remove_outliers" envconfig:"REMOVE_OUTLIERS"`
	OutlierMethod      string  `yaml:"outlier_method" envconfig:"OUTLIER_METHOD"`
	IQRThreshold       float64 `yaml:"iqr_threshold" envconfig:"IQR_THRESHOLD"`
	ZScoreThreshold    float64 `yaml:"zscore_threshold" envconfig:"ZSCORE_THRESHOLD"`
	ImputeMissing      bool    `yaml:"impute_missing" envconfig:"IMPUTE_MISSING"`
	ImputationStrategy string  `yaml:"imputation_strategy" envconfig:"IMPUTATION_STRATEGY"`
	CleanStrings       bool    `yaml:"clean_strings" envconfig:"CLEAN_STRINGS"`
}

// AnalysisConfig holds defaults of the sales analyses
type AnalysisConfig struct {
	TopN        int    `yaml:"top_n" envconfig:"TOP_N"`
	TrendPeriod string `yaml:"trend_period" envconfig:"TREND_PERIOD"`
	DateLayout  string `yaml:"date_layout" envconfig:"DATE_LAYOUT"`
}

// TelemetryConfig contains OpenTelemetry settings
type TelemetryConfig struct {
	Enabled        bool    `yaml:"enabled" envconfig:"ENABLED"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// Load builds the configuration from defaults, the optional YAML file and
// SALES_* environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file path. An empty path skips the file.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg; keys absent from the file keep their value
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requires positive requests_per_minute and burst")
	}

	c.Cache.Backend = strings.ToLower(c.Cache.Backend)
	switch c.Cache.Backend {
	case "memory", "redis", "badger":
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}

	if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
		return fmt.Errorf("redis cache backend requires a redis_url")
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}

	if c.Validation.MissingThreshold < 0 || c.Validation.MissingThreshold > 100 {
		return fmt.Errorf("missing threshold must be a percentage between 0 and 100, got %v", c.Validation.MissingThreshold)
	}

	if c.Validation.MinRows < 0 {
		return fmt.Errorf("min rows cannot be negative")
	}

	switch strings.ToLower(c.Cleaning.OutlierMethod) {
	case "iqr", "zscore":
	default:
		return fmt.Errorf("unsupported outlier method: %s", c.Cleaning.OutlierMethod)
	}

	if c.Cleaning.IQRThreshold <= 0 || c.Cleaning.ZScoreThreshold <= 0 {
		return fmt.Errorf("outlier thresholds must be positive")
	}

	if c.Analysis.TopN <= 0 {
		return fmt.Errorf("top_n must be positive")
	}

	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	if c.Logging.Output == "" {
		c.Logging.Output = "console"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		return path
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  2 * time.Minute,
			MaxUploadBytes:  100 << 20, // 100MB
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 100,
			Burst:             20,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/app.log",
		},
		Cache: CacheConfig{
			Enabled:          true,
			Backend:          "memory",
			RedisURL:         "redis://localhost:6379/0",
			BadgerDir:        "data/cache",
			TTL:              time.Hour,
			MaxEntries:       1000,
			CleanupInterval:  5 * time.Minute,
			OperationTimeout: 2 * time.Second,
		},
		Validation: ValidationConfig{
			MissingThreshold: 50,
			MinRows:          1,
			StrictMode:       false,
		},
		Cleaning: CleaningConfig{
			RemoveOutliers:     false,
			OutlierMethod:      "iqr",
			IQRThreshold:       1.5,
			ZScoreThreshold:    3.0,
			ImputeMissing:      true,
			ImputationStrategy: "median",
			CleanStrings:       true,
		},
		Analysis: AnalysisConfig{
			TopN:        10,
			TrendPeriod: "month",
			DateLayout:  "2006-01-02",
		},
		Telemetry: TelemetryConfig{
			Enabled:        true,
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
	}
}
