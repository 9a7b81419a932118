package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Discovery   DiscoveryConfig   `yaml:"discovery" mapstructure:"discovery"`
	Reliability ReliabilityConfig `yaml:"reliability" mapstructure:"reliability"`
	Conflicts   ConflictsConfig   `yaml:"conflicts" mapstructure:"conflicts"`
	Learning    LearningConfig    `yaml:"learning" mapstructure:"learning"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Jobs        JobsConfig        `yaml:"jobs" mapstructure:"jobs"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL      string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns         int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns         int32  `yaml:"min_conns" mapstructure:"min_conns"`
	QueryTimeoutSecs int    `yaml:"query_timeout_secs" mapstructure:"query_timeout_secs"`
}

// ServerConfig configures the admin/collaborator HTTP server.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins   []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	IngestRatePerSec float64  `yaml:"ingest_rate_per_sec" mapstructure:"ingest_rate_per_sec"`
	IngestBurst      int      `yaml:"ingest_burst" mapstructure:"ingest_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DiscoveryConfig configures candidate validation and discovery sessions.
type DiscoveryConfig struct {
	MinValidScore         float64 `yaml:"min_valid_score" mapstructure:"min_valid_score"`
	NameWeight            float64 `yaml:"name_weight" mapstructure:"name_weight"`
	LocationWeight        float64 `yaml:"location_weight" mapstructure:"location_weight"`
	URLWeight             float64 `yaml:"url_weight" mapstructure:"url_weight"`
	KeywordFile           string  `yaml:"keyword_file" mapstructure:"keyword_file"`
	BusinessType          string  `yaml:"business_type" mapstructure:"business_type"`
	SessionConcurrency    int     `yaml:"session_concurrency" mapstructure:"session_concurrency"`
	PrioritizeBoost       float64 `yaml:"prioritize_boost" mapstructure:"prioritize_boost"`
	SeedReliabilityMetric bool    `yaml:"seed_reliability_metric" mapstructure:"seed_reliability_metric"`
}

// ReliabilityConfig holds the sub-dimension weights for the composite score.
// Weights must sum to 1.
type ReliabilityConfig struct {
	AccuracyWeight    float64 `yaml:"accuracy_weight" mapstructure:"accuracy_weight"`
	TextQualityWeight float64 `yaml:"text_quality_weight" mapstructure:"text_quality_weight"`
	RelevanceWeight   float64 `yaml:"relevance_weight" mapstructure:"relevance_weight"`
	LegitimacyWeight  float64 `yaml:"legitimacy_weight" mapstructure:"legitimacy_weight"`
	HistoryLimit      int     `yaml:"history_limit" mapstructure:"history_limit"`
}

// ConflictsConfig configures price conflict detection and batch resolution.
type ConflictsConfig struct {
	Threshold          float64 `yaml:"threshold" mapstructure:"threshold"`
	WindowHours        int     `yaml:"window_hours" mapstructure:"window_hours"`
	ResolveConcurrency int     `yaml:"resolve_concurrency" mapstructure:"resolve_concurrency"`
	BatchLimit         int     `yaml:"batch_limit" mapstructure:"batch_limit"`
}

// LearningConfig configures the pattern learning sweep.
type LearningConfig struct {
	MinUses            int64   `yaml:"min_uses" mapstructure:"min_uses"`
	LowSuccess         float64 `yaml:"low_success" mapstructure:"low_success"`
	HighSuccess        float64 `yaml:"high_success" mapstructure:"high_success"`
	MaxConfidence      float64 `yaml:"max_confidence" mapstructure:"max_confidence"`
	LearnMinConfidence float64 `yaml:"learn_min_confidence" mapstructure:"learn_min_confidence"`
	SuccessConfidence  float64 `yaml:"success_confidence" mapstructure:"success_confidence"`
}

// RetryConfig configures retries of transient store failures in batch passes.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// JobsConfig configures the periodic job runner.
type JobsConfig struct {
	IntervalMins int `yaml:"interval_mins" mapstructure:"interval_mins"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SOURCECTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.query_timeout_secs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.ingest_rate_per_sec", 20.0)
	v.SetDefault("server.ingest_burst", 40)
	v.SetDefault("discovery.keyword_file", "")
	v.SetDefault("discovery.min_valid_score", 60.0)
	v.SetDefault("discovery.name_weight", 1.0/3)
	v.SetDefault("discovery.location_weight", 1.0/3)
	v.SetDefault("discovery.url_weight", 1.0/3)
	v.SetDefault("discovery.business_type", "meat_retailer")
	v.SetDefault("discovery.session_concurrency", 8)
	v.SetDefault("discovery.prioritize_boost", 10.0)
	v.SetDefault("discovery.seed_reliability_metric", true)
	v.SetDefault("reliability.accuracy_weight", 0.35)
	v.SetDefault("reliability.text_quality_weight", 0.25)
	v.SetDefault("reliability.relevance_weight", 0.25)
	v.SetDefault("reliability.legitimacy_weight", 0.15)
	v.SetDefault("reliability.history_limit", 10)
	v.SetDefault("conflicts.threshold", 0.15)
	v.SetDefault("conflicts.window_hours", 24)
	v.SetDefault("conflicts.resolve_concurrency", 4)
	v.SetDefault("conflicts.batch_limit", 500)
	v.SetDefault("learning.min_uses", 10)
	v.SetDefault("learning.low_success", 0.40)
	v.SetDefault("learning.high_success", 0.85)
	v.SetDefault("learning.max_confidence", 95.0)
	v.SetDefault("learning.learn_min_confidence", 0.5)
	v.SetDefault("learning.success_confidence", 0.7)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("jobs.interval_mins", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command depends on. Modes: "store", "serve",
// "discovery", "reliability", "conflicts", "learning". No modes checks all but "serve".
func (c *Config) Validate(sections ...string) error {
	if len(sections) == 0 {
		sections = []string{"store", "discovery", "reliability", "conflicts", "learning"}
	}

	var errs []string
	for _, s := range sections {
		switch s {
		case "store":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required")
			}
		case "serve":
			if c.Server.Port <= 0 {
				errs = append(errs, "server.port must be > 0")
			}
		case "discovery":
			d := c.Discovery
			errs = append(errs, checkWeights("discovery",
				map[string]float64{"name_weight": d.NameWeight, "location_weight": d.LocationWeight, "url_weight": d.URLWeight})...)
			if d.MinValidScore < 0 || d.MinValidScore > 100 {
				errs = append(errs, "discovery.min_valid_score must be between 0 and 100")
			}
		case "reliability":
			r := c.Reliability
			errs = append(errs, checkWeights("reliability", map[string]float64{
				"accuracy_weight":     r.AccuracyWeight,
				"text_quality_weight": r.TextQualityWeight,
				"relevance_weight":    r.RelevanceWeight,
				"legitimacy_weight":   r.LegitimacyWeight,
			})...)
		case "conflicts":
			if c.Conflicts.Threshold <= 0 {
				errs = append(errs, "conflicts.threshold must be > 0")
			}
			if c.Conflicts.WindowHours <= 0 {
				errs = append(errs, "conflicts.window_hours must be > 0")
			}
		case "learning":
			l := c.Learning
			if l.LowSuccess < 0 || l.HighSuccess > 1 || l.LowSuccess >= l.HighSuccess {
				errs = append(errs, "learning thresholds must satisfy 0 <= low_success < high_success <= 1")
			}
			if l.MaxConfidence <= 0 || l.MaxConfidence > 100 {
				errs = append(errs, "learning.max_confidence must be in (0, 100]")
			}
		default:
			errs = append(errs, fmt.Sprintf("unknown mode %q", s))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func checkWeights(section string, weights map[string]float64) []string {
	var errs []string
	var sum float64
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s.%s must be >= 0", section, name))
		}
		sum += w
	}
	if math.Abs(sum-1) > 0.001 {
		errs = append(errs, fmt.Sprintf("%s weights should sum to 1, got %.3f", section, sum))
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
