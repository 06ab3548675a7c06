package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Matching Thresholds     `yaml:"matching" mapstructure:"matching"`
	Learning LearningConfig `yaml:"learning" mapstructure:"learning"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RegistryConfig configures the external provider-registry client.
type RegistryConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	SearchLimit  int     `yaml:"search_limit" mapstructure:"search_limit"`
	CacheTTLDays int     `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
}

// CacheTTL returns the registry cache TTL as a duration.
func (r RegistryConfig) CacheTTL() time.Duration {
	return time.Duration(r.CacheTTLDays) * 24 * time.Hour
}

// Thresholds is the single home for every matching cutoff used by both the
// entity-resolution and taxonomy-classification paths. These are load-bearing
// business rules; do not re-declare them at call sites.
type Thresholds struct {
	// Entity resolution ladder.
	AcceptScore     float64 `yaml:"accept_score" mapstructure:"accept_score"`           // exclusive: score must exceed
	AutoVerifyScore float64 `yaml:"auto_verify_score" mapstructure:"auto_verify_score"` // exclusive
	PossibleScore   float64 `yaml:"possible_score" mapstructure:"possible_score"`       // inclusive lower bound
	CityMatchScore  float64 `yaml:"city_match_score" mapstructure:"city_match_score"`   // exclusive

	// Blend weights. Must sum to 1.
	NameWeight float64 `yaml:"name_weight" mapstructure:"name_weight"`
	CityWeight float64 `yaml:"city_weight" mapstructure:"city_weight"`
	BedWeight  float64 `yaml:"bed_weight" mapstructure:"bed_weight"`

	// Taxonomy classification.
	ExactKeyConfidence  float64 `yaml:"exact_key_confidence" mapstructure:"exact_key_confidence"`
	SynonymConfidence   float64 `yaml:"synonym_confidence" mapstructure:"synonym_confidence"`
	SubstringConfidence float64 `yaml:"substring_confidence" mapstructure:"substring_confidence"`
	CategoryConfidence  float64 `yaml:"category_confidence" mapstructure:"category_confidence"`
	StaticAcceptFloor   float64 `yaml:"static_accept_floor" mapstructure:"static_accept_floor"` // inclusive
	LearnedGate         float64 `yaml:"learned_gate" mapstructure:"learned_gate"`               // inclusive

	// Alternatives surfaced for audit / human disposition.
	TopK int `yaml:"top_k" mapstructure:"top_k"`
}

// LearningConfig configures the learned-mapping store policy.
type LearningConfig struct {
	// OverridePolicy controls whether disagreeing deal-scoped corrections can
	// replace an established global mapping: "never" (first writer wins) or
	// "quorum" (replace once OverrideQuorum deals disagree).
	OverridePolicy string  `yaml:"override_policy" mapstructure:"override_policy"`
	OverrideQuorum int     `yaml:"override_quorum" mapstructure:"override_quorum"`
	BoostFactor    float64 `yaml:"boost_factor" mapstructure:"boost_factor"`
	ConfidenceCap  float64 `yaml:"confidence_cap" mapstructure:"confidence_cap"`
}

// BatchConfig bounds concurrent per-item work.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.snf-deal-cli")

	// Environment
	v.SetEnvPrefix("SNF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "deal.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent", 8)

	v.SetDefault("registry.base_url", "https://data.cms.gov/provider-data/api/1")
	v.SetDefault("registry.rate_per_sec", 5)
	v.SetDefault("registry.timeout_secs", 30)
	v.SetDefault("registry.search_limit", 25)
	v.SetDefault("registry.cache_ttl_days", 7)

	v.SetDefault("matching.accept_score", 0.70)
	v.SetDefault("matching.auto_verify_score", 0.90)
	v.SetDefault("matching.possible_score", 0.50)
	v.SetDefault("matching.city_match_score", 0.80)
	v.SetDefault("matching.name_weight", 0.50)
	v.SetDefault("matching.city_weight", 0.25)
	v.SetDefault("matching.bed_weight", 0.25)
	v.SetDefault("matching.exact_key_confidence", 0.95)
	v.SetDefault("matching.synonym_confidence", 0.90)
	v.SetDefault("matching.substring_confidence", 0.75)
	v.SetDefault("matching.category_confidence", 0.50)
	v.SetDefault("matching.static_accept_floor", 0.70)
	v.SetDefault("matching.learned_gate", 0.75)
	v.SetDefault("matching.top_k", 5)

	v.SetDefault("learning.override_policy", "never")
	v.SetDefault("learning.override_quorum", 3)
	v.SetDefault("learning.boost_factor", 1.10)
	v.SetDefault("learning.confidence_cap", 0.98)

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

// DefaultThresholds returns the production matching thresholds without going
// through viper. Used by tests and by components constructed programmatically.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AcceptScore:         0.70,
		AutoVerifyScore:     0.90,
		PossibleScore:       0.50,
		CityMatchScore:      0.80,
		NameWeight:          0.50,
		CityWeight:          0.25,
		BedWeight:           0.25,
		ExactKeyConfidence:  0.95,
		SynonymConfidence:   0.90,
		SubstringConfidence: 0.75,
		CategoryConfidence:  0.50,
		StaticAcceptFloor:   0.70,
		LearnedGate:         0.75,
		TopK:                5,
	}
}

// DefaultLearning returns the default learned-mapping policy.
func DefaultLearning() LearningConfig {
	return LearningConfig{
		OverridePolicy: "never",
		OverrideQuorum: 3,
		BoostFactor:    1.10,
		ConfidenceCap:  0.98,
	}
}

// Validate checks that thresholds are internally consistent.
func (t Thresholds) Validate() error {
	var errs []string

	if t.PossibleScore > t.AcceptScore {
		errs = append(errs, "possible_score must be <= accept_score")
	}
	if t.AcceptScore > t.AutoVerifyScore {
		errs = append(errs, "accept_score must be <= auto_verify_score")
	}
	weightSum := t.NameWeight + t.CityWeight + t.BedWeight
	if weightSum < 0.999 || weightSum > 1.001 {
		errs = append(errs, "blend weights must sum to 1")
	}
	for _, c := range []float64{
		t.AcceptScore, t.AutoVerifyScore, t.PossibleScore, t.CityMatchScore,
		t.ExactKeyConfidence, t.SynonymConfidence, t.SubstringConfidence,
		t.CategoryConfidence, t.StaticAcceptFloor, t.LearnedGate,
	} {
		if c < 0 || c > 1 {
			errs = append(errs, "all cutoffs must be within [0,1]")
			break
		}
	}
	if t.TopK <= 0 {
		errs = append(errs, "top_k must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid thresholds: %s", strings.Join(errs, "; "))
	}
	return nil
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
