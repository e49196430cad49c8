package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxConnections  int    `mapstructure:"max_connections"`
	IdleConnections int    `mapstructure:"idle_connections"`
	ApplySchema     bool   `mapstructure:"apply_schema"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ThresholdsConfig seeds the decision thresholds at boot. The optimizer
// mutates them afterwards.
type ThresholdsConfig struct {
	SkillConfidence float64 `mapstructure:"skill_confidence"`
	ToolNecessity   float64 `mapstructure:"tool_necessity"`
	GuidanceRisk    float64 `mapstructure:"guidance_risk"`
	HybridBalance   float64 `mapstructure:"hybrid_balance"`
}

// CognitionConfig holds decision engine tunables
type CognitionConfig struct {
	HistorySize      int              `mapstructure:"history_size"`
	RecalibrateEvery int              `mapstructure:"recalibrate_every"`
	Thresholds       ThresholdsConfig `mapstructure:"thresholds"`
	ReferenceSkills  []string         `mapstructure:"reference_skills"`
	SeedDatasetPath  string           `mapstructure:"seed_dataset_path"`
}

// MetaLearningConfig holds confidence store tunables
type MetaLearningConfig struct {
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	RecomputeInterval time.Duration `mapstructure:"recompute_interval"`
	RecomputeMinGap   time.Duration `mapstructure:"recompute_min_gap"`
}

// MetricsConfig holds observability settings
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// Config is the full service configuration
type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Cognition    CognitionConfig    `mapstructure:"cognition"`
	MetaLearning MetaLearningConfig `mapstructure:"meta_learning"`
}

// DefaultPath is used when CONFIG_PATH is not set
const DefaultPath = "config/cognition.yaml"

// Load reads configuration from path (or CONFIG_PATH / DefaultPath when
// empty), applying ANTIGRAVITY_* environment overrides on top.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ANTIGRAVITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine; defaults plus env cover local development
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Secrets come from the environment, never from the file
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Database.Password = pw
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "antigravity")
	v.SetDefault("database.database", "antigravity")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.idle_connections", 5)
	v.SetDefault("database.apply_schema", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("metrics.port", 2112)

	v.SetDefault("cognition.history_size", 10)
	v.SetDefault("cognition.recalibrate_every", 5)
	v.SetDefault("cognition.thresholds.skill_confidence", 0.8)
	v.SetDefault("cognition.thresholds.tool_necessity", 0.7)
	v.SetDefault("cognition.thresholds.guidance_risk", 0.5)
	v.SetDefault("cognition.thresholds.hybrid_balance", 0.6)

	v.SetDefault("meta_learning.refresh_interval", 5*time.Minute)
	v.SetDefault("meta_learning.recompute_interval", 15*time.Minute)
	v.SetDefault("meta_learning.recompute_min_gap", time.Minute)
}
