package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Auth         AuthConfig         `yaml:"auth"`
	NATS         NATSConfig         `yaml:"nats"`
	Matchmaking  MatchmakingConfig  `yaml:"matchmaking"`
	Achievements AchievementsConfig `yaml:"achievements"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HTTPPort   int    `yaml:"http_port"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// NATSConfig holds event bus settings. Embedded runs an in-process server
// for development instead of dialing URL.
type NATSConfig struct {
	URL      string `yaml:"url"`
	Embedded bool   `yaml:"embedded"`
	Stream   string `yaml:"stream"`
}

// MatchmakingConfig holds orchestration settings
type MatchmakingConfig struct {
	ConfigName     string        `yaml:"config_name"`
	MatchTTL       time.Duration `yaml:"match_ttl"`
	StopRetryDelay time.Duration `yaml:"stop_retry_delay"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

// AchievementsConfig holds milestone thresholds over cumulative score
type AchievementsConfig struct {
	Milestones []int64 `yaml:"milestones"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.ApplyDefaults()

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret must be set")
	}

	return &cfg, nil
}

// ApplyDefaults fills zero-value fields with their defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/cubedrop/cubedrop.db"
	}
	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.Stream == "" {
		cfg.NATS.Stream = "MMEVENTS"
	}
	if cfg.Matchmaking.ConfigName == "" {
		cfg.Matchmaking.ConfigName = "default"
	}
	if cfg.Matchmaking.MatchTTL == 0 {
		cfg.Matchmaking.MatchTTL = 2 * time.Hour
	}
	if cfg.Matchmaking.StopRetryDelay == 0 {
		cfg.Matchmaking.StopRetryDelay = 5 * time.Second
	}
	if cfg.Matchmaking.SweepInterval == 0 {
		cfg.Matchmaking.SweepInterval = 10 * time.Minute
	}
	if len(cfg.Achievements.Milestones) == 0 {
		cfg.Achievements.Milestones = []int64{10, 100, 500, 1000, 5000}
	}
}
