// internal/common/config/config.go
package config

import "fmt"

// Verdict source names.
const (
	SourceRules  = "rules"
	SourceRemote = "remote"
)

// Session store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Verdict  VerdictConfig  `mapstructure:"verdict"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Session  SessionConfig  `mapstructure:"session"`
	Database DatabaseConfig `mapstructure:"database"`
	Camunda  CamundaConfig  `mapstructure:"camunda"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig holds settings for the form web server.
type ServerConfig struct {
	Address         string   `mapstructure:"address"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	SessionCookie   string   `mapstructure:"session_cookie"`
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"` // milliseconds
	BranchLabel     string   `mapstructure:"branch_label"`
}

// VerdictConfig selects the single active verdict source.
type VerdictConfig struct {
	Source string `mapstructure:"source"`
}

// RulesConfig tunes the inline rule evaluator.
type RulesConfig struct {
	DelayMs int `mapstructure:"delay_ms"`
}

// RemoteConfig describes the external prediction endpoint.
type RemoteConfig struct {
	URL              string `mapstructure:"url"`
	Timeout          int    `mapstructure:"timeout"` // milliseconds, 0 = none
	ValidateResponse bool   `mapstructure:"validate_response"`
}

type SessionConfig struct {
	Store   string `mapstructure:"store"`
	TTL     int    `mapstructure:"ttl"`      // seconds
	LockTTL int    `mapstructure:"lock_ttl"` // seconds
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CamundaConfig controls the optional evaluate-loan-application job worker.
type CamundaConfig struct {
	Enabled       bool         `mapstructure:"enabled"`
	BrokerAddress string       `mapstructure:"broker_address"`
	Worker        WorkerConfig `mapstructure:"worker"`
}

// WorkerConfig holds the core settings applicable to a job worker.
type WorkerConfig struct {
	MaxJobsActive int `mapstructure:"max_jobs_active"`
	Timeout       int `mapstructure:"timeout"` // milliseconds
}

// CatalogConfig points at an optional field catalog override.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// GetURL returns the redis URL form of the address, used in log lines.
func (r RedisConfig) GetURL() string {
	return fmt.Sprintf("redis://%s/%d", r.Address, r.DB)
}
