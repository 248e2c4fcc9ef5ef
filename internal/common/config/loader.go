// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on
// top and applies environment overrides (LOAN_VERDICT_SOURCE etc.).
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	bindEnv(v)
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// bindEnv registers every key viper may not know about from the file so
// that LOAN_-prefixed environment variables still apply when the yaml is
// absent.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("LOAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, key := range []string{
		"app.name", "app.environment",
		"server.address", "server.session_cookie", "server.shutdown_timeout", "server.branch_label",
		"verdict.source",
		"rules.delay_ms",
		"remote.url", "remote.timeout", "remote.validate_response",
		"session.store", "session.ttl", "session.lock_ttl",
		"database.redis.address", "database.redis.password", "database.redis.db",
		"camunda.enabled", "camunda.broker_address",
		"camunda.worker.max_jobs_active", "camunda.worker.timeout",
		"catalog.path",
		"logging.level", "logging.format", "logging.output",
	} {
		_ = v.BindEnv(key)
	}
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders left in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "loan-console"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.SessionCookie == "" {
		cfg.Server.SessionCookie = "loan_session"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}

	if cfg.Verdict.Source == "" {
		cfg.Verdict.Source = SourceRules
	}
	if cfg.Rules.DelayMs == 0 {
		cfg.Rules.DelayMs = 1500
	}
	if cfg.Remote.URL == "" {
		cfg.Remote.URL = "http://127.0.0.1:8000/predict"
	}

	if cfg.Session.Store == "" {
		cfg.Session.Store = StoreMemory
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 3600
	}
	if cfg.Session.LockTTL == 0 {
		cfg.Session.LockTTL = 60
	}

	if cfg.Camunda.Worker.MaxJobsActive == 0 {
		cfg.Camunda.Worker.MaxJobsActive = 5
	}
	if cfg.Camunda.Worker.Timeout == 0 {
		cfg.Camunda.Worker.Timeout = 30000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Verdict.Source {
	case SourceRules:
		if cfg.Rules.DelayMs < 0 {
			return fmt.Errorf("rules.delay_ms must not be negative")
		}
	case SourceRemote:
		if cfg.Remote.URL == "" {
			return fmt.Errorf("remote.url is required when verdict.source is %q", SourceRemote)
		}
		if cfg.Remote.Timeout < 0 {
			return fmt.Errorf("remote.timeout must not be negative")
		}
	default:
		return fmt.Errorf("verdict.source must be %q or %q, got %q", SourceRules, SourceRemote, cfg.Verdict.Source)
	}

	switch cfg.Session.Store {
	case StoreMemory:
	case StoreRedis:
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required when session.store is %q", StoreRedis)
		}
	default:
		return fmt.Errorf("session.store must be %q or %q, got %q", StoreMemory, StoreRedis, cfg.Session.Store)
	}

	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda.enabled is true")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// RulesDelay is the artificial latency of the rule evaluator.
func (c *Config) RulesDelay() time.Duration {
	return GetDuration(c.Rules.DelayMs)
}

// SessionTTL is how long idle form state is kept.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTL) * time.Second
}

// SessionLockTTL bounds how long an abandoned submission lock survives.
func (c *Config) SessionLockTTL() time.Duration {
	return time.Duration(c.Session.LockTTL) * time.Second
}
