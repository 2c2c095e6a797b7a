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

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like LLM_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile tries .env in the working directory, its ancestors, and the
// project root (tests run from nested package directories).
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

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

// findProjectRoot walks up directories looking for go.mod.
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
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills credentials from plain env vars when the YAML
// left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.APIs.LLM.APIKey == "" {
		if val := os.Getenv("LLM_API_KEY"); val != "" {
			cfg.APIs.LLM.APIKey = val
		}
	}
	if cfg.APIs.RegionalSearch.APIKey == "" {
		if val := os.Getenv("REGIONAL_SEARCH_API_KEY"); val != "" {
			cfg.APIs.RegionalSearch.APIKey = val
		}
	}
	if cfg.APIs.VinDecode.APIKey == "" {
		if val := os.Getenv("VIN_DECODE_API_KEY"); val != "" {
			cfg.APIs.VinDecode.APIKey = val
		}
	}
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.AuditIndex == "" {
		cfg.Database.Elasticsearch.AuditIndex = "pipeline-audit"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Queues == nil {
		cfg.Queues = map[string]QueueConfig{}
	}
	for key, q := range cfg.Queues {
		if q.MaxAttempts == 0 {
			q.MaxAttempts = 3
		}
		if q.BackoffMs == 0 {
			q.BackoffMs = 5000
		}
		if q.PollMs == 0 {
			q.PollMs = 500
		}
		if q.JobTimeoutMs == 0 {
			q.JobTimeoutMs = 120000
		}
		cfg.Queues[key] = q
	}

	// API timeout defaults per the documented ranges: 6-20s for
	// searches/pages, 15s for VIN decode.
	if cfg.APIs.Catalog.TimeoutMs == 0 {
		cfg.APIs.Catalog.TimeoutMs = 30000
	}
	if cfg.APIs.VinDecode.TimeoutMs == 0 {
		cfg.APIs.VinDecode.TimeoutMs = 15000
	}
	if cfg.APIs.VinDecode.Retries == 0 {
		cfg.APIs.VinDecode.Retries = 3
	}
	if cfg.APIs.VinDecode.RetryMs == 0 {
		cfg.APIs.VinDecode.RetryMs = 2000
	}
	if cfg.APIs.RegionalSearch.TimeoutMs == 0 {
		cfg.APIs.RegionalSearch.TimeoutMs = 10000
	}
	if cfg.APIs.LLM.TimeoutMs == 0 {
		cfg.APIs.LLM.TimeoutMs = 60000
	}
	if cfg.APIs.LLM.Model == "" {
		cfg.APIs.LLM.Model = "gpt-4o-mini"
	}
	if cfg.APIs.LLM.MaxTokens == 0 {
		cfg.APIs.LLM.MaxTokens = 300
	}
	if cfg.APIs.FX.TimeoutMs == 0 {
		cfg.APIs.FX.TimeoutMs = 6000
	}

	if cfg.Search.MaxQueries == 0 {
		cfg.Search.MaxQueries = 3
	}
	if cfg.Search.MaxPages == 0 {
		cfg.Search.MaxPages = 8
	}
	if cfg.Search.FetchConcurrency == 0 {
		cfg.Search.FetchConcurrency = 4
	}
	if cfg.Search.PageTimeoutMs == 0 {
		cfg.Search.PageTimeoutMs = 12000
	}
	if cfg.Search.MinListings == 0 {
		cfg.Search.MinListings = 3
	}
	if cfg.Search.MinDomains == 0 {
		cfg.Search.MinDomains = 2
	}
	if cfg.Search.MinAISurvivors == 0 {
		cfg.Search.MinAISurvivors = 2
	}
	if cfg.Search.HostRatePerSec == 0 {
		cfg.Search.HostRatePerSec = 2
	}

	if cfg.Suggestion.HighConfidence == 0 {
		cfg.Suggestion.HighConfidence = 0.8
	}
	if cfg.Suggestion.MediumConfidence == 0 {
		cfg.Suggestion.MediumConfidence = 0.5
	}
	if cfg.Suggestion.BudgetMaxKm == 0 {
		cfg.Suggestion.BudgetMaxKm = 60000
	}
	if cfg.Suggestion.MidMaxKm == 0 {
		cfg.Suggestion.MidMaxKm = 120000
	}
	if cfg.Suggestion.DuplicateWindowSec == 0 {
		cfg.Suggestion.DuplicateWindowSec = 120
	}
	if cfg.Suggestion.DuplicateScanLimit == 0 {
		cfg.Suggestion.DuplicateScanLimit = 5
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}
	if cfg.Audit.Enabled && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required when audit is enabled")
	}
	if cfg.Broadcast.Enabled && cfg.Broadcast.TopicARN == "" {
		return fmt.Errorf("broadcast.topic_arn is required when broadcast is enabled")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetQueueConfig retrieves queue-specific configuration with fallback to defaults.
func GetQueueConfig(cfg *Config, queueName string) QueueConfig {
	if q, exists := cfg.Queues[queueName]; exists {
		return q
	}

	return QueueConfig{
		Enabled:      true,
		MaxAttempts:  3,
		BackoffMs:    5000,
		PollMs:       500,
		JobTimeoutMs: 120000,
	}
}
