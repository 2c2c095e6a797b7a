// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig               `mapstructure:"app"`
	Database   DatabaseConfig          `mapstructure:"database"`
	Queues     map[string]QueueConfig  `mapstructure:"queues"`
	APIs       APIsConfig              `mapstructure:"apis"`
	Search     SearchConfig            `mapstructure:"search"`
	Suggestion SuggestionConfig        `mapstructure:"suggestion"`
	Flags      FlagsConfig             `mapstructure:"flags"`
	Broadcast  BroadcastConfig         `mapstructure:"broadcast"`
	Audit      AuditConfig             `mapstructure:"audit"`
	Logging    LoggingConfig           `mapstructure:"logging"`
	Metrics    MetricsConfig           `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	AuditIndex string   `mapstructure:"audit_index"`
	Enabled    bool     `mapstructure:"enabled"`
}

// QueueConfig holds the core settings applicable to every queue worker.
type QueueConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	MaxAttempts  int  `mapstructure:"max_attempts"`   // queue-level retries
	BackoffMs    int  `mapstructure:"backoff_ms"`     // base delay, doubled per attempt
	PollMs       int  `mapstructure:"poll_ms"`        // ready-list poll interval
	JobTimeoutMs int  `mapstructure:"job_timeout_ms"` // per-job deadline
}

// --- External API Configuration ---

type APIsConfig struct {
	Catalog        CatalogConfig        `mapstructure:"catalog"`
	VinDecode      VinDecodeConfig      `mapstructure:"vin_decode"`
	RegionalSearch RegionalSearchConfig `mapstructure:"regional_search"`
	LLM            LLMConfig            `mapstructure:"llm"`
	FX             FXConfig             `mapstructure:"fx"`
}

type CatalogConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

type VinDecodeConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	TimeoutMs int    `mapstructure:"timeout_ms"` // per attempt
	Retries   int    `mapstructure:"retries"`    // timeout-only inner retries
	RetryMs   int    `mapstructure:"retry_ms"`   // fixed inter-attempt delay
}

type RegionalSearchConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	FolderID  string `mapstructure:"folder_id"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

type LLMConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type FXConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

// SearchConfig holds the tunable cascade thresholds.
type SearchConfig struct {
	MaxQueries          int `mapstructure:"max_queries"`           // parallel regional queries
	MaxPages            int `mapstructure:"max_pages"`             // pages fetched per search
	FetchConcurrency    int `mapstructure:"fetch_concurrency"`     // bounded page-fetch workers
	PageTimeoutMs       int `mapstructure:"page_timeout_ms"`       // per page fetch
	MinListings         int `mapstructure:"min_listings"`          // stage 1 sufficiency
	MinDomains          int `mapstructure:"min_domains"`           // stage 1 sufficiency
	MinAISurvivors      int `mapstructure:"min_ai_survivors"`      // stage 2 bar
	HostRatePerSec      int `mapstructure:"host_rate_per_sec"`     // page fetch politeness
}

// SuggestionConfig holds template thresholds and tier boundaries.
type SuggestionConfig struct {
	HighConfidence   float64 `mapstructure:"high_confidence"`   // >= -> found-with-OEM template
	MediumConfidence float64 `mapstructure:"medium_confidence"` // >= -> model-only template
	// Mileage tier boundaries in km; tenant overrides keyed by tenant ID.
	BudgetMaxKm     int                    `mapstructure:"budget_max_km"`
	MidMaxKm        int                    `mapstructure:"mid_max_km"`
	TenantMileageKm map[string]TierMileage `mapstructure:"tenant_mileage_km"`
	DuplicateWindowSec int                 `mapstructure:"duplicate_window_sec"`
	DuplicateScanLimit int                 `mapstructure:"duplicate_scan_limit"`
}

type TierMileage struct {
	BudgetMaxKm int `mapstructure:"budget_max_km"`
	MidMaxKm    int `mapstructure:"mid_max_km"`
}

// FlagsConfig is the config-backed feature flag provider source.
type FlagsConfig struct {
	Defaults map[string]bool            `mapstructure:"defaults"`
	Tenants  map[string]map[string]bool `mapstructure:"tenants"`
}

type BroadcastConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Region   string `mapstructure:"region"`
	TopicARN string `mapstructure:"topic_arn"`
}

type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port"`
}
