// internal/workers/vehicle-lookup/config.go
package vehiclelookup

import (
	"time"

	"gearbox-workers/internal/common/config"
)

type Config struct {
	CatalogBaseURL string
	CatalogTimeout time.Duration

	VinDecodeBaseURL    string
	VinDecodeAPIKey     string
	VinDecodeTimeout    time.Duration
	VinDecodeRetries    int
	VinDecodeRetryDelay time.Duration

	// Confidence gate below which no price lookup is enqueued; the
	// customer is asked for a nameplate photo instead.
	MinPriceLookupConfidence float64
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		CatalogBaseURL:           cfg.APIs.Catalog.BaseURL,
		CatalogTimeout:           config.GetDuration(cfg.APIs.Catalog.TimeoutMs),
		VinDecodeBaseURL:         cfg.APIs.VinDecode.BaseURL,
		VinDecodeAPIKey:          cfg.APIs.VinDecode.APIKey,
		VinDecodeTimeout:         config.GetDuration(cfg.APIs.VinDecode.TimeoutMs),
		VinDecodeRetries:         cfg.APIs.VinDecode.Retries,
		VinDecodeRetryDelay:      config.GetDuration(cfg.APIs.VinDecode.RetryMs),
		MinPriceLookupConfidence: cfg.Suggestion.MediumConfidence,
	}
}
