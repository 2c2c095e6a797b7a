// internal/workers/price-lookup/search/fx.go
package search

import (
	"context"
	"net/http"
	"time"

	"gearbox-workers/internal/common/config"
	"gearbox-workers/internal/common/httpclient"
	"gearbox-workers/internal/common/logger"
)

// Hard-coded fallback rates used when the live endpoint is down. Stale is
// better than no international prices at all.
const (
	defaultUSDRate = 95.0
	defaultEURRate = 105.0
	defaultJPYRate = 0.63
)

// FXRates converts foreign listing prices to rubles.
type FXRates struct {
	USD float64
	EUR float64
	JPY float64
}

func defaultRates() FXRates {
	return FXRates{USD: defaultUSDRate, EUR: defaultEURRate, JPY: defaultJPYRate}
}

// ToRUB converts an amount in the given currency. Unknown currencies pass
// through unchanged.
func (r FXRates) ToRUB(amount float64, currency string) float64 {
	switch currency {
	case "USD":
		return amount * r.USD
	case "EUR":
		return amount * r.EUR
	case "JPY":
		return amount * r.JPY
	default:
		return amount
	}
}

// FXClient fetches live rates. One fetch per top-level search; the result
// is held by the cascade run, not cached here.
type FXClient struct {
	http    *httpclient.Client
	baseURL string
	logger  logger.Logger
}

func NewFXClient(cfg config.FXConfig, log logger.Logger) *FXClient {
	return &FXClient{
		http:    httpclient.NewClient(time.Duration(cfg.TimeoutMs) * time.Millisecond),
		baseURL: cfg.BaseURL,
		logger:  log,
	}
}

// Rates returns live rates, or the defaults on any failure.
func (c *FXClient) Rates(ctx context.Context) FXRates {
	if c.baseURL == "" {
		return defaultRates()
	}

	var resp struct {
		Rates map[string]float64 `json:"rates"`
	}
	status, err := c.http.GetJSON(ctx, c.baseURL+"/latest?base=RUB", nil, &resp)
	if err != nil || status != http.StatusOK || len(resp.Rates) == 0 {
		c.logger.Warn("fx rates fetch failed, using defaults", map[string]interface{}{
			"status": status,
		})
		return defaultRates()
	}

	rates := defaultRates()
	// The endpoint quotes foreign units per ruble; invert to rubles per unit.
	if v := resp.Rates["USD"]; v > 0 {
		rates.USD = 1 / v
	}
	if v := resp.Rates["EUR"]; v > 0 {
		rates.EUR = 1 / v
	}
	if v := resp.Rates["JPY"]; v > 0 {
		rates.JPY = 1 / v
	}
	return rates
}
