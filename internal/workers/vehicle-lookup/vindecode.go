// internal/workers/vehicle-lookup/vindecode.go
package vehiclelookup

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	pipelineerrors "gearbox-workers/internal/common/errors"
	"gearbox-workers/internal/common/httpclient"
	"gearbox-workers/internal/common/logger"
)

// VinDecodeClient talks to the VIN-decode API, authoritative for general
// vehicle facts (make/model/year/engine) but never for part numbers.
type VinDecodeClient struct {
	http       *httpclient.Client
	baseURL    string
	apiKey     string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	logger     logger.Logger
}

func NewVinDecodeClient(cfg *Config, log logger.Logger) *VinDecodeClient {
	return &VinDecodeClient{
		http:       httpclient.NewClient(cfg.VinDecodeTimeout),
		baseURL:    strings.TrimSuffix(cfg.VinDecodeBaseURL, "/"),
		apiKey:     cfg.VinDecodeAPIKey,
		timeout:    cfg.VinDecodeTimeout,
		retries:    cfg.VinDecodeRetries,
		retryDelay: cfg.VinDecodeRetryDelay,
		logger:     log,
	}
}

// Decode fetches vehicle facts for a VIN. Timeouts are retried with a
// fixed delay; any other failure returns nil so the resolution can
// proceed on catalog data alone.
func (c *VinDecodeClient) Decode(ctx context.Context, vin string) *decodeResult {
	endpoint := c.baseURL + "/decode?vin=" + url.QueryEscape(vin)
	headers := map[string]string{"X-Api-Key": c.apiKey}

	for attempt := 1; attempt <= c.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		var out decodeResult
		status, err := c.http.GetJSON(attemptCtx, endpoint, headers, &out)
		cancel()

		if err == nil && status == http.StatusOK {
			return &out
		}

		if err != nil && isTimeout(attemptCtx, err) {
			if attempt < c.retries {
				c.logger.Warn("vin decode timed out, retrying", map[string]interface{}{
					"attempt": attempt,
				})
				select {
				case <-time.After(c.retryDelay):
					continue
				case <-ctx.Done():
					return nil
				}
			}
			c.logger.WithError(pipelineerrors.NewVinDecodeTimeoutError(err)).
				Warn("vin decode timed out on final attempt", nil)
			return nil
		}

		// Non-timeout failures short-circuit to "no data".
		if err != nil {
			c.logger.Warn("vin decode failed", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			c.logger.Warn("vin decode returned non-OK status", map[string]interface{}{
				"status": status,
			})
		}
		return nil
	}

	return nil
}
