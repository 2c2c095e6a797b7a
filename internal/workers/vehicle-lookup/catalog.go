// internal/workers/vehicle-lookup/catalog.go
package vehiclelookup

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"gearbox-workers/internal/common/errors"
	"gearbox-workers/internal/common/httpclient"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/models"
)

// CatalogClient talks to the part-catalog lookup service, which is
// authoritative for OEM numbers and gearbox info.
type CatalogClient struct {
	http    *httpclient.Client
	baseURL string
	logger  logger.Logger
}

func NewCatalogClient(baseURL string, http *httpclient.Client, log logger.Logger) *CatalogClient {
	return &CatalogClient{
		http:    http,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  log,
	}
}

// Lookup resolves an identifier through the catalog. A timeout is retried
// exactly once and connection-level failures stay retryable at the queue
// level; 404 maps to NotFound, 500 to ParseFailed, both terminal.
func (c *CatalogClient) Lookup(ctx context.Context, idType models.IdentifierType, value string) (*catalogResponse, error) {
	body := map[string]string{
		"idType": string(idType),
		"value":  value,
	}

	var out catalogResponse
	status, err := c.http.PostJSON(ctx, c.baseURL+"/lookup", nil, body, &out)
	if err != nil && isTimeout(ctx, err) {
		c.logger.Warn("catalog lookup timed out, retrying once", map[string]interface{}{
			"idType": string(idType),
		})
		status, err = c.http.PostJSON(ctx, c.baseURL+"/lookup", nil, body, &out)
	}
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, errors.NewLookupTimeoutError(err)
		}
		if isTransportError(err) {
			return nil, errors.NewCatalogUnavailableError(err)
		}
		return nil, errors.NewSearchSourceError("catalog", err)
	}

	switch status {
	case http.StatusOK:
		return &out, nil
	case http.StatusNotFound:
		return nil, errors.NewNotFoundError(string(idType), value)
	default:
		return nil, errors.NewParseFailedError("catalog lookup failed")
	}
}

// isTimeout classifies transport errors that should count as timeouts.
func isTimeout(ctx context.Context, err error) bool {
	if ctx.Err() == context.DeadlineExceeded {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline") ||
		strings.Contains(msg, "Client.Timeout")
}

// isTransportError matches connection-level failures (refused, reset, DNS)
// where the request never reached the catalog, as opposed to a bad response
// from it.
func isTransportError(err error) bool {
	var ue *url.Error
	if stderrors.As(err, &ue) {
		return true
	}
	var oe *net.OpError
	return stderrors.As(err, &oe)
}
