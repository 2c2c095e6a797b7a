// internal/workers/price-lookup/search/regional.go
package search

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"gearbox-workers/internal/common/config"
	"gearbox-workers/internal/common/httpclient"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/common/secrets"
	"gearbox-workers/internal/models"
)

// Marketplace trust scores used to rank search results before fetching.
// Unknown domains still get fetched, just last.
var domainTrust = map[string]float64{
	"drom.ru":     1.0,
	"avito.ru":    0.9,
	"farpost.ru":  0.85,
	"japancar.ru": 0.8,
	"bibinet.ru":  0.75,
}

const genericDomainTrust = 0.3

func trustFor(host string) float64 {
	if score, ok := domainTrust[baseDomain(host)]; ok {
		return score
	}
	return genericDomainTrust
}

// RegionalSearcher runs the paid regional search API and scrapes the top
// result pages. All failures are absorbed; the stage simply yields fewer
// listings.
type RegionalSearcher struct {
	api     *httpclient.Client
	pages   *httpclient.Client
	apiCfg  config.RegionalSearchConfig
	cfg     config.SearchConfig
	secrets secrets.Store
	logger  logger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRegionalSearcher(apiCfg config.RegionalSearchConfig, cfg config.SearchConfig, store secrets.Store, log logger.Logger) *RegionalSearcher {
	return &RegionalSearcher{
		api:      httpclient.NewClient(time.Duration(apiCfg.TimeoutMs) * time.Millisecond),
		pages:    httpclient.NewClient(time.Duration(cfg.PageTimeoutMs) * time.Millisecond),
		apiCfg:   apiCfg,
		cfg:      cfg,
		secrets:  store,
		logger:   log,
		limiters: map[string]*rate.Limiter{},
	}
}

type serpItem struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type serpResponse struct {
	Results []serpItem `json:"results"`
}

// Search issues the regional queries, fetches the best-ranked pages and
// scrapes a listing per page. The returned query is the primary one, kept
// for the snapshot record.
func (s *RegionalSearcher) Search(ctx context.Context, req *Request) ([]models.Listing, string) {
	queries := buildRegionalQueries(req, s.cfg.MaxQueries)
	if len(queries) == 0 {
		return nil, ""
	}

	apiKey := s.apiKey(ctx, req.TenantID)
	if apiKey == "" {
		// Paid branch downgrades to nothing rather than failing the job.
		s.logger.Warn("regional search key unavailable, skipping stage", map[string]interface{}{
			"tenantId": req.TenantID,
		})
		return nil, queries[0]
	}

	items := s.runQueries(ctx, queries, apiKey)
	items = rankSerpItems(items, s.cfg.MaxPages)
	listings := s.fetchAndScrape(ctx, items)

	listings = dedupeByURL(listings)
	sort.SliceStable(listings, func(i, j int) bool {
		ti, tj := trustFor(listings[i].Domain), trustFor(listings[j].Domain)
		if ti != tj {
			return ti > tj
		}
		return titlePriority(listings[i].Title) > titlePriority(listings[j].Title)
	})
	return listings, queries[0]
}

func (s *RegionalSearcher) apiKey(ctx context.Context, tenantID string) string {
	if s.apiCfg.APIKey != "" {
		return s.apiCfg.APIKey
	}
	key, err := s.secrets.GetSecret(ctx, tenantID, "regional_search_api_key")
	if err != nil {
		return ""
	}
	return key
}

func (s *RegionalSearcher) runQueries(ctx context.Context, queries []string, apiKey string) []serpItem {
	var (
		mu  sync.Mutex
		out []serpItem
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queries {
		query := q
		g.Go(func() error {
			var resp serpResponse
			status, err := s.api.PostJSON(gctx, s.apiCfg.BaseURL+"/search", map[string]string{
				"Authorization": "Api-Key " + apiKey,
			}, map[string]string{
				"query":    query,
				"folderId": s.apiCfg.FolderID,
			}, &resp)
			if err != nil || status != http.StatusOK {
				s.logger.Warn("regional query failed", map[string]interface{}{
					"query":  query,
					"status": status,
				})
				return nil // tolerate partial failure
			}
			mu.Lock()
			out = append(out, resp.Results...)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return out
}

// rankSerpItems deduplicates result URLs and orders them by domain trust,
// keeping at most limit entries.
func rankSerpItems(items []serpItem, limit int) []serpItem {
	seen := map[string]struct{}{}
	unique := items[:0:0]
	for _, it := range items {
		if it.URL == "" {
			continue
		}
		if _, ok := seen[it.URL]; ok {
			continue
		}
		seen[it.URL] = struct{}{}
		unique = append(unique, it)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return trustFor(hostOf(unique[i].URL)) > trustFor(hostOf(unique[j].URL))
	})
	if len(unique) > limit {
		unique = unique[:limit]
	}
	return unique
}

func (s *RegionalSearcher) fetchAndScrape(ctx context.Context, items []serpItem) []models.Listing {
	var (
		mu  sync.Mutex
		out []models.Listing
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)
	for _, it := range items {
		item := it
		g.Go(func() error {
			host := hostOf(item.URL)
			if err := s.limiterFor(host).Wait(gctx); err != nil {
				return nil
			}
			status, body, err := s.pages.GetBody(gctx, item.URL, nil)
			if err != nil || status != http.StatusOK {
				return nil
			}
			if listing := scrapePage(item.URL, host, body); listing != nil {
				mu.Lock()
				out = append(out, *listing)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return out
}

// limiterFor returns the politeness limiter for a host, creating it on
// first use.
func (s *RegionalSearcher) limiterFor(host string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.cfg.HostRatePerSec), 1)
		s.limiters[host] = lim
	}
	return lim
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// buildRegionalQueries phrases up to max marketplace queries around the
// strongest available identifier.
func buildRegionalQueries(req *Request, max int) []string {
	var queries []string
	switch {
	case req.OEM != "":
		queries = []string{
			formatQuery("купить контрактная кпп %s с разборки", req.OEM),
			formatQuery("%s коробка передач цена", req.OEM),
			formatQuery("%s %s бу", req.Descriptor(), "кпп"),
		}
	case req.Fallback != nil:
		label := gearboxLabel(req.Fallback.GearboxType)
		queries = []string{
			formatQuery("купить контрактная %s %s %s с разборки", label, req.Fallback.Make, req.Fallback.Model),
			formatQuery("%s %s %s цена бу", req.Fallback.Make, req.Fallback.Model, label),
			formatQuery("%s %s %s", req.Fallback.Make, req.Fallback.Model, req.Fallback.GearboxModel),
		}
	default:
		return nil
	}
	if len(queries) > max {
		queries = queries[:max]
	}
	return queries
}

func gearboxLabel(gearboxType string) string {
	switch gearboxType {
	case "MT":
		return "мкпп"
	case "CVT":
		return "вариатор"
	default:
		return "акпп"
	}
}
