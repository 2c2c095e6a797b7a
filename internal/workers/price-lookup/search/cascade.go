// internal/workers/price-lookup/search/cascade.go
package search

import (
	"context"
	"time"

	"gearbox-workers/internal/common/config"
	"gearbox-workers/internal/common/flags"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/common/metrics"
	"gearbox-workers/internal/models"
)

// Stage surfaces, narrowed so the cascade can be tested with fakes.
type regionalStage interface {
	Search(ctx context.Context, req *Request) ([]models.Listing, string)
}

type aiStage interface {
	PrimaryQuery(req *Request) string
	FallbackQuery(req *Request) string
	Search(ctx context.Context, query string) ([]models.Listing, int)
}

type internationalStage interface {
	Search(ctx context.Context, req *Request) ([]models.Listing, string)
}

type estimateStage interface {
	Estimate(ctx context.Context, req *Request) *Result
}

// Engine runs the price search cascade: regional marketplaces, AI web
// search, international fallback, AI point estimate. Each stage runs only
// when the previous one was insufficient.
type Engine struct {
	regional  regionalStage
	ai        aiStage
	intl      internationalStage
	estimator estimateStage
	flags     flags.Provider
	cfg       config.SearchConfig
	logger    logger.Logger
}

func NewEngine(
	regional *RegionalSearcher,
	ai *AISearcher,
	intl *InternationalSearcher,
	estimator *Estimator,
	flagProvider flags.Provider,
	cfg config.SearchConfig,
	log logger.Logger,
) *Engine {
	return &Engine{
		regional:  regional,
		ai:        ai,
		intl:      intl,
		estimator: estimator,
		flags:     flagProvider,
		cfg:       cfg,
		logger:    log,
	}
}

// Run never returns an error: source failures degrade the result, worst
// case to a not_found outcome that downstream caches for a day.
func (e *Engine) Run(ctx context.Context, req *Request) *Result {
	log := e.logger.With(map[string]interface{}{
		"tenantId":  req.TenantID,
		"searchKey": req.SearchKey(),
	})

	listings, primaryQuery := e.runStage("regional", func() ([]models.Listing, string) {
		return e.regional.Search(ctx, req)
	})
	filtered, removed := filterOutliersIQR(listings)
	if e.stage1Sufficient(filtered) {
		metrics.SearchStageResults.WithLabelValues("regional", "sufficient").Inc()
		log.Info("regional search sufficient", map[string]interface{}{
			"listings": len(filtered),
			"domains":  distinctDomains(filtered),
		})
		return newResult(regionalSource(filtered), filtered, primaryQuery, removed)
	}
	metrics.SearchStageResults.WithLabelValues("regional", "insufficient").Inc()

	if !e.flags.IsEnabled(req.TenantID, flags.FlagAIWebSearch) {
		log.Info("ai web search disabled for tenant", nil)
		return newResult(models.SourceNotFound, nil, primaryQuery, 0)
	}

	aiQuery := e.ai.PrimaryQuery(req)
	survivors, raw := e.runAIStage(ctx, "ai_primary", aiQuery)

	if raw == 0 {
		// Zero raw answers from the primary query means the domestic
		// market genuinely has nothing; try abroad before estimating.
		if e.flags.IsEnabled(req.TenantID, flags.FlagInternationalSearch) {
			intlListings, intlQuery := e.runStage("international", func() ([]models.Listing, string) {
				return e.intl.Search(ctx, req)
			})
			if len(intlListings) >= e.cfg.MinAISurvivors {
				metrics.SearchStageResults.WithLabelValues("international", "sufficient").Inc()
				return newResult(models.SourceWeb, intlListings, intlQuery, 0)
			}
			metrics.SearchStageResults.WithLabelValues("international", "insufficient").Inc()
		}
	} else if len(survivors) >= e.cfg.MinAISurvivors {
		metrics.SearchStageResults.WithLabelValues("ai_primary", "sufficient").Inc()
		return newResult(models.SourceOpenAISearch, survivors, aiQuery, raw-len(survivors))
	} else {
		fallbackQuery := e.ai.FallbackQuery(req)
		fbSurvivors, fbRaw := e.runAIStage(ctx, "ai_fallback", fallbackQuery)
		if len(fbSurvivors) >= e.cfg.MinAISurvivors {
			metrics.SearchStageResults.WithLabelValues("ai_fallback", "sufficient").Inc()
			return newResult(models.SourceOpenAISearch, fbSurvivors, fallbackQuery, fbRaw-len(fbSurvivors))
		}
		metrics.SearchStageResults.WithLabelValues("ai_fallback", "insufficient").Inc()
	}

	if e.flags.IsEnabled(req.TenantID, flags.FlagAIEstimate) {
		if est := e.runEstimate(ctx, req); est != nil {
			metrics.SearchStageResults.WithLabelValues("ai_estimate", "sufficient").Inc()
			log.Info("falling back to ai point estimate", map[string]interface{}{
				"priceMin": est.MinPrice,
				"priceMax": est.MaxPrice,
			})
			return est
		}
		metrics.SearchStageResults.WithLabelValues("ai_estimate", "insufficient").Inc()
	}

	return newResult(models.SourceNotFound, nil, aiQuery, 0)
}

// regionalSource labels a stage-one snapshot by where the listings actually
// came from: a pure drom.ru result set is tagged drom, anything mixed keeps
// the generic regional label.
func regionalSource(listings []models.Listing) models.SnapshotSource {
	for _, l := range listings {
		if baseDomain(l.Domain) != "drom.ru" {
			return models.SourceYandex
		}
	}
	return models.SourceDrom
}

// stage1Sufficient decides whether the scraped listings stand on their own:
// enough of them, or from enough distinct marketplaces.
func (e *Engine) stage1Sufficient(listings []models.Listing) bool {
	if len(listings) == 0 {
		return false
	}
	return len(listings) >= e.cfg.MinListings || distinctDomains(listings) >= e.cfg.MinDomains
}

func (e *Engine) runStage(stage string, fn func() ([]models.Listing, string)) ([]models.Listing, string) {
	start := time.Now()
	listings, query := fn()
	metrics.SearchStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return listings, query
}

func (e *Engine) runAIStage(ctx context.Context, stage, query string) ([]models.Listing, int) {
	start := time.Now()
	survivors, raw := e.ai.Search(ctx, query)
	metrics.SearchStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return survivors, raw
}

func (e *Engine) runEstimate(ctx context.Context, req *Request) *Result {
	start := time.Now()
	est := e.estimator.Estimate(ctx, req)
	metrics.SearchStageDuration.WithLabelValues("ai_estimate").Observe(time.Since(start).Seconds())
	return est
}
