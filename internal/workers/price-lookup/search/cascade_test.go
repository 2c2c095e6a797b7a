// internal/workers/price-lookup/search/cascade_test.go
package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gearbox-workers/internal/common/config"
	"gearbox-workers/internal/common/flags"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/common/secrets"
	"gearbox-workers/internal/models"
)

// ==========================
// Cascade Fakes
// ==========================

type fakeRegional struct {
	listings []models.Listing
}

func (f *fakeRegional) Search(context.Context, *Request) ([]models.Listing, string) {
	return f.listings, "regional query"
}

type fakeAI struct {
	primarySurvivors  []models.Listing
	primaryRaw        int
	fallbackSurvivors []models.Listing
	fallbackRaw       int
	queries           []string
}

func (f *fakeAI) PrimaryQuery(*Request) string  { return "primary" }
func (f *fakeAI) FallbackQuery(*Request) string { return "fallback" }

func (f *fakeAI) Search(_ context.Context, query string) ([]models.Listing, int) {
	f.queries = append(f.queries, query)
	if query == "primary" {
		return f.primarySurvivors, f.primaryRaw
	}
	return f.fallbackSurvivors, f.fallbackRaw
}

type fakeIntl struct {
	listings []models.Listing
	calls    int
}

func (f *fakeIntl) Search(context.Context, *Request) ([]models.Listing, string) {
	f.calls++
	return f.listings, "international query"
}

type fakeEstimator struct {
	result *Result
	calls  int
}

func (f *fakeEstimator) Estimate(context.Context, *Request) *Result {
	f.calls++
	return f.result
}

func searchTestConfig() config.SearchConfig {
	return config.SearchConfig{
		MaxQueries:       3,
		MaxPages:         8,
		FetchConcurrency: 4,
		PageTimeoutMs:    2000,
		MinListings:      3,
		MinDomains:       2,
		MinAISurvivors:   2,
		HostRatePerSec:   100,
	}
}

func newTestEngine(reg regionalStage, ai aiStage, intl internationalStage, est estimateStage, aiEnabled bool) *Engine {
	return &Engine{
		regional:  reg,
		ai:        ai,
		intl:      intl,
		estimator: est,
		flags: &flags.StaticProvider{Enabled: map[string]bool{
			flags.FlagAIWebSearch:         aiEnabled,
			flags.FlagInternationalSearch: true,
			flags.FlagAIEstimate:          true,
		}},
		cfg:       searchTestConfig(),
		logger:    logger.NewNoOpLogger(),
	}
}

func oemRequest() *Request {
	return &Request{TenantID: "tenant-1", OEM: "2500A230", ModelHint: "W5MBB"}
}

// ==========================
// Cascade Tests
// ==========================

func TestCascade_RegionalSufficiencyStopsAtStageOne(t *testing.T) {
	reg := &fakeRegional{listings: []models.Listing{
		{Title: "АКПП в сборе", Price: 45000, URL: "https://drom.ru/1", Domain: "drom.ru"},
		{Title: "КПП контрактная", Price: 50000, URL: "https://drom.ru/2", Domain: "drom.ru"},
		{Title: "АКПП с разборки", Price: 52000, URL: "https://farpost.ru/3", Domain: "farpost.ru"},
	}}
	ai := &fakeAI{}
	est := &fakeEstimator{}

	e := newTestEngine(reg, ai, &fakeIntl{}, est, true)
	res := e.Run(context.Background(), oemRequest())

	assert.Equal(t, models.SourceYandex, res.Source)
	assert.Equal(t, 3, res.ListingsCount)
	assert.Equal(t, 45000.0, res.MinPrice)
	assert.Equal(t, 52000.0, res.MaxPrice)
	assert.Empty(t, ai.queries, "sufficient stage 1 must not reach the AI stage")
	assert.Zero(t, est.calls)
}

func TestCascade_PureDromListingsTaggedAsDromSource(t *testing.T) {
	reg := &fakeRegional{listings: []models.Listing{
		{Title: "АКПП в сборе", Price: 45000, URL: "https://drom.ru/1", Domain: "drom.ru"},
		{Title: "КПП контрактная", Price: 50000, URL: "https://drom.ru/2", Domain: "www.drom.ru"},
		{Title: "АКПП с разборки", Price: 52000, URL: "https://drom.ru/3", Domain: "drom.ru"},
	}}

	e := newTestEngine(reg, &fakeAI{}, &fakeIntl{}, &fakeEstimator{}, true)
	res := e.Run(context.Background(), oemRequest())

	assert.Equal(t, models.SourceDrom, res.Source)
	assert.Equal(t, 3, res.ListingsCount)
}

func TestCascade_FlagDisabledTerminatesAsNotFound(t *testing.T) {
	reg := &fakeRegional{listings: []models.Listing{
		{Title: "АКПП", Price: 45000, Domain: "drom.ru"},
	}}
	ai := &fakeAI{}

	e := newTestEngine(reg, ai, &fakeIntl{}, &fakeEstimator{}, false)
	res := e.Run(context.Background(), oemRequest())

	assert.Equal(t, models.SourceNotFound, res.Source)
	assert.Zero(t, res.ListingsCount)
	assert.Empty(t, ai.queries)
}

func TestCascade_ZeroRawPrimaryTriggersInternational(t *testing.T) {
	ai := &fakeAI{primaryRaw: 0}
	intl := &fakeIntl{listings: []models.Listing{
		{Title: "JDM transmission", Price: 61000, Currency: "RUB"},
		{Title: "used gearbox", Price: 58000, Currency: "RUB"},
	}}
	est := &fakeEstimator{}

	e := newTestEngine(&fakeRegional{}, ai, intl, est, true)
	res := e.Run(context.Background(), oemRequest())

	assert.Equal(t, models.SourceWeb, res.Source)
	assert.Equal(t, 2, res.ListingsCount)
	assert.Equal(t, 1, intl.calls)
	assert.Zero(t, est.calls)
	assert.Equal(t, []string{"primary"}, ai.queries, "fallback query must not run after zero raw results")
}

func TestCascade_FallbackQueryRescuesThinPrimary(t *testing.T) {
	ai := &fakeAI{
		primaryRaw:       3,
		primarySurvivors: []models.Listing{{Title: "АКПП с разборки", Price: 47000}},
		fallbackRaw:      2,
		fallbackSurvivors: []models.Listing{
			{Title: "АКПП с разборки", Price: 47000},
			{Title: "КПП контрактная", Price: 51000},
		},
	}
	intl := &fakeIntl{}

	e := newTestEngine(&fakeRegional{}, ai, intl, &fakeEstimator{}, true)
	res := e.Run(context.Background(), oemRequest())

	assert.Equal(t, models.SourceOpenAISearch, res.Source)
	assert.Equal(t, 2, res.ListingsCount)
	assert.Equal(t, []string{"primary", "fallback"}, ai.queries)
	assert.Zero(t, intl.calls, "international runs only on zero raw primary results")
}

func TestCascade_AllRealSourcesFailYieldsEstimateOnce(t *testing.T) {
	est := &fakeEstimator{result: &Result{
		Source:   models.SourceAIEstimate,
		MinPrice: 40000,
		MaxPrice: 60000,
		AvgPrice: 50000,
		Currency: "RUB",
	}}
	ai := &fakeAI{primaryRaw: 2, fallbackRaw: 1}

	e := newTestEngine(&fakeRegional{}, ai, &fakeIntl{}, est, true)
	res := e.Run(context.Background(), oemRequest())

	assert.Equal(t, models.SourceAIEstimate, res.Source)
	assert.Equal(t, 1, est.calls)
	assert.Equal(t, 50000.0, res.AvgPrice)
}

func TestCascade_FailedEstimateYieldsNotFound(t *testing.T) {
	e := newTestEngine(&fakeRegional{}, &fakeAI{}, &fakeIntl{}, &fakeEstimator{}, true)
	res := e.Run(context.Background(), oemRequest())

	assert.Equal(t, models.SourceNotFound, res.Source)
}

// ==========================
// Regional Searcher Tests
// ==========================

func TestRegionalSearcher_FetchesAndScrapesRankedResults(t *testing.T) {
	pageA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>АКПП в сборе Toyota</title></head><body>47 000 ₽ пробег 90 тыс. км</body></html>`))
	}))
	defer pageA.Close()
	pageB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Масло для АКПП</title></head><body>1 500 ₽</body></html>`))
	}))
	defer pageB.Close()

	serp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Api-Key test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(serpResponse{Results: []serpItem{
			{URL: pageA.URL + "/item/1", Title: "АКПП в сборе"},
			{URL: pageB.URL + "/item/2", Title: "Масло"},
			{URL: pageA.URL + "/item/1", Title: "дубль"},
		}})
	}))
	defer serp.Close()

	s := NewRegionalSearcher(config.RegionalSearchConfig{
		BaseURL:   serp.URL,
		APIKey:    "test-key",
		TimeoutMs: 2000,
	}, searchTestConfig(), secrets.NewEnvStore(), logger.NewNoOpLogger())

	listings, query := s.Search(context.Background(), oemRequest())

	require.Len(t, listings, 1, "accessory page and duplicate URL must be dropped")
	assert.Equal(t, 47000.0, listings[0].Price)
	assert.Equal(t, 90000, listings[0].Mileage)
	assert.Contains(t, query, "2500A230")
}

func TestRegionalSearcher_MissingKeySkipsStage(t *testing.T) {
	s := NewRegionalSearcher(config.RegionalSearchConfig{
		BaseURL:   "http://127.0.0.1:1",
		TimeoutMs: 100,
	}, searchTestConfig(), &secrets.StaticStore{}, logger.NewNoOpLogger())

	listings, query := s.Search(context.Background(), oemRequest())

	assert.Empty(t, listings)
	assert.NotEmpty(t, query, "query is still recorded for the snapshot")
}
