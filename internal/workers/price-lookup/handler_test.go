// internal/workers/price-lookup/handler_test.go
package pricelookup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gearbox-workers/internal/common/audit"
	"gearbox-workers/internal/common/broadcast"
	"gearbox-workers/internal/common/config"
	"gearbox-workers/internal/common/database"
	"gearbox-workers/internal/common/flags"
	"gearbox-workers/internal/common/llm"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/common/queue"
	"gearbox-workers/internal/models"
	"gearbox-workers/internal/store"
	"gearbox-workers/internal/suggest"
	"gearbox-workers/internal/workers/price-lookup/search"
)

// ==========================
// Test Fakes
// ==========================

type fakeSnapshots struct {
	fresh *models.PriceSnapshot
	puts  []*models.PriceSnapshot
}

func (f *fakeSnapshots) GetFresh(context.Context, string, string, time.Time) (*models.PriceSnapshot, error) {
	return f.fresh, nil
}

func (f *fakeSnapshots) Put(_ context.Context, snap *models.PriceSnapshot) error {
	f.puts = append(f.puts, snap)
	return nil
}

type fakeEngine struct {
	result   *search.Result
	requests []*search.Request
}

func (f *fakeEngine) Run(_ context.Context, req *search.Request) *search.Result {
	f.requests = append(f.requests, req)
	return f.result
}

type fakeIdentifier struct {
	ident models.TransmissionIdentification
	calls int
}

func (f *fakeIdentifier) Identify(context.Context, string, *models.VehicleContext) models.TransmissionIdentification {
	f.calls++
	return f.ident
}

func suggestionCfg() config.SuggestionConfig {
	return config.SuggestionConfig{
		HighConfidence:     0.8,
		MediumConfidence:   0.5,
		BudgetMaxKm:        60000,
		MidMaxKm:           120000,
		DuplicateWindowSec: 120,
		DuplicateScanLimit: 5,
	}
}

func newTestGenerator(t *testing.T, expectedSuggestions int) *suggest.Generator {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for i := 0; i < expectedSuggestions; i++ {
		mock.ExpectQuery(`SELECT text`).
			WillReturnRows(sqlmock.NewRows([]string{"text"}))
		mock.ExpectExec(`INSERT INTO ai_suggestions`).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}

	return suggest.NewGenerator(
		store.NewSuggestionStore(&database.PostgresClient{DB: db}),
		&audit.MemoryRecorder{},
		broadcast.NoopBroadcaster{},
		&flags.StaticProvider{Enabled: map[string]bool{flags.FlagSuggestionDelivery: true}},
		suggestionCfg(),
		logger.NewNoOpLogger(),
	)
}

func newTestHandler(t *testing.T, snaps *fakeSnapshots, engine *fakeEngine, ident *fakeIdentifier, suggestions int) (*Handler, *audit.MemoryRecorder) {
	t.Helper()
	recorder := &audit.MemoryRecorder{}
	h := &Handler{
		snapshots: snaps,
		engine:    engine,
		identify:  ident,
		builder:   suggest.NewBuilder(suggestionCfg()),
		generator: newTestGenerator(t, suggestions),
		recorder:  recorder,
		logger:    logger.NewNoOpLogger(),
		now:       time.Now,
	}
	return h, recorder
}

func priceJob(t *testing.T, payload models.PriceLookupJob) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{ID: payload.JobID(), Queue: models.QueuePriceLookup, Payload: raw}
}

// ==========================
// Handler Tests
// ==========================

func TestHandler_ValidModelHintSkipsIdentification(t *testing.T) {
	engine := &fakeEngine{result: &search.Result{
		Source: models.SourceYandex,
		Listings: []models.Listing{
			{Title: "АКПП в сборе", Price: 45000, Domain: "drom.ru"},
			{Title: "КПП контрактная", Price: 50000, Domain: "drom.ru"},
			{Title: "АКПП с разборки", Price: 52000, Domain: "farpost.ru"},
		},
		ListingsCount: 3,
		MinPrice:      45000,
		MaxPrice:      52000,
		AvgPrice:      49000,
		Currency:      "RUB",
		SearchQuery:   "купить контрактная кпп 2500A230",
	}}
	ident := &fakeIdentifier{}
	snaps := &fakeSnapshots{}

	h, _ := newTestHandler(t, snaps, engine, ident, 1)
	job := priceJob(t, models.PriceLookupJob{
		CaseID: "case-1", TenantID: "t1", ConversationID: "c1",
		OEM: "2500A230", OemModelHint: "W5MBB", Confidence: 0.9,
	})

	require.NoError(t, h.Handle(context.Background(), job))

	assert.Zero(t, ident.calls, "validated hint must skip the LLM identifier")
	require.Len(t, snaps.puts, 1)
	snap := snaps.puts[0]
	assert.Equal(t, models.SourceYandex, snap.Source)
	assert.Equal(t, 3, snap.ListingsCount)
	assert.Equal(t, "W5MBB", snap.ModelName)
	assert.Empty(t, snap.TenantID, "OEM-keyed snapshots are shared globally")
}

func TestHandler_EstimateOutcomePersistedAsAIEstimate(t *testing.T) {
	engine := &fakeEngine{result: &search.Result{
		Source:      models.SourceAIEstimate,
		MinPrice:    40000,
		MaxPrice:    60000,
		AvgPrice:    50000,
		Currency:    "RUB",
		SearchQuery: "оцени стоимость",
	}}
	ident := &fakeIdentifier{ident: models.UnknownIdentification()}
	snaps := &fakeSnapshots{}

	h, recorder := newTestHandler(t, snaps, engine, ident, 1)
	job := priceJob(t, models.PriceLookupJob{
		CaseID: "case-2", TenantID: "t1", ConversationID: "c1",
		OEM: "2500A230", Confidence: 0.8,
	})

	require.NoError(t, h.Handle(context.Background(), job))

	assert.Equal(t, 1, ident.calls)
	require.Len(t, snaps.puts, 1)
	assert.Equal(t, models.SourceAIEstimate, snaps.puts[0].Source)
	assert.True(t, recorder.Has(audit.EventSnapshotWritten))
	assert.True(t, recorder.Has(audit.EventPriceSearchCompleted))
}

func TestHandler_FreshSnapshotSkipsSearch(t *testing.T) {
	engine := &fakeEngine{}
	ident := &fakeIdentifier{}
	snaps := &fakeSnapshots{fresh: &models.PriceSnapshot{
		SearchKey:     "2500A230",
		Source:        models.SourceYandex,
		MinPrice:      45000,
		MaxPrice:      52000,
		AvgPrice:      49000,
		Currency:      "RUB",
		ListingsCount: 3,
		ExpiresAt:     time.Now().Add(24 * time.Hour),
	}}

	h, _ := newTestHandler(t, snaps, engine, ident, 1)
	job := priceJob(t, models.PriceLookupJob{
		CaseID: "case-3", TenantID: "t1", ConversationID: "c1",
		OEM: "2500A230", Confidence: 0.9,
	})

	require.NoError(t, h.Handle(context.Background(), job))

	assert.Empty(t, engine.requests, "fresh snapshot must skip the cascade")
	assert.Zero(t, ident.calls)
	assert.Empty(t, snaps.puts)
}

func TestHandler_FallbackJobScopesSnapshotToTenant(t *testing.T) {
	engine := &fakeEngine{result: &search.Result{
		Source:      models.SourceNotFound,
		Currency:    "RUB",
		SearchQuery: "mitsubishi lancer мкпп",
	}}
	snaps := &fakeSnapshots{}

	h, _ := newTestHandler(t, snaps, engine, &fakeIdentifier{}, 1)
	job := priceJob(t, models.PriceLookupJob{
		CaseID: "case-4", TenantID: "t1", ConversationID: "c1",
		IsModelOnly: true,
		SearchFallback: &models.SearchFallback{
			Make: "Mitsubishi", Model: "Lancer", GearboxType: "MT", GearboxModel: "W5MBB",
		},
		Confidence: 0.5,
	})

	require.NoError(t, h.Handle(context.Background(), job))

	require.Len(t, snaps.puts, 1)
	assert.Equal(t, "t1", snaps.puts[0].TenantID, "fallback keys are too coarse to share across tenants")
	assert.Equal(t, "mitsubishi_lancer_mt", snaps.puts[0].SearchKey)

	require.Len(t, engine.requests, 1)
	assert.True(t, engine.requests[0].IsModelOnly)
}

// ==========================
// Identifier Tests
// ==========================

func newIdentifierAgainst(t *testing.T, handler http.HandlerFunc) (*Identifier, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := llm.NewClient(config.APIsConfig{LLM: config.LLMConfig{
		Model: "test-model", TimeoutMs: 2000,
	}}, logger.NewNoOpLogger())
	client.SetBaseURL(server.URL)
	return NewIdentifier(client, logger.NewNoOpLogger()), server
}

func llmAnswer(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		})
	}
}

func TestIdentifier_ParsesStrictJSON(t *testing.T) {
	ident, _ := newIdentifierAgainst(t, llmAnswer(
		`{"modelName":"W5MBB","manufacturer":"Mitsubishi","origin":"japan","confidence":"high","notes":"5MT"}`))

	got := ident.Identify(context.Background(), "2500A230", nil)

	assert.Equal(t, "W5MBB", got.ModelName)
	assert.Equal(t, models.OriginJapan, got.Origin)
	assert.Equal(t, models.IdentConfidenceHigh, got.Confidence)
}

func TestIdentifier_InvalidEnumYieldsUnknown(t *testing.T) {
	ident, _ := newIdentifierAgainst(t, llmAnswer(
		`{"modelName":"W5MBB","manufacturer":null,"origin":"mars","confidence":"high","notes":""}`))

	got := ident.Identify(context.Background(), "2500A230", nil)

	assert.Equal(t, models.UnknownIdentification(), got)
}

func TestIdentifier_MalformedAnswerYieldsUnknown(t *testing.T) {
	ident, _ := newIdentifierAgainst(t, llmAnswer("не могу определить модель"))

	got := ident.Identify(context.Background(), "2500A230", nil)

	assert.Equal(t, models.UnknownIdentification(), got)
	assert.Equal(t, models.IdentConfidenceLow, got.Confidence)
}
