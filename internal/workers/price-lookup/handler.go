// internal/workers/price-lookup/handler.go
package pricelookup

import (
	"context"
	"encoding/json"
	"time"

	"gearbox-workers/internal/common/audit"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/common/metrics"
	"gearbox-workers/internal/common/queue"
	"gearbox-workers/internal/models"
	"gearbox-workers/internal/store"
	"gearbox-workers/internal/suggest"
	"gearbox-workers/internal/workers/price-lookup/search"
)

// snapshotStore is the cache surface the handler needs.
type snapshotStore interface {
	GetFresh(ctx context.Context, tenantID, searchKey string, now time.Time) (*models.PriceSnapshot, error)
	Put(ctx context.Context, snap *models.PriceSnapshot) error
}

type cascadeRunner interface {
	Run(ctx context.Context, req *search.Request) *search.Result
}

type transmissionIdentifier interface {
	Identify(ctx context.Context, oem string, vehicle *models.VehicleContext) models.TransmissionIdentification
}

// Handler processes price-lookup jobs: reuse a fresh snapshot when one
// exists, otherwise run the cascade, persist the outcome and reply.
type Handler struct {
	snapshots snapshotStore
	engine    cascadeRunner
	identify  transmissionIdentifier
	builder   *suggest.Builder
	generator *suggest.Generator
	recorder  audit.Recorder
	logger    logger.Logger
	now       func() time.Time
}

func NewHandler(
	snapshots *store.SnapshotStore,
	engine *search.Engine,
	identifier *Identifier,
	builder *suggest.Builder,
	generator *suggest.Generator,
	recorder audit.Recorder,
	log logger.Logger,
) *Handler {
	return &Handler{
		snapshots: snapshots,
		engine:    engine,
		identify:  identifier,
		builder:   builder,
		generator: generator,
		recorder:  recorder,
		logger: log.With(map[string]interface{}{
			"queue": models.QueuePriceLookup,
		}),
		now: time.Now,
	}
}

func (h *Handler) Handle(ctx context.Context, job *queue.Job) error {
	var input models.PriceLookupJob
	if err := job.Bind(&input); err != nil {
		h.logger.Error("unbindable job payload", map[string]interface{}{
			"jobId": job.ID,
			"error": err.Error(),
		})
		return nil
	}

	req := &search.Request{
		TenantID:    input.TenantID,
		OEM:         input.OEM,
		ModelHint:   input.OemModelHint,
		Vehicle:     input.VehicleContext,
		Fallback:    input.SearchFallback,
		IsModelOnly: input.IsModelOnly,
	}

	log := h.logger.With(map[string]interface{}{
		"caseId":    input.CaseID,
		"searchKey": req.SearchKey(),
	})

	snap, err := h.snapshots.GetFresh(ctx, input.TenantID, req.SearchKey(), h.now())
	if err != nil {
		return err
	}
	if snap != nil {
		metrics.SnapshotCacheHits.WithLabelValues("hit").Inc()
		log.Info("snapshot cache hit", map[string]interface{}{
			"source":    string(snap.Source),
			"expiresAt": snap.ExpiresAt,
		})
		return h.reply(ctx, &input, snap)
	}
	metrics.SnapshotCacheHits.WithLabelValues("miss").Inc()

	ident := h.identification(ctx, &input, log)
	req.Identification = &ident

	result := h.engine.Run(ctx, req)

	snap = h.buildSnapshot(&input, req, result, ident)
	if err := h.snapshots.Put(ctx, snap); err != nil {
		return err
	}

	h.recorder.Record(ctx, audit.Event{
		Type:           audit.EventSnapshotWritten,
		TenantID:       input.TenantID,
		CaseID:         input.CaseID,
		ConversationID: input.ConversationID,
		Detail: map[string]interface{}{
			"searchKey": snap.SearchKey,
			"source":    string(snap.Source),
			"listings":  snap.ListingsCount,
		},
	})
	h.recorder.Record(ctx, audit.Event{
		Type:           audit.EventPriceSearchCompleted,
		TenantID:       input.TenantID,
		CaseID:         input.CaseID,
		ConversationID: input.ConversationID,
		Detail: map[string]interface{}{
			"source":   string(snap.Source),
			"avgPrice": snap.AvgPrice,
		},
	})

	return h.reply(ctx, &input, snap)
}

// identification is skipped when the upstream already validated a market
// model name: the call is an optimization and must never block the search.
func (h *Handler) identification(ctx context.Context, input *models.PriceLookupJob, log logger.Logger) models.TransmissionIdentification {
	if input.OemModelHint != "" {
		ident := models.UnknownIdentification()
		ident.ModelName = input.OemModelHint
		return ident
	}
	if input.OEM == "" {
		return models.UnknownIdentification()
	}
	log.Info("identifying transmission model", map[string]interface{}{"oem": input.OEM})
	return h.identify.Identify(ctx, input.OEM, input.VehicleContext)
}

// buildSnapshot scopes OEM-keyed snapshots globally (transmission prices
// are not tenant-specific) and fallback-keyed ones per tenant, where the
// key is too coarse to share.
func (h *Handler) buildSnapshot(input *models.PriceLookupJob, req *search.Request, result *search.Result, ident models.TransmissionIdentification) *models.PriceSnapshot {
	scopeTenant := ""
	if input.OEM == "" {
		scopeTenant = input.TenantID
	}

	snap := &models.PriceSnapshot{
		TenantID:      scopeTenant,
		SearchKey:     req.SearchKey(),
		Source:        result.Source,
		MinPrice:      result.MinPrice,
		MaxPrice:      result.MaxPrice,
		AvgPrice:      result.AvgPrice,
		Currency:      result.Currency,
		ModelName:     ident.ModelName,
		Manufacturer:  ident.Manufacturer,
		Origin:        string(ident.Origin),
		MileageMin:    result.MileageMin,
		MileageMax:    result.MileageMax,
		ListingsCount: result.ListingsCount,
		SearchQuery:   result.SearchQuery,
		Raw: map[string]interface{}{
			"listings":       result.Listings,
			"identification": ident,
			"filteredOut":    result.FilteredOut,
		},
	}
	return snap
}

func (h *Handler) reply(ctx context.Context, input *models.PriceLookupJob, snap *models.PriceSnapshot) error {
	text := h.builder.BuildPriceReply(input.TenantID, snap, listingsFromRaw(snap))
	_, err := h.generator.Create(ctx, input.TenantID, input.ConversationID, input.CaseID,
		text, input.Confidence, "price")
	return err
}

// listingsFromRaw recovers the listing set from a snapshot's raw payload
// for mileage-tier computation. A missing or malformed payload just means
// a single-point reply.
func listingsFromRaw(snap *models.PriceSnapshot) []models.Listing {
	rawListings, ok := snap.Raw["listings"]
	if !ok {
		return nil
	}
	buf, err := json.Marshal(rawListings)
	if err != nil {
		return nil
	}
	var listings []models.Listing
	if err := json.Unmarshal(buf, &listings); err != nil {
		return nil
	}
	return listings
}
