// internal/workers/vehicle-lookup/handler.go
package vehiclelookup

import (
	"context"
	"errors"

	"gearbox-workers/internal/common/audit"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/common/metrics"
	"gearbox-workers/internal/common/queue"
	"gearbox-workers/internal/models"
	"gearbox-workers/internal/store"
	"gearbox-workers/internal/suggest"

	pipelineerrors "gearbox-workers/internal/common/errors"
)

// caseWriter is the case persistence surface the handler needs.
type caseWriter interface {
	MarkRunning(ctx context.Context, id string) (bool, error)
	MarkCompleted(ctx context.Context, id, verificationStatus string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
}

// lookupCache is the read-through identifier cache.
type lookupCache interface {
	Get(ctx context.Context, idType models.IdentifierType, lookupKey string) (*models.VehicleLookupCache, error)
	Put(ctx context.Context, entry *models.VehicleLookupCache) error
}

type priceEnqueuer interface {
	Enqueue(ctx context.Context, jobID string, payload interface{}) error
}

// Handler processes vehicle-lookup jobs: resolve the identifier, cache the
// outcome, reply to the customer, and hand off to the price pipeline.
type Handler struct {
	cfg        *Config
	cases      caseWriter
	cache      lookupCache
	resolver   *Resolver
	builder    *suggest.Builder
	generator  *suggest.Generator
	priceQueue priceEnqueuer
	recorder   audit.Recorder
	logger     logger.Logger
}

func NewHandler(
	cfg *Config,
	cases *store.CaseStore,
	cache *store.LookupCacheStore,
	resolver *Resolver,
	builder *suggest.Builder,
	generator *suggest.Generator,
	priceQueue *queue.Queue,
	recorder audit.Recorder,
	log logger.Logger,
) *Handler {
	return &Handler{
		cfg:        cfg,
		cases:      cases,
		cache:      cache,
		resolver:   resolver,
		builder:    builder,
		generator:  generator,
		priceQueue: priceQueue,
		recorder:   recorder,
		logger: log.With(map[string]interface{}{
			"queue": models.QueueVehicleLookup,
		}),
	}
}

func (h *Handler) Handle(ctx context.Context, job *queue.Job) error {
	var input models.VehicleLookupJob
	if err := job.Bind(&input); err != nil {
		// A payload that fails to bind can never succeed; drop it.
		h.logger.Error("unbindable job payload", map[string]interface{}{
			"jobId": job.ID,
			"error": err.Error(),
		})
		return nil
	}

	log := h.logger.With(map[string]interface{}{
		"caseId":         input.CaseID,
		"conversationId": input.ConversationID,
	})

	ok, err := h.cases.MarkRunning(ctx, input.CaseID)
	if err != nil {
		return err
	}
	if !ok {
		log.Info("case already terminal, skipping", nil)
		return nil
	}

	res, err := h.resolveWithCache(ctx, &input, log)
	if err != nil {
		code := pipelineerrors.CodeOf(err)
		if code == pipelineerrors.ErrCodeNotFound || code == pipelineerrors.ErrCodeParseFailed {
			return h.failTerminally(ctx, &input, code, log)
		}
		// Anything else is retryable at the queue layer.
		return err
	}

	entry := &models.VehicleLookupCache{
		LookupKey:        lookupKey(input.IDType, input.NormalizedValue),
		IDType:           input.IDType,
		Vehicle:          res.Vehicle,
		Gearbox:          res.Gearbox,
		Evidence:         res.Evidence,
		LookupConfidence: res.Confidence,
	}
	if err := h.cache.Put(ctx, entry); err != nil {
		return err
	}

	if err := h.cases.MarkCompleted(ctx, input.CaseID, string(res.Gearbox.OemStatus)); err != nil {
		return err
	}

	h.recorder.Record(ctx, audit.Event{
		Type:           audit.EventLookupCompleted,
		TenantID:       input.TenantID,
		CaseID:         input.CaseID,
		ConversationID: input.ConversationID,
		Detail: map[string]interface{}{
			"oemStatus":  string(res.Gearbox.OemStatus),
			"confidence": res.Confidence,
		},
	})

	text := h.builder.BuildLookupReply(res.Confidence, displayGearbox(res), res.Vehicle)
	if _, err := h.generator.Create(ctx, input.TenantID, input.ConversationID, input.CaseID,
		text, res.Confidence, "lookup"); err != nil {
		return err
	}

	return h.maybeEnqueuePriceLookup(ctx, &input, res, log)
}

// resolveWithCache consults the lookup cache first; vehicle facts are
// tenant-independent, so any earlier resolution of the same identifier is
// reusable as-is.
func (h *Handler) resolveWithCache(ctx context.Context, input *models.VehicleLookupJob, log logger.Logger) (*Resolution, error) {
	key := lookupKey(input.IDType, input.NormalizedValue)

	cached, err := h.cache.Get(ctx, input.IDType, key)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		metrics.LookupCacheHits.WithLabelValues("hit").Inc()
		log.Info("lookup cache hit", map[string]interface{}{"lookupKey": key})
		return &Resolution{
			Gearbox:          cached.Gearbox,
			Vehicle:          cached.Vehicle,
			Evidence:         cached.Evidence,
			ModelDisplayable: isDisplayableModelName(cached.Gearbox.Model),
			Confidence:       cached.LookupConfidence,
		}, nil
	}

	metrics.LookupCacheHits.WithLabelValues("miss").Inc()
	return h.resolver.Resolve(ctx, input.IDType, input.NormalizedValue)
}

// failTerminally marks the case FAILED and still replies to the customer
// with a nameplate photo request, never a bare error.
func (h *Handler) failTerminally(ctx context.Context, input *models.VehicleLookupJob, code pipelineerrors.ErrorCode, log logger.Logger) error {
	log.Warn("lookup failed terminally", map[string]interface{}{"code": string(code)})

	if err := h.cases.MarkFailed(ctx, input.CaseID, string(code)); err != nil {
		return err
	}

	h.recorder.Record(ctx, audit.Event{
		Type:           audit.EventLookupFailed,
		TenantID:       input.TenantID,
		CaseID:         input.CaseID,
		ConversationID: input.ConversationID,
		Detail:         map[string]interface{}{"code": string(code)},
	})

	text := h.builder.BuildLookupReply(0, models.GearboxInfo{}, nil)
	if _, err := h.generator.Create(ctx, input.TenantID, input.ConversationID, input.CaseID,
		text, 0, "lookup"); err != nil {
		return err
	}
	return nil
}

// maybeEnqueuePriceLookup hands off to the price pipeline when the
// resolution is confident enough to search on.
func (h *Handler) maybeEnqueuePriceLookup(ctx context.Context, input *models.VehicleLookupJob, res *Resolution, log logger.Logger) error {
	if res.Confidence < h.cfg.MinPriceLookupConfidence {
		log.Info("confidence below price lookup gate", map[string]interface{}{
			"confidence": res.Confidence,
		})
		return nil
	}

	priceJob := models.PriceLookupJob{
		CaseID:         input.CaseID,
		TenantID:       input.TenantID,
		ConversationID: input.ConversationID,
		VehicleContext: res.Vehicle,
		Confidence:     res.Confidence,
	}
	if res.ModelDisplayable {
		priceJob.OemModelHint = res.Gearbox.Model
	}

	if res.Gearbox.OEM != "" {
		priceJob.OEM = res.Gearbox.OEM
	} else {
		priceJob.IsModelOnly = true
		priceJob.SearchFallback = &models.SearchFallback{
			GearboxModel: priceJob.OemModelHint,
		}
		if res.Vehicle != nil {
			priceJob.SearchFallback.Make = res.Vehicle.Make
			priceJob.SearchFallback.Model = res.Vehicle.Model
			priceJob.SearchFallback.GearboxType = string(res.Vehicle.GearboxType)
		}
	}

	err := h.priceQueue.Enqueue(ctx, priceJob.JobID(), priceJob)
	if errors.Is(err, queue.ErrDuplicateJob) {
		log.Info("price lookup already queued", nil)
		return nil
	}
	return err
}

// displayGearbox strips a non-displayable model name before templating.
func displayGearbox(res *Resolution) models.GearboxInfo {
	g := res.Gearbox
	if !res.ModelDisplayable {
		g.Model = ""
	}
	return g
}

func lookupKey(idType models.IdentifierType, normalizedValue string) string {
	return string(idType) + ":" + normalizedValue
}
