// internal/pipeline/scheduler.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gearbox-workers/internal/common/audit"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/common/queue"
	"gearbox-workers/internal/models"
	"gearbox-workers/internal/store"
)

type caseCreator interface {
	Create(ctx context.Context, c *models.VehicleLookupCase) error
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, jobID string, payload interface{}) error
}

// Scheduler is the pipeline's only entry point: it records a case and
// enqueues the vehicle-lookup job. There is no HTTP surface; callers are
// the conversation layer and operational tooling.
type Scheduler struct {
	cases    caseCreator
	vehicleQ jobEnqueuer
	recorder audit.Recorder
	logger   logger.Logger
}

func NewScheduler(cases *store.CaseStore, vehicleQ *queue.Queue, recorder audit.Recorder, log logger.Logger) *Scheduler {
	return &Scheduler{
		cases:    cases,
		vehicleQ: vehicleQ,
		recorder: recorder,
		logger:   log,
	}
}

var identifierCharsRe = regexp.MustCompile(`^[A-Z0-9-]+$`)

// NormalizeIdentifier uppercases an identifier and strips interior spaces.
// Frame numbers keep their dash; nothing else survives.
func NormalizeIdentifier(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}

// ValidateIdentifier rejects values that cannot possibly be a VIN or a
// frame number before anything is persisted.
func ValidateIdentifier(idType models.IdentifierType, normalized string) error {
	if len(normalized) < 5 || len(normalized) > 20 {
		return fmt.Errorf("identifier length %d out of range", len(normalized))
	}
	if !identifierCharsRe.MatchString(normalized) {
		return errors.New("identifier contains invalid characters")
	}
	if idType == models.IDTypeVIN && strings.Contains(normalized, "-") {
		return errors.New("VIN must not contain a dash")
	}
	return nil
}

// Schedule creates the case and enqueues its lookup job. Re-scheduling a
// case already in flight is a no-op at the queue layer thanks to the
// deterministic job ID.
func (s *Scheduler) Schedule(ctx context.Context, tenantID, conversationID, messageID string, idType models.IdentifierType, rawValue string) (*models.VehicleLookupCase, error) {
	normalized := NormalizeIdentifier(rawValue)
	if err := ValidateIdentifier(idType, normalized); err != nil {
		return nil, err
	}

	c := &models.VehicleLookupCase{
		TenantID:        tenantID,
		ConversationID:  conversationID,
		MessageID:       messageID,
		IDType:          idType,
		RawValue:        rawValue,
		NormalizedValue: normalized,
	}
	if err := s.cases.Create(ctx, c); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Event{
		Type:           audit.EventCaseScheduled,
		TenantID:       tenantID,
		CaseID:         c.ID,
		ConversationID: conversationID,
		Detail: map[string]interface{}{
			"idType": string(idType),
			"value":  normalized,
		},
	})

	job := models.VehicleLookupJob{
		CaseID:          c.ID,
		TenantID:        tenantID,
		ConversationID:  conversationID,
		IDType:          idType,
		NormalizedValue: normalized,
	}
	if err := s.vehicleQ.Enqueue(ctx, job.JobID(), job); err != nil {
		if errors.Is(err, queue.ErrDuplicateJob) {
			s.logger.Info("case already queued", map[string]interface{}{"caseId": c.ID})
			return c, nil
		}
		return nil, err
	}

	s.logger.Info("case scheduled", map[string]interface{}{
		"caseId": c.ID,
		"idType": string(idType),
	})
	return c, nil
}
