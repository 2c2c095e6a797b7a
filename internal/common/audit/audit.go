// internal/common/audit/audit.go
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gearbox-workers/internal/common/database"
)

// EventType enumerates the auditable pipeline events. The set is closed;
// sinks may rely on it for index mappings.
type EventType string

const (
	EventCaseScheduled        EventType = "case_scheduled"
	EventLookupCompleted      EventType = "lookup_completed"
	EventLookupFailed         EventType = "lookup_failed"
	EventPriceSearchCompleted EventType = "price_search_completed"
	EventSnapshotWritten      EventType = "snapshot_written"
	EventSuggestionCreated    EventType = "suggestion_created"
	EventSuggestionSkipped    EventType = "suggestion_skipped_duplicate"
	EventJobRetryExhausted    EventType = "job_retry_exhausted"
)

// Event is one audit record. Detail carries event-specific fields.
type Event struct {
	Type           EventType              `json:"type"`
	TenantID       string                 `json:"tenantId"`
	CaseID         string                 `json:"caseId,omitempty"`
	ConversationID string                 `json:"conversationId,omitempty"`
	Detail         map[string]interface{} `json:"detail,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// Recorder persists audit events. Recording must never block or fail the
// pipeline, so implementations swallow their own errors.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// ElasticsearchRecorder indexes audit events into a single index.
type ElasticsearchRecorder struct {
	es     *database.ElasticsearchClient
	index  string
	logger *zap.Logger
}

func NewElasticsearchRecorder(es *database.ElasticsearchClient, index string, logger *zap.Logger) *ElasticsearchRecorder {
	return &ElasticsearchRecorder{es: es, index: index, logger: logger}
}

func (r *ElasticsearchRecorder) Record(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := r.es.IndexDocument(ctx, r.index, event); err != nil {
		r.logger.Warn("failed to record audit event",
			zap.String("eventType", string(event.Type)),
			zap.String("caseId", event.CaseID),
			zap.Error(err))
	}
}

// NoopRecorder discards events. Used when audit is disabled.
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, Event) {}

// MemoryRecorder collects events in memory, for tests.
type MemoryRecorder struct {
	Events []Event
}

func (r *MemoryRecorder) Record(_ context.Context, event Event) {
	r.Events = append(r.Events, event)
}

// Has reports whether an event of the given type was recorded.
func (r *MemoryRecorder) Has(t EventType) bool {
	for _, e := range r.Events {
		if e.Type == t {
			return true
		}
	}
	return false
}
