// internal/suggest/generator.go
package suggest

import (
	"context"
	"time"

	"gearbox-workers/internal/common/audit"
	"gearbox-workers/internal/common/broadcast"
	"gearbox-workers/internal/common/config"
	"gearbox-workers/internal/common/flags"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/common/metrics"
	"gearbox-workers/internal/models"
	"gearbox-workers/internal/store"
)

// suggestionWriter is the persistence surface the generator needs.
// Satisfied by *store.SuggestionStore.
type suggestionWriter interface {
	Create(ctx context.Context, sg *models.AiSuggestion) error
	RecentTexts(ctx context.Context, conversationID string, cutoff time.Time, limit int) ([]string, error)
}

// Generator creates reply suggestions with duplicate suppression, records
// the audit trail, and notifies the broadcast layer.
type Generator struct {
	suggestions suggestionWriter
	recorder    audit.Recorder
	broadcaster broadcast.Broadcaster
	flags       flags.Provider
	cfg         config.SuggestionConfig
	logger      logger.Logger
}

func NewGenerator(
	suggestions *store.SuggestionStore,
	recorder audit.Recorder,
	broadcaster broadcast.Broadcaster,
	flagProvider flags.Provider,
	cfg config.SuggestionConfig,
	log logger.Logger,
) *Generator {
	return &Generator{
		suggestions: suggestions,
		recorder:    recorder,
		broadcaster: broadcaster,
		flags:       flagProvider,
		cfg:         cfg,
		logger:      log,
	}
}

// Create persists a suggestion unless the exact same text was already
// suggested in this conversation within the duplicate window. Returns the
// suggestion, or nil when suppressed.
func (g *Generator) Create(ctx context.Context, tenantID, conversationID, caseID, text string, confidence float64, sourceKind string) (*models.AiSuggestion, error) {
	cutoff := time.Now().Add(-time.Duration(g.cfg.DuplicateWindowSec) * time.Second)
	recent, err := g.suggestions.RecentTexts(ctx, conversationID, cutoff, g.cfg.DuplicateScanLimit)
	if err != nil {
		return nil, err
	}
	for _, prior := range recent {
		if prior == text {
			g.logger.Info("suggestion suppressed as duplicate", map[string]interface{}{
				"conversationId": conversationID,
				"caseId":         caseID,
			})
			metrics.SuggestionsSuppressed.Inc()
			g.recorder.Record(ctx, audit.Event{
				Type:           audit.EventSuggestionSkipped,
				TenantID:       tenantID,
				CaseID:         caseID,
				ConversationID: conversationID,
			})
			return nil, nil
		}
	}

	sg := &models.AiSuggestion{
		TenantID:       tenantID,
		ConversationID: conversationID,
		Text:           text,
		Confidence:     confidence,
		SourceKind:     sourceKind,
	}
	if err := g.suggestions.Create(ctx, sg); err != nil {
		return nil, err
	}

	metrics.SuggestionsCreated.WithLabelValues(sourceKind).Inc()
	g.recorder.Record(ctx, audit.Event{
		Type:           audit.EventSuggestionCreated,
		TenantID:       tenantID,
		CaseID:         caseID,
		ConversationID: conversationID,
		Detail: map[string]interface{}{
			"suggestionId": sg.ID,
			"confidence":   confidence,
		},
	})

	if !g.flags.IsEnabled(tenantID, flags.FlagSuggestionDelivery) {
		return sg, nil
	}

	// Broadcast failure must not undo an already persisted suggestion.
	if err := g.broadcaster.PublishSuggestion(ctx, broadcast.SuggestionEvent{
		SuggestionID:   sg.ID,
		TenantID:       tenantID,
		ConversationID: conversationID,
		Text:           text,
		Confidence:     confidence,
		CreatedAt:      sg.CreatedAt,
	}); err != nil {
		g.logger.Warn("failed to broadcast suggestion", map[string]interface{}{
			"suggestionId": sg.ID,
			"error":        err.Error(),
		})
	}

	return sg, nil
}
