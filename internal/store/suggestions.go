// internal/store/suggestions.go
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gearbox-workers/internal/common/database"
	pipelineerrors "gearbox-workers/internal/common/errors"
	"gearbox-workers/internal/models"
)

// SuggestionStore persists reply suggestions and answers the duplicate
// suppression query.
type SuggestionStore struct {
	db *database.PostgresClient
}

func NewSuggestionStore(db *database.PostgresClient) *SuggestionStore {
	return &SuggestionStore{db: db}
}

// Create inserts a suggestion, filling in its ID and timestamp.
func (s *SuggestionStore) Create(ctx context.Context, sg *models.AiSuggestion) error {
	if sg.ID == "" {
		sg.ID = uuid.NewString()
	}
	if sg.CreatedAt.IsZero() {
		sg.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO ai_suggestions
			(id, tenant_id, conversation_id, text, confidence, source_kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sg.ID, sg.TenantID, sg.ConversationID, sg.Text, sg.Confidence,
		sg.SourceKind, sg.CreatedAt,
	)
	if err != nil {
		return pipelineerrors.NewDatabaseError("insert suggestion", err)
	}
	return nil
}

// RecentTexts returns the texts of the latest suggestions for a
// conversation created at or after the cutoff, newest first, capped at
// limit. Used to suppress exact duplicates.
func (s *SuggestionStore) RecentTexts(ctx context.Context, conversationID string, cutoff time.Time, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT text
		FROM ai_suggestions
		WHERE conversation_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3`, conversationID, cutoff, limit)
	if err != nil {
		return nil, pipelineerrors.NewDatabaseError("select recent suggestions", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, pipelineerrors.NewDatabaseError("scan suggestion", err)
		}
		texts = append(texts, text)
	}
	if err := rows.Err(); err != nil {
		return nil, pipelineerrors.NewDatabaseError("iterate suggestions", err)
	}

	return texts, nil
}
