// internal/models/suggestion.go
package models

import "time"

// AiSuggestion is the customer-facing reply artifact. The pipeline only
// creates suggestions; the delivery layer owns them afterwards.
type AiSuggestion struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenantId"`
	ConversationID string    `json:"conversationId"`
	Text           string    `json:"text"`
	Confidence     float64   `json:"confidence"`
	SourceKind     string    `json:"sourceKind,omitempty"` // lookup | price
	CreatedAt      time.Time `json:"createdAt"`
}
