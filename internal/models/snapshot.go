// internal/models/snapshot.go
package models

import "time"

// SnapshotSource identifies which cascade stage produced a snapshot.
type SnapshotSource string

const (
	SourceYandex       SnapshotSource = "yandex"
	SourceDrom         SnapshotSource = "drom"
	SourceOpenAISearch SnapshotSource = "openai_web_search"
	SourceAIEstimate   SnapshotSource = "ai_estimate"
	SourceWeb          SnapshotSource = "web"
	SourceNotFound     SnapshotSource = "not_found"
	SourceMock         SnapshotSource = "mock" // seeded fixture data, dev environments only
)

// SnapshotTTL returns how long a snapshot from the given source stays
// reusable. Real listings keep for a week; a not-found outcome is retried
// daily; AI estimates and seeded fixtures go stale quickly.
func SnapshotTTL(source SnapshotSource) time.Duration {
	switch source {
	case SourceNotFound:
		return 24 * time.Hour
	case SourceAIEstimate, SourceMock:
		return 2 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Listing is one scraped or search-returned market offer.
type Listing struct {
	Title    string  `json:"title,omitempty"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency,omitempty"`
	URL      string  `json:"url,omitempty"`
	Domain   string  `json:"domain,omitempty"`
	Mileage  int     `json:"mileage,omitempty"` // km, 0 when untagged
}

// PriceSnapshot is an immutable record of one price-search outcome.
// Superseded only by inserting a new snapshot after expiry, never updated.
type PriceSnapshot struct {
	ID            string                 `json:"id"`
	TenantID      string                 `json:"tenantId,omitempty"` // empty => global/shared
	SearchKey     string                 `json:"searchKey"`          // OEM or make_model_gearboxType
	Source        SnapshotSource         `json:"source"`
	MinPrice      float64                `json:"minPrice"`
	MaxPrice      float64                `json:"maxPrice"`
	AvgPrice      float64                `json:"avgPrice"`
	Currency      string                 `json:"currency"`
	ModelName     string                 `json:"modelName,omitempty"`
	Manufacturer  string                 `json:"manufacturer,omitempty"`
	Origin        string                 `json:"origin,omitempty"`
	MileageMin    int                    `json:"mileageMin,omitempty"`
	MileageMax    int                    `json:"mileageMax,omitempty"`
	ListingsCount int                    `json:"listingsCount"`
	SearchQuery   string                 `json:"searchQuery,omitempty"`
	ExpiresAt     time.Time              `json:"expiresAt"`
	CreatedAt     time.Time              `json:"createdAt"`
	Raw           map[string]interface{} `json:"raw,omitempty"` // full listings + identification
}

// Expired reports whether the snapshot is past its TTL at the given instant.
func (s *PriceSnapshot) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
