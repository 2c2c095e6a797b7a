// internal/workers/price-lookup/search/international.go
package search

import (
	"context"

	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/models"
)

// InternationalSearcher queries non-domestic marketplaces through the same
// AI web-search channel and converts the answers to rubles.
type InternationalSearcher struct {
	ai     *AISearcher
	fx     *FXClient
	logger logger.Logger
}

func NewInternationalSearcher(ai *AISearcher, fx *FXClient, log logger.Logger) *InternationalSearcher {
	return &InternationalSearcher{ai: ai, fx: fx, logger: log}
}

func internationalQuery(req *Request) string {
	return formatQuery(
		"Find used transmission listings for %s on international marketplaces "+
			"(ebay.com, croooober.com, beforward.jp). Exclude new, remanufactured and damaged units. "+
			"Return a JSON array of {\"title\",\"price\",\"currency\",\"url\",\"mileage\"} "+
			"with the original currency (USD, EUR or JPY).",
		req.Descriptor())
}

// Search fetches FX rates once, runs the international query and converts
// every price to rubles.
func (s *InternationalSearcher) Search(ctx context.Context, req *Request) ([]models.Listing, string) {
	query := internationalQuery(req)
	listings, raw := s.ai.Search(ctx, query)
	if raw == 0 {
		return nil, query
	}

	rates := s.fx.Rates(ctx)
	for i := range listings {
		if listings[i].Currency != "RUB" {
			listings[i].Price = rates.ToRUB(listings[i].Price, listings[i].Currency)
			listings[i].Currency = "RUB"
		}
	}
	return listings, query
}
