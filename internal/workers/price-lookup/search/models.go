// internal/workers/price-lookup/search/models.go
package search

import (
	"fmt"
	"sort"
	"strings"

	"gearbox-workers/internal/models"
)

// Request carries everything a cascade run needs to know about the part.
type Request struct {
	TenantID       string
	OEM            string
	ModelHint      string
	Vehicle        *models.VehicleContext
	Fallback       *models.SearchFallback
	IsModelOnly    bool
	Identification *models.TransmissionIdentification
}

// SearchKey is the snapshot scope key: the OEM when one exists, otherwise
// a composite of the fallback facts.
func (r *Request) SearchKey() string {
	if r.OEM != "" {
		return r.OEM
	}
	parts := []string{"", "", ""}
	if r.Fallback != nil {
		parts[0] = r.Fallback.Make
		parts[1] = r.Fallback.Model
		parts[2] = r.Fallback.GearboxType
	}
	key := strings.ToLower(strings.Join(parts, "_"))
	return strings.ReplaceAll(key, " ", "-")
}

// Descriptor renders the most specific human-readable label available for
// search queries and LLM prompts.
func (r *Request) Descriptor() string {
	var sb strings.Builder
	if r.Vehicle != nil {
		sb.WriteString(strings.TrimSpace(r.Vehicle.Make + " " + r.Vehicle.Model))
		if r.Vehicle.Year != "" {
			sb.WriteString(" " + r.Vehicle.Year)
		}
	} else if r.Fallback != nil {
		sb.WriteString(strings.TrimSpace(r.Fallback.Make + " " + r.Fallback.Model))
	}
	if r.ModelHint != "" {
		sb.WriteString(" " + r.ModelHint)
	}
	if r.OEM != "" {
		sb.WriteString(" " + r.OEM)
	}
	return strings.TrimSpace(sb.String())
}

// Result is the outcome of one cascade run.
type Result struct {
	Source        models.SnapshotSource
	Listings      []models.Listing
	ListingsCount int
	FilteredOut   int
	SearchQuery   string
	MinPrice      float64
	MaxPrice      float64
	AvgPrice      float64
	MileageMin    int
	MileageMax    int
	Currency      string
}

// newResult folds a listing set into the aggregate figures a snapshot
// carries. Mileage bounds only consider tagged listings.
func newResult(source models.SnapshotSource, listings []models.Listing, query string, filteredOut int) *Result {
	res := &Result{
		Source:        source,
		Listings:      listings,
		ListingsCount: len(listings),
		FilteredOut:   filteredOut,
		SearchQuery:   query,
		Currency:      "RUB",
	}
	if len(listings) == 0 {
		return res
	}

	var sum float64
	res.MinPrice = listings[0].Price
	res.MaxPrice = listings[0].Price
	for _, l := range listings {
		sum += l.Price
		if l.Price < res.MinPrice {
			res.MinPrice = l.Price
		}
		if l.Price > res.MaxPrice {
			res.MaxPrice = l.Price
		}
		if l.Mileage > 0 {
			if res.MileageMin == 0 || l.Mileage < res.MileageMin {
				res.MileageMin = l.Mileage
			}
			if l.Mileage > res.MileageMax {
				res.MileageMax = l.Mileage
			}
		}
	}
	res.AvgPrice = sum / float64(len(listings))
	return res
}

// distinctDomains counts unique listing domains, case-insensitively.
func distinctDomains(listings []models.Listing) int {
	seen := map[string]struct{}{}
	for _, l := range listings {
		if l.Domain == "" {
			continue
		}
		seen[strings.ToLower(l.Domain)] = struct{}{}
	}
	return len(seen)
}

// dedupeByURL keeps the first listing per URL, preserving order. Listings
// without a URL are kept as-is.
func dedupeByURL(listings []models.Listing) []models.Listing {
	seen := map[string]struct{}{}
	out := listings[:0:0]
	for _, l := range listings {
		if l.URL != "" {
			if _, ok := seen[l.URL]; ok {
				continue
			}
			seen[l.URL] = struct{}{}
		}
		out = append(out, l)
	}
	return out
}

// medianPrice returns the median of the listing prices, 0 for empty input.
func medianPrice(listings []models.Listing) float64 {
	if len(listings) == 0 {
		return 0
	}
	prices := make([]float64, len(listings))
	for i, l := range listings {
		prices[i] = l.Price
	}
	sort.Float64s(prices)
	mid := len(prices) / 2
	if len(prices)%2 == 0 {
		return (prices[mid-1] + prices[mid]) / 2
	}
	return prices[mid]
}

func formatQuery(format string, args ...interface{}) string {
	return strings.Join(strings.Fields(fmt.Sprintf(format, args...)), " ")
}
