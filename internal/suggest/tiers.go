// internal/suggest/tiers.go
package suggest

import (
	"gearbox-workers/internal/models"
)

// PriceTier is one mileage bracket with its average price.
type PriceTier struct {
	Label    string
	AvgPrice float64
	Count    int
}

// TierSet holds the three mileage brackets. Complete() reports whether
// every bracket has at least one listing; an incomplete set falls back to
// a single price point in the reply.
type TierSet struct {
	Quality PriceTier // lowest mileage
	Mid     PriceTier
	Budget  PriceTier // highest mileage
}

func (t TierSet) Complete() bool {
	return t.Quality.Count > 0 && t.Mid.Count > 0 && t.Budget.Count > 0
}

// ComputeTiers splits mileage-tagged listings into quality/mid/budget
// brackets using the tenant's thresholds in km. Listings without a mileage
// tag are ignored here; they still count toward the single price point.
func ComputeTiers(listings []models.Listing, budgetMaxKm, midMaxKm int) TierSet {
	var set TierSet
	var qSum, mSum, bSum float64

	for _, l := range listings {
		if l.Mileage <= 0 || l.Price <= 0 {
			continue
		}
		switch {
		case l.Mileage <= budgetMaxKm:
			qSum += l.Price
			set.Quality.Count++
		case l.Mileage <= midMaxKm:
			mSum += l.Price
			set.Mid.Count++
		default:
			bSum += l.Price
			set.Budget.Count++
		}
	}

	if set.Quality.Count > 0 {
		set.Quality.AvgPrice = qSum / float64(set.Quality.Count)
	}
	if set.Mid.Count > 0 {
		set.Mid.AvgPrice = mSum / float64(set.Mid.Count)
	}
	if set.Budget.Count > 0 {
		set.Budget.AvgPrice = bSum / float64(set.Budget.Count)
	}

	return set
}
