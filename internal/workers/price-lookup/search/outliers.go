// internal/workers/price-lookup/search/outliers.go
package search

import (
	"sort"

	"gearbox-workers/internal/models"
)

// minSamplesForIQR is the smallest listing count where quartiles are
// meaningful; below it the input passes through untouched.
const minSamplesForIQR = 4

// filterOutliersIQR drops listings priced outside
// [Q1 - 1.5*IQR, Q3 + 1.5*IQR]. Returns the survivors and the number
// removed.
func filterOutliersIQR(listings []models.Listing) ([]models.Listing, int) {
	if len(listings) < minSamplesForIQR {
		return listings, 0
	}

	prices := make([]float64, len(listings))
	for i, l := range listings {
		prices[i] = l.Price
	}
	sort.Float64s(prices)

	q1 := quantile(prices, 0.25)
	q3 := quantile(prices, 0.75)
	iqr := q3 - q1
	lo := q1 - 1.5*iqr
	hi := q3 + 1.5*iqr

	kept := listings[:0:0]
	for _, l := range listings {
		if l.Price >= lo && l.Price <= hi {
			kept = append(kept, l)
		}
	}
	return kept, len(listings) - len(kept)
}

// quantile interpolates linearly between the closest ranks of a sorted
// sample.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
