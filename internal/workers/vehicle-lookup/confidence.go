// internal/workers/vehicle-lookup/confidence.go
package vehiclelookup

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"gearbox-workers/internal/models"
)

// Confidence weights. Each signal adds independently, so confidence is
// monotone in the presence of signals.
const (
	weightBase       = 0.2 // any identifying fact at all
	weightOEMFound   = 0.4
	weightModel      = 0.2
	weightTrusted    = 0.1 // resolved by the primary catalog source
	weightCandidates = 0.1
)

const trustedSource = "catalog"

// computeConfidence scores how certain the resolution is, in [0,1].
func computeConfidence(gearbox models.GearboxInfo, evidence models.Evidence) float64 {
	if gearbox.OEM == "" && gearbox.Model == "" {
		return 0
	}

	score := weightBase
	if gearbox.OemStatus == models.OemStatusFound {
		score += weightOEMFound
	}
	if gearbox.Model != "" {
		score += weightModel
	}
	if evidence.SourceSelected == trustedSource {
		score += weightTrusted
	}
	if len(gearbox.OemCandidates) > 0 {
		score += weightCandidates
	}

	if score > 1 {
		score = 1
	}
	return score
}

// isDisplayableModelName rejects internal catalog codes posing as market
// model names: anything longer than 12 characters or containing a run of
// 4+ digits reads as a part number, not a nameplate model.
func isDisplayableModelName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > 12 {
		return false
	}

	digits := 0
	for _, r := range name {
		if unicode.IsDigit(r) {
			digits++
			if digits >= 4 {
				return false
			}
		} else {
			digits = 0
		}
	}
	return true
}
