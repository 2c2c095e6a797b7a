// internal/workers/price-lookup/search/keywords.go
package search

import "strings"

// Title vocabularies for scraped listings. A usable offer must mention the
// part itself and must not be an accessory or consumable for it.
var (
	includeKeywords = []string{
		"кпп", "акпп", "коробк", "коробка передач", "коробка передач в сборе",
		"мкп", "акп", "вариатор", "вариатор в сборе", "cvt",
		"трансмиссия", "transmission", "gearbox", "gear box",
		"at transmission", "mt transmission",
		"автоматическая коробка", "механическая коробка",
	}

	excludeKeywords = []string{
		"масло", "шайб", "фиксатор", "шумоизоляц", "болт", "гайк",
		"уплотн", "прокладк", "сальник", "фильтр", "датчик", "крепеж",
	}

	// priorityKeywords mark complete-assembly offers; they win ties when
	// ranking scraped listings.
	priorityKeywords = []string{"в сборе", "трансмиссия", "коробка передач"}
)

// Offer-condition terms excluded from AI search results. "с разборки"
// (a used unit pulled from a donor car) is the standard market wording and
// stays allowed.
var conditionExcludeKeywords = []string{
	"новая", "новый", "new", "восстановлен", "rebuilt", "remanufactured",
	"неисправн", "дефект", "сломан", "поврежд", "после дтп",
	"damaged", "defective", "for parts", "на запчасти",
}

const disassemblyTerm = "с разборки"

// titleMatchesPart reports whether a listing title plausibly describes a
// whole transmission rather than a related small part.
func titleMatchesPart(title string) bool {
	t := strings.ToLower(title)
	for _, kw := range excludeKeywords {
		if strings.Contains(t, kw) {
			return false
		}
	}
	for _, kw := range includeKeywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// titlePriority scores assembly-level wording for ranking.
func titlePriority(title string) int {
	t := strings.ToLower(title)
	score := 0
	for _, kw := range priorityKeywords {
		if strings.Contains(t, kw) {
			score++
		}
	}
	return score
}

// isExcludedCondition rejects new, rebuilt and damaged units from AI
// search output. The disassembly wording overrides any other match.
func isExcludedCondition(title string) bool {
	t := strings.ToLower(title)
	if strings.Contains(t, disassemblyTerm) {
		return false
	}
	for _, kw := range conditionExcludeKeywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}
