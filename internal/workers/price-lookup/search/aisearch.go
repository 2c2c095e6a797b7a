// internal/workers/price-lookup/search/aisearch.go
package search

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"gearbox-workers/internal/common/llm"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/models"
)

// medianSanityRatio drops prices under 1% of the batch median: almost
// always an unconverted foreign-currency figure that slipped through.
const medianSanityRatio = 0.01

// AISearcher runs natural-language web search through the LLM gateway and
// turns its answer into listings.
type AISearcher struct {
	client *llm.Client
	logger logger.Logger
}

func NewAISearcher(client *llm.Client, log logger.Logger) *AISearcher {
	return &AISearcher{client: client, logger: log}
}

type aiListing struct {
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	URL      string  `json:"url"`
	Mileage  int     `json:"mileage"`
}

// PrimaryQuery phrases the first web-search attempt.
func (s *AISearcher) PrimaryQuery(req *Request) string {
	return formatQuery(
		"Найди объявления о продаже контрактной коробки передач %s с разборки. "+
			"Исключи новые, восстановленные, неисправные и повреждённые агрегаты. "+
			"Верни JSON-массив объектов {\"title\",\"price\",\"currency\",\"url\",\"mileage\"} с ценами в рублях.",
		req.Descriptor())
}

// FallbackQuery rephrases the search when the primary survivors fall short.
func (s *AISearcher) FallbackQuery(req *Request) string {
	return formatQuery(
		"Сколько стоит бу коробка передач %s на российских авторазборках? "+
			"Только рабочие агрегаты с пробегом, не новые и не после ремонта. "+
			"Ответ строго JSON-массив {\"title\",\"price\",\"currency\",\"url\",\"mileage\"}.",
		req.Descriptor())
}

// Search executes one query and returns the surviving listings plus the
// raw parsed count before condition and sanity filtering. LLM failures are
// absorbed as an empty stage.
func (s *AISearcher) Search(ctx context.Context, query string) ([]models.Listing, int) {
	content, err := s.client.Complete(ctx, []llm.Message{{Role: "user", Content: query}})
	if err != nil {
		s.logger.Warn("ai web search failed", map[string]interface{}{"error": err.Error()})
		return nil, 0
	}

	raw := parseAIListings(content)
	if len(raw) == 0 {
		return nil, 0
	}

	survivors := filterAIListings(raw)
	return survivors, len(raw)
}

// parseAIListings tries strict JSON first, then falls back to scanning
// free text line-by-line for currency-tagged numbers.
func parseAIListings(content string) []models.Listing {
	stripped := llm.StripCodeFences(content)

	var items []aiListing
	if err := json.Unmarshal([]byte(stripped), &items); err == nil {
		out := make([]models.Listing, 0, len(items))
		for _, it := range items {
			if it.Price <= 0 {
				continue
			}
			cur := strings.ToUpper(it.Currency)
			if cur == "" {
				cur = "RUB"
			}
			out = append(out, models.Listing{
				Title:    it.Title,
				Price:    it.Price,
				Currency: cur,
				URL:      it.URL,
				Domain:   hostOf(it.URL),
				Mileage:  it.Mileage,
			})
		}
		return out
	}

	return scanTextListings(content)
}

var lineAmountRe = regexp.MustCompile(`(\d[\d\s\x{00a0}]{3,9})\s*(?:₽|руб|RUB|р\.)`)

func scanTextListings(content string) []models.Listing {
	var out []models.Listing
	for _, line := range strings.Split(content, "\n") {
		m := lineAmountRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		price := parsePriceDigits(m[1])
		if price <= 0 {
			continue
		}
		out = append(out, models.Listing{
			Title:    strings.TrimSpace(line),
			Price:    price,
			Currency: "RUB",
			Mileage:  extractMileage(line),
		})
	}
	return out
}

// filterAIListings applies the condition keyword exclusion and the
// median-relative sanity floor.
func filterAIListings(listings []models.Listing) []models.Listing {
	kept := listings[:0:0]
	for _, l := range listings {
		if isExcludedCondition(l.Title) {
			continue
		}
		kept = append(kept, l)
	}

	median := medianPrice(kept)
	if median <= 0 {
		return kept
	}
	sane := kept[:0:0]
	for _, l := range kept {
		if l.Price >= median*medianSanityRatio {
			sane = append(sane, l)
		}
	}
	return sane
}
