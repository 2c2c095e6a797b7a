// internal/workers/price-lookup/search/scrape.go
package search

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"gearbox-workers/internal/models"
)

// Per-domain price extraction rules. Marketplaces mark up prices
// differently; the generic ruble pattern is the last resort for everything
// else.
var (
	titleTagRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

	genericPriceRe = regexp.MustCompile(`(\d[\d\s\x{00a0}]{3,9})\s*(?:₽|руб)`)

	domainPriceRes = map[string]*regexp.Regexp{
		"drom.ru":     regexp.MustCompile(`(?i)data-price="(\d+)"`),
		"farpost.ru":  regexp.MustCompile(`(?i)"price"\s*:\s*"?(\d+)`),
		"avito.ru":    regexp.MustCompile(`(?i)"priceValue"\s*:\s*(\d+)`),
		"japancar.ru": regexp.MustCompile(`(?i)itemprop="price"\s+content="(\d+)"`),
		"bibinet.ru":  regexp.MustCompile(`(?i)class="price[^"]*"[^>]*>\s*([\d\s\x{00a0}]+)`),
	}

	// "пробег 85 тыс. км", "85 000 км", "85т.км"
	mileageRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d{1,3})\s*(?:тыс\.?\s*\.?\s*км|т\.?\s*км)`),
		regexp.MustCompile(`(?i)(\d{1,3})[\s\x{00a0}](\d{3})\s*км`),
	}
)

// scrapePage extracts one listing from a fetched marketplace page. Returns
// nil when no plausible price is present or the title fails the part
// keyword filter.
func scrapePage(pageURL, host string, body []byte) *models.Listing {
	text := string(body)

	title := extractTitle(text)
	if title != "" && !titleMatchesPart(title) {
		return nil
	}

	price := extractPrice(host, text)
	if price <= 0 {
		return nil
	}

	return &models.Listing{
		Title:    title,
		Price:    price,
		Currency: "RUB",
		URL:      pageURL,
		Domain:   host,
		Mileage:  extractMileage(text),
	}
}

func extractTitle(text string) string {
	m := titleTagRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(m[1]))
}

func extractPrice(host, text string) float64 {
	if re, ok := domainPriceRes[baseDomain(host)]; ok {
		if m := re.FindStringSubmatch(text); m != nil {
			if v := parsePriceDigits(m[1]); v > 0 {
				return v
			}
		}
	}
	if m := genericPriceRe.FindStringSubmatch(text); m != nil {
		return parsePriceDigits(m[1])
	}
	return 0
}

func extractMileage(text string) int {
	if m := mileageRes[0].FindStringSubmatch(text); m != nil {
		thousands, err := strconv.Atoi(m[1])
		if err == nil {
			return thousands * 1000
		}
	}
	if m := mileageRes[1].FindStringSubmatch(text); m != nil {
		km, err := strconv.Atoi(m[1] + m[2])
		if err == nil {
			return km
		}
	}
	return 0
}

// parsePriceDigits strips grouping spaces (regular and non-breaking) and
// parses the remainder.
func parsePriceDigits(raw string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// baseDomain strips a leading www. so rule lookup and trust scoring see
// the registrable name.
func baseDomain(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
