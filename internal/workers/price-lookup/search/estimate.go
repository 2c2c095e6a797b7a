// internal/workers/price-lookup/search/estimate.go
package search

import (
	"context"
	"fmt"
	"strings"

	"gearbox-workers/internal/common/llm"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/models"
)

// Estimator produces the last-resort AI point estimate when every real
// source came back empty.
type Estimator struct {
	client *llm.Client
	logger logger.Logger
}

func NewEstimator(client *llm.Client, log logger.Logger) *Estimator {
	return &Estimator{client: client, logger: log}
}

// Estimate asks for a {priceMin, priceMax} pair. Any LLM failure yields
// nil rather than an error; the cascade then records not_found.
func (e *Estimator) Estimate(ctx context.Context, req *Request) *Result {
	prompt := fmt.Sprintf(
		"Оцени рыночную стоимость контрактной коробки передач %s на российском рынке.%s "+
			"Ответ строго JSON: {\"priceMin\": <число в рублях>, \"priceMax\": <число в рублях>}.",
		req.Descriptor(), rarityHints(req))

	var out struct {
		PriceMin float64 `json:"priceMin"`
		PriceMax float64 `json:"priceMax"`
	}
	if err := e.client.CompleteJSON(ctx, []llm.Message{{Role: "user", Content: prompt}}, &out); err != nil {
		e.logger.Warn("ai estimate failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	if out.PriceMin <= 0 || out.PriceMax < out.PriceMin {
		e.logger.Warn("ai estimate returned implausible range", map[string]interface{}{
			"priceMin": out.PriceMin,
			"priceMax": out.PriceMax,
		})
		return nil
	}

	return &Result{
		Source:      models.SourceAIEstimate,
		SearchQuery: prompt,
		MinPrice:    out.PriceMin,
		MaxPrice:    out.PriceMax,
		AvgPrice:    (out.PriceMin + out.PriceMax) / 2,
		Currency:    "RUB",
	}
}

// rarityHints folds scarcity signals into the prompt: rare drivetrain and
// gearbox variants price very differently from the common ones.
func rarityHints(req *Request) string {
	if req.Vehicle == nil {
		return ""
	}
	var hints []string
	if req.Vehicle.DriveType == models.Drive4WD {
		hints = append(hints, "полноприводная версия встречается реже и стоит дороже")
	}
	if req.Vehicle.GearboxType == models.GearboxCVT {
		hints = append(hints, "вариаторы этой модели в дефиците на разборках")
	}
	if req.Vehicle.GearboxType == models.GearboxMT {
		hints = append(hints, "механика для этой модели встречается редко")
	}
	if len(hints) == 0 {
		return ""
	}
	return " Учти: " + strings.Join(hints, "; ") + "."
}
