// internal/workers/price-lookup/identify.go
package pricelookup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gearbox-workers/internal/common/llm"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/models"
)

// Identifier maps an OEM code to a market-facing transmission model name.
// A cost optimization, not a dependency: any failure resolves to the
// unknown identification and the search proceeds on the OEM alone.
type Identifier struct {
	client *llm.Client
	logger logger.Logger
}

func NewIdentifier(client *llm.Client, log logger.Logger) *Identifier {
	return &Identifier{client: client, logger: log}
}

type identificationPayload struct {
	ModelName    *string `json:"modelName"`
	Manufacturer *string `json:"manufacturer"`
	Origin       string  `json:"origin"`
	Confidence   string  `json:"confidence"`
	Notes        string  `json:"notes"`
}

// Identify runs a single deterministic LLM call. The prompt carries the
// full raw catalog payload when available; a compact vehicle summary
// otherwise.
func (i *Identifier) Identify(ctx context.Context, oem string, vehicle *models.VehicleContext) models.TransmissionIdentification {
	prompt := buildIdentifyPrompt(oem, vehicle)

	content, err := i.client.CompleteDeterministic(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		i.logger.Warn("transmission identification failed", map[string]interface{}{
			"oem":   oem,
			"error": err.Error(),
		})
		return models.UnknownIdentification()
	}

	var out identificationPayload
	if err := json.Unmarshal([]byte(llm.StripCodeFences(content)), &out); err != nil {
		i.logger.Warn("transmission identification returned malformed JSON", map[string]interface{}{
			"oem": oem,
		})
		return models.UnknownIdentification()
	}

	ident, ok := validateIdentification(out)
	if !ok {
		i.logger.Warn("transmission identification failed enum validation", map[string]interface{}{
			"oem":        oem,
			"origin":     out.Origin,
			"confidence": out.Confidence,
		})
		return models.UnknownIdentification()
	}
	return ident
}

func buildIdentifyPrompt(oem string, vehicle *models.VehicleContext) string {
	var contextBlock string
	if vehicle != nil && len(vehicle.RawCatalog) > 0 {
		if raw, err := json.Marshal(vehicle.RawCatalog); err == nil {
			contextBlock = "Каталожные данные:\n" + string(raw)
		}
	}
	if contextBlock == "" && vehicle != nil {
		contextBlock = "Автомобиль: " + vehicle.Describe()
	}

	return fmt.Sprintf(
		"Определи рыночную модель коробки передач по номеру OEM %q.\n%s\n"+
			"Ответ строго JSON с пятью полями:\n"+
			`{"modelName": string|null, "manufacturer": string|null, `+
			`"origin": "japan"|"europe"|"korea"|"usa"|"unknown", `+
			`"confidence": "high"|"medium"|"low", "notes": string}`,
		oem, contextBlock)
}

// validateIdentification enforces the closed origin and confidence enums.
func validateIdentification(p identificationPayload) (models.TransmissionIdentification, bool) {
	origin := models.IdentificationOrigin(strings.ToLower(p.Origin))
	switch origin {
	case models.OriginJapan, models.OriginEurope, models.OriginKorea, models.OriginUSA, models.OriginUnknown:
	default:
		return models.TransmissionIdentification{}, false
	}

	confidence := models.IdentificationConfidence(strings.ToLower(p.Confidence))
	switch confidence {
	case models.IdentConfidenceHigh, models.IdentConfidenceMedium, models.IdentConfidenceLow:
	default:
		return models.TransmissionIdentification{}, false
	}

	ident := models.TransmissionIdentification{
		Origin:     origin,
		Confidence: confidence,
		Notes:      p.Notes,
	}
	if p.ModelName != nil {
		ident.ModelName = strings.TrimSpace(*p.ModelName)
	}
	if p.Manufacturer != nil {
		ident.Manufacturer = strings.TrimSpace(*p.Manufacturer)
	}
	return ident, true
}
