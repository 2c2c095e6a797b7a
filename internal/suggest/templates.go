// internal/suggest/templates.go
package suggest

import (
	"fmt"
	"strings"

	"gearbox-workers/internal/common/config"
	"gearbox-workers/internal/models"
)

// Builder renders customer-facing reply texts. All replies are in Russian,
// matching the customer base of the marketplaces searched.
type Builder struct {
	cfg config.SuggestionConfig
}

func NewBuilder(cfg config.SuggestionConfig) *Builder {
	return &Builder{cfg: cfg}
}

// tenantThresholds returns the mileage tier boundaries for a tenant,
// falling back to the global defaults.
func (b *Builder) tenantThresholds(tenantID string) (budgetMaxKm, midMaxKm int) {
	if t, ok := b.cfg.TenantMileageKm[tenantID]; ok {
		return t.BudgetMaxKm, t.MidMaxKm
	}
	return b.cfg.BudgetMaxKm, b.cfg.MidMaxKm
}

// BuildLookupReply selects a template by confidence. High confidence names
// the unit and its OEM number; medium asks for a nameplate photo to
// confirm; low only asks for the photo.
func (b *Builder) BuildLookupReply(confidence float64, gearbox models.GearboxInfo, vehicle *models.VehicleContext) string {
	label := unitLabel(gearbox, vehicle)

	switch {
	case confidence >= b.cfg.HighConfidence:
		var sb strings.Builder
		sb.WriteString("Подобрал вам ")
		sb.WriteString(label)
		if gearbox.OEM != "" {
			sb.WriteString(fmt.Sprintf(", оригинальный номер %s", gearbox.OEM))
		}
		sb.WriteString(". Сейчас уточню наличие и цены.")
		return sb.String()

	case confidence >= b.cfg.MediumConfidence:
		return fmt.Sprintf(
			"По вашим данным подходит %s, но для точного подбора пришлите, пожалуйста, фото шильдика (таблички) на коробке.",
			label)

	default:
		return "Чтобы точно подобрать коробку, пришлите, пожалуйста, фото шильдика (таблички) на КПП или VIN автомобиля."
	}
}

// BuildPriceReply renders the price portion of a reply. When every mileage
// tier is populated it lists the three brackets; otherwise a single price
// range.
func (b *Builder) BuildPriceReply(tenantID string, snap *models.PriceSnapshot, listings []models.Listing) string {
	if snap == nil || snap.ListingsCount == 0 {
		return "Пока не нашёл подходящих предложений, продолжаю поиск."
	}

	if snap.Source == models.SourceAIEstimate {
		return fmt.Sprintf(
			"Ориентировочная цена такой коробки: от %s до %s ₽. Точную стоимость уточню после подтверждения модели.",
			formatPrice(snap.MinPrice), formatPrice(snap.MaxPrice))
	}

	budgetMaxKm, midMaxKm := b.tenantThresholds(tenantID)
	tiers := ComputeTiers(listings, budgetMaxKm, midMaxKm)
	if tiers.Complete() {
		return fmt.Sprintf(
			"Есть варианты по цене:\n"+
				"— пробег до %d тыс. км: ~%s ₽\n"+
				"— пробег %d–%d тыс. км: ~%s ₽\n"+
				"— пробег от %d тыс. км: ~%s ₽",
			budgetMaxKm/1000, formatPrice(tiers.Quality.AvgPrice),
			budgetMaxKm/1000, midMaxKm/1000, formatPrice(tiers.Mid.AvgPrice),
			midMaxKm/1000, formatPrice(tiers.Budget.AvgPrice))
	}

	if snap.MinPrice > 0 && snap.MaxPrice > snap.MinPrice {
		return fmt.Sprintf("Цены на такую коробку: от %s до %s ₽ (в среднем ~%s ₽).",
			formatPrice(snap.MinPrice), formatPrice(snap.MaxPrice), formatPrice(snap.AvgPrice))
	}

	return fmt.Sprintf("Цена такой коробки: ~%s ₽.", formatPrice(snap.AvgPrice))
}

// unitLabel names the unit for the customer: market model name when we
// have a displayable one, otherwise a vehicle-description label.
func unitLabel(gearbox models.GearboxInfo, vehicle *models.VehicleContext) string {
	if gearbox.Model != "" {
		return fmt.Sprintf("коробку %s", gearbox.Model)
	}

	kind := "коробку передач"
	if vehicle != nil {
		switch vehicle.GearboxType {
		case models.GearboxMT:
			kind = "МКПП"
		case models.GearboxAT:
			kind = "АКПП"
		case models.GearboxCVT:
			kind = "вариатор"
		}
		if desc := vehicle.Describe(); desc != "" {
			return fmt.Sprintf("%s для %s", kind, desc)
		}
	}
	return kind
}

// formatPrice renders a ruble amount with thin-space thousand grouping.
func formatPrice(v float64) string {
	n := int64(v + 0.5)
	s := fmt.Sprintf("%d", n)

	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, " ")
}
