// internal/workers/vehicle-lookup/models.go
package vehiclelookup

import (
	"gearbox-workers/internal/models"
)

// catalogResponse is the part-catalog lookup contract.
type catalogResponse struct {
	VehicleMeta map[string]interface{} `json:"vehicleMeta"`
	Gearbox     catalogGearbox         `json:"gearbox"`
	Evidence    models.Evidence        `json:"evidence"`
}

type catalogGearbox struct {
	Model         string                `json:"model"`
	OEM           string                `json:"oem"`
	OemStatus     string                `json:"oemStatus"`
	OemCandidates []models.OemCandidate `json:"oemCandidates"`
}

// decodeResult is what the VIN-decode service contributes: general vehicle
// facts only, no part numbers.
type decodeResult struct {
	Make         string `json:"make"`
	Model        string `json:"model"`
	Year         string `json:"year"`
	Engine       string `json:"engine"`
	Body         string `json:"body"`
	Displacement string `json:"displacement"`
}

// Resolution is the merged outcome of one identifier lookup.
// ModelDisplayable reports whether Gearbox.Model passed market-name
// validation; internal catalog codes stay available for search but are
// never shown to the customer or used as an identification hint.
type Resolution struct {
	Gearbox          models.GearboxInfo
	Vehicle          *models.VehicleContext
	Evidence         models.Evidence
	ModelDisplayable bool
	Confidence       float64
}
