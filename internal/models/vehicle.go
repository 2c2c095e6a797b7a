// internal/models/vehicle.go
package models

// OemStatus describes how much the catalog told us about the gearbox part.
type OemStatus string

const (
	OemStatusFound        OemStatus = "FOUND"
	OemStatusModelOnly    OemStatus = "MODEL_ONLY"
	OemStatusNotAvailable OemStatus = "NOT_AVAILABLE"
)

// OemCandidate is one row from the catalog's parts table, in catalog order.
type OemCandidate struct {
	OEM  string `json:"oem"`
	Name string `json:"name"`
}

// GearboxInfo is the catalog's answer about the transmission unit.
// Invariants: OemStatusFound implies OEM != ""; OemStatusModelOnly implies
// Model != "" and OEM == "".
type GearboxInfo struct {
	OemStatus     OemStatus      `json:"oemStatus"`
	OEM           string         `json:"oem,omitempty"`
	Model         string         `json:"model,omitempty"`
	FactoryCode   string         `json:"factoryCode,omitempty"`
	OemCandidates []OemCandidate `json:"oemCandidates,omitempty"`
}

// DriveType and GearboxType are classified from free text; empty means unknown.
type DriveType string

const (
	Drive2WD DriveType = "2WD"
	Drive4WD DriveType = "4WD"
)

type GearboxType string

const (
	GearboxMT  GearboxType = "MT"
	GearboxAT  GearboxType = "AT"
	GearboxCVT GearboxType = "CVT"
)

// VehicleContext is the normalized vehicle description merged from the
// part catalog and the VIN decode service. Catalog wins for part numbers;
// the decode service wins for general vehicle facts.
type VehicleContext struct {
	Make         string                 `json:"make,omitempty"`
	Model        string                 `json:"model,omitempty"`
	Year         string                 `json:"year,omitempty"`
	Engine       string                 `json:"engine,omitempty"`
	Body         string                 `json:"body,omitempty"`
	DriveType    DriveType              `json:"driveType,omitempty"`
	GearboxType  GearboxType            `json:"gearboxType,omitempty"`
	Displacement string                 `json:"displacement,omitempty"`
	RawCatalog   map[string]interface{} `json:"rawCatalog,omitempty"`
}

// Describe returns a short human label for the vehicle, used in reply
// templates when no market model name is available.
func (v *VehicleContext) Describe() string {
	if v == nil {
		return ""
	}
	out := v.Make
	if v.Model != "" {
		if out != "" {
			out += " "
		}
		out += v.Model
	}
	if v.Year != "" {
		if out != "" {
			out += " "
		}
		out += v.Year
	}
	return out
}

// IdentificationOrigin is the manufacturing region of a transmission model.
type IdentificationOrigin string

const (
	OriginJapan   IdentificationOrigin = "japan"
	OriginEurope  IdentificationOrigin = "europe"
	OriginKorea   IdentificationOrigin = "korea"
	OriginUSA     IdentificationOrigin = "usa"
	OriginUnknown IdentificationOrigin = "unknown"
)

// IdentificationConfidence is the LLM's self-reported certainty.
type IdentificationConfidence string

const (
	IdentConfidenceHigh   IdentificationConfidence = "high"
	IdentConfidenceMedium IdentificationConfidence = "medium"
	IdentConfidenceLow    IdentificationConfidence = "low"
)

// TransmissionIdentification maps an OEM code to a market model name.
// Ephemeral: embedded into a PriceSnapshot's raw payload, never stored
// standalone.
type TransmissionIdentification struct {
	ModelName    string                   `json:"modelName,omitempty"`
	Manufacturer string                   `json:"manufacturer,omitempty"`
	Origin       IdentificationOrigin     `json:"origin"`
	Confidence   IdentificationConfidence `json:"confidence"`
	Notes        string                   `json:"notes,omitempty"`
}

// UnknownIdentification is the documented fallback for any identification
// failure: all fields null, confidence low.
func UnknownIdentification() TransmissionIdentification {
	return TransmissionIdentification{
		Origin:     OriginUnknown,
		Confidence: IdentConfidenceLow,
	}
}
