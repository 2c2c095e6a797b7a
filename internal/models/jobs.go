// internal/models/jobs.go
package models

// Queue names for the two cooperating pipelines.
const (
	QueueVehicleLookup = "vehicle-lookup"
	QueuePriceLookup   = "price-lookup"
)

// VehicleLookupJob is the payload of the vehicle-lookup queue. The job ID is
// derived from the case ("case:{caseId}"), which makes enqueue idempotent.
type VehicleLookupJob struct {
	CaseID          string         `json:"caseId"`
	TenantID        string         `json:"tenantId"`
	ConversationID  string         `json:"conversationId"`
	IDType          IdentifierType `json:"idType"`
	NormalizedValue string         `json:"normalizedValue"`
}

// JobID returns the deterministic queue job ID for this case.
func (j VehicleLookupJob) JobID() string { return "case:" + j.CaseID }

// SearchFallback carries the no-OEM search key parts.
type SearchFallback struct {
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	GearboxType  string `json:"gearboxType,omitempty"`
	GearboxModel string `json:"gearboxModel,omitempty"`
}

// PriceLookupJob is the payload of the price-lookup queue. Either OEM or
// SearchFallback must be present.
type PriceLookupJob struct {
	CaseID         string          `json:"caseId"`
	TenantID       string          `json:"tenantId"`
	ConversationID string          `json:"conversationId"`
	OEM            string          `json:"oem,omitempty"`
	OemModelHint   string          `json:"oemModelHint,omitempty"`
	VehicleContext *VehicleContext `json:"vehicleContext,omitempty"`
	SearchFallback *SearchFallback `json:"searchFallback,omitempty"`
	IsModelOnly    bool            `json:"isModelOnly,omitempty"`
	Confidence     float64         `json:"confidence,omitempty"`
}

// JobID returns the deterministic queue job ID for this case.
func (j PriceLookupJob) JobID() string { return "case:" + j.CaseID }

// VehicleLookupJobSchema validates VehicleLookupJob payloads on enqueue.
var VehicleLookupJobSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"caseId", "tenantId", "conversationId", "idType", "normalizedValue"},
	"properties": map[string]interface{}{
		"caseId":          map[string]interface{}{"type": "string", "minLength": 1},
		"tenantId":        map[string]interface{}{"type": "string", "minLength": 1},
		"conversationId":  map[string]interface{}{"type": "string", "minLength": 1},
		"idType":          map[string]interface{}{"type": "string", "enum": []interface{}{"VIN", "FRAME"}},
		"normalizedValue": map[string]interface{}{"type": "string", "minLength": 1},
	},
}

// PriceLookupJobSchema validates PriceLookupJob payloads on enqueue.
var PriceLookupJobSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"caseId", "tenantId", "conversationId"},
	"properties": map[string]interface{}{
		"caseId":         map[string]interface{}{"type": "string", "minLength": 1},
		"tenantId":       map[string]interface{}{"type": "string", "minLength": 1},
		"conversationId": map[string]interface{}{"type": "string", "minLength": 1},
		"oem":            map[string]interface{}{"type": "string"},
		"oemModelHint":   map[string]interface{}{"type": "string"},
		"isModelOnly":    map[string]interface{}{"type": "boolean"},
		"confidence":     map[string]interface{}{"type": "number"},
	},
}
