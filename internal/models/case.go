// internal/models/case.go
package models

import "time"

// IdentifierType distinguishes the two customer-supplied vehicle identifiers.
type IdentifierType string

const (
	IDTypeVIN   IdentifierType = "VIN"
	IDTypeFrame IdentifierType = "FRAME"
)

// CaseStatus is the lifecycle of a VehicleLookupCase. Transitions are
// PENDING -> RUNNING -> COMPLETED | FAILED; terminal states never change.
type CaseStatus string

const (
	CaseStatusPending   CaseStatus = "PENDING"
	CaseStatusRunning   CaseStatus = "RUNNING"
	CaseStatusCompleted CaseStatus = "COMPLETED"
	CaseStatusFailed    CaseStatus = "FAILED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s CaseStatus) IsTerminal() bool {
	return s == CaseStatusCompleted || s == CaseStatusFailed
}

// VehicleLookupCase is created once per customer-submitted identifier and
// kept forever as an audit trail. Only the worker processing it mutates it.
type VehicleLookupCase struct {
	ID                 string         `json:"id"`
	TenantID           string         `json:"tenantId"`
	ConversationID     string         `json:"conversationId"`
	MessageID          string         `json:"messageId,omitempty"`
	IDType             IdentifierType `json:"idType"`
	RawValue           string         `json:"rawValue"`
	NormalizedValue    string         `json:"normalizedValue"`
	Status             CaseStatus     `json:"status"`
	VerificationStatus string         `json:"verificationStatus,omitempty"`
	Error              string         `json:"error,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// VehicleLookupCache holds the merged outcome of a resolved identifier.
// Keyed by (idType, lookupKey); vehicle facts are tenant-independent, so
// the cache is shared across tenants and overwritten whenever a case
// resolves the same identifier again.
type VehicleLookupCache struct {
	LookupKey        string          `json:"lookupKey"`
	IDType           IdentifierType  `json:"idType"`
	Vehicle          *VehicleContext `json:"vehicle,omitempty"`
	Gearbox          GearboxInfo     `json:"gearbox"`
	Evidence         Evidence        `json:"evidence"`
	LookupConfidence float64         `json:"lookupConfidence"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Evidence records how a lookup was resolved, for audit and debugging.
type Evidence struct {
	FinalURL       string   `json:"finalUrl,omitempty"`
	SelectorsUsed  []string `json:"selectorsUsed,omitempty"`
	SourceTried    []string `json:"sourceTried,omitempty"`
	SourceSelected string   `json:"sourceSelected,omitempty"`
	ParseError     string   `json:"parseError,omitempty"`
}
