// internal/common/flags/flags.go
package flags

import (
	"gearbox-workers/internal/common/config"
)

// Known feature flags consulted by the pipeline.
const (
	FlagAIWebSearch         = "ai_web_search"
	FlagInternationalSearch = "international_search"
	FlagAIEstimate          = "ai_estimate"
	FlagSuggestionDelivery  = "suggestion_delivery"
)

// Provider answers per-tenant feature flag queries.
type Provider interface {
	IsEnabled(tenantID, flag string) bool
}

// ConfigProvider resolves flags from static configuration: a tenant
// override first, then the global default, then false.
type ConfigProvider struct {
	defaults map[string]bool
	tenants  map[string]map[string]bool
}

func NewConfigProvider(cfg config.FlagsConfig) *ConfigProvider {
	return &ConfigProvider{
		defaults: cfg.Defaults,
		tenants:  cfg.Tenants,
	}
}

func (p *ConfigProvider) IsEnabled(tenantID, flag string) bool {
	if overrides, ok := p.tenants[tenantID]; ok {
		if val, ok := overrides[flag]; ok {
			return val
		}
	}
	return p.defaults[flag]
}

// StaticProvider returns fixed answers, for tests.
type StaticProvider struct {
	Enabled map[string]bool
}

func (p *StaticProvider) IsEnabled(_, flag string) bool {
	return p.Enabled[flag]
}
