package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/adrecon/backend/internal/domain/shared"
)

// SourceType identifies one of the two data sources a workflow pulls from
type SourceType string

const (
	// SourceAds is ad-spend insight data from an ads platform
	SourceAds SourceType = "ads"
	// SourcePOS is order data from a point-of-sale system
	SourcePOS SourceType = "pos"
)

// SourceOrder is the fixed order in which sources are attempted for each date
var SourceOrder = []SourceType{SourceAds, SourcePOS}

// IsValid returns true if the source type is known
func (s SourceType) IsValid() bool {
	return s == SourceAds || s == SourcePOS
}

// String returns the string representation of SourceType
func (s SourceType) String() string {
	return string(s)
}

// SourceConfig is the per-source part of a workflow's configuration
type SourceConfig struct {
	Enabled bool `json:"enabled"`
	// DelayMs is the pause between two entity fetches of this source; 0 means use the default
	DelayMs int `json:"delayMs" validate:"gte=0,lte=600000"`
}

// Delay returns the configured delay, or fallback when none is configured
func (c SourceConfig) Delay(fallback time.Duration) time.Duration {
	if c.DelayMs <= 0 {
		return fallback
	}
	return time.Duration(c.DelayMs) * time.Millisecond
}

// SourcesConfig maps each source to its configuration
type SourcesConfig map[SourceType]SourceConfig

// IsEnabled returns true if the given source is enabled
func (c SourcesConfig) IsEnabled(source SourceType) bool {
	cfg, ok := c[source]
	return ok && cfg.Enabled
}

// EnabledSources returns enabled sources in SourceOrder
func (c SourcesConfig) EnabledSources() []SourceType {
	result := make([]SourceType, 0, len(SourceOrder))
	for _, s := range SourceOrder {
		if c.IsEnabled(s) {
			result = append(result, s)
		}
	}
	return result
}

// Workflow is a tenant-owned data-pull configuration.
// The core only reads workflows; they are managed by the configuration API.
type Workflow struct {
	shared.BaseEntity
	TenantID     uuid.UUID
	TeamID       *uuid.UUID
	Name         string
	Enabled      bool
	CronSchedule string
	Timezone     string
	Sources      SourcesConfig
	DateRange    DateRangeSpec
}

// Location returns the workflow's time zone, UTC if unset or unknown
func (w *Workflow) Location() *time.Location {
	if w.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HasSchedule returns true if the workflow should be triggered by cron
func (w *Workflow) HasSchedule() bool {
	return w.Enabled && w.CronSchedule != ""
}

// Validate validates the workflow configuration
func (w *Workflow) Validate() error {
	if w.TenantID == uuid.Nil {
		return ErrWorkflowInvalidTenant
	}
	for source, cfg := range w.Sources {
		if !source.IsValid() {
			return NewValidationError("sources", "unknown source "+string(source))
		}
		if err := validate.Struct(cfg); err != nil {
			return NewValidationError("sources."+string(source), err.Error())
		}
	}
	if len(w.Sources.EnabledSources()) == 0 {
		return ErrWorkflowNoEnabledSources
	}
	if w.Timezone != "" {
		if _, err := time.LoadLocation(w.Timezone); err != nil {
			return NewValidationError("timezone", err.Error())
		}
	}
	return w.DateRange.Validate()
}
