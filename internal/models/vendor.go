package models

import "time"

// DocumentStatus enables or disables a configuration document
type DocumentStatus string

const (
	StatusEnabled  DocumentStatus = "enabled"
	StatusDisabled DocumentStatus = "disabled"
)

// DupeTimeframe bounds how long duplicate fingerprints suppress re-acceptance
type DupeTimeframe string

const (
	DupeTimeframeDisabled DupeTimeframe = "disabled"
	DupeTimeframe24h      DupeTimeframe = "24h"
	DupeTimeframe7d       DupeTimeframe = "7d"
	DupeTimeframe30d      DupeTimeframe = "30d"
)

// Window returns the suppression window, or zero when the timeframe is
// disabled or unknown
func (t DupeTimeframe) Window() time.Duration {
	switch t {
	case DupeTimeframe24h:
		return 24 * time.Hour
	case DupeTimeframe7d:
		return 7 * 24 * time.Hour
	case DupeTimeframe30d:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// SourceConfig holds the per-source admission and duplicate settings
type SourceConfig struct {
	Status    DocumentStatus `json:"status"`
	RateLimit int            `json:"rate_limit"` // requests per minute, 0 = unlimited

	// Duplicate checking
	DupeCheck                   bool          `json:"dupe_check"`
	DupeFields                  []string      `json:"dupe_fields"`
	DupeCheckDays               int           `json:"dupe_check_days"` // 0 = permanent non-reacceptance
	DupeCheckTimeframe          DupeTimeframe `json:"dupe_check_timeframe"`
	ExcludeFromGlobalDupeChecks bool          `json:"exclude_from_global_dupe_checks"`
	AppendDupes                 bool          `json:"append_dupes"`
	UseAsSuppressionList        bool          `json:"use_as_suppression_list"`
	SendFilteredLeadsTo         string        `json:"send_filtered_leads_to,omitempty"` // destination ID
}

// DupeWindow resolves the effective suppression window. An explicit
// timeframe wins over the day-based control; zero means no expiry.
func (c SourceConfig) DupeWindow() time.Duration {
	if c.DupeCheckTimeframe != "" && c.DupeCheckTimeframe != DupeTimeframeDisabled {
		return c.DupeCheckTimeframe.Window()
	}
	if c.DupeCheckDays > 0 {
		return time.Duration(c.DupeCheckDays) * 24 * time.Hour
	}
	return 0
}

// SourceValidationConfig points at an optional third-party validation API
// consulted before a lead is routed
type SourceValidationConfig struct {
	ValidationURL    string `json:"validation_url,omitempty"`
	ValidationField  string `json:"validation_field,omitempty"`
	ValidationAPIKey string `json:"validation_api_key,omitempty"`
}

// Enabled reports whether a validation call is configured
func (c SourceValidationConfig) Enabled() bool {
	return c.ValidationURL != ""
}

// Source is a configured inbound channel belonging to a vendor
type Source struct {
	ID         string                 `json:"id"`
	VendorID   string                 `json:"vendor_id"`
	Name       string                 `json:"name"`
	Type       string                 `json:"type"` // api, webhook, file
	APIKey     string                 `json:"api_key"`
	Config     SourceConfig           `json:"config"`
	Validation SourceValidationConfig `json:"validation"`
	Mapping    SourceMapping          `json:"mapping"`
	Rules      SourceRules            `json:"rules"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Vendor owns one or more sources
type Vendor struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    DocumentStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}
