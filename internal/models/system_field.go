package models

import "time"

// SystemField is a canonical field registry entry. Field keys normalize
// heterogeneous vendor field names platform-wide.
type SystemField struct {
	ID        string    `json:"id"`
	FieldKey  string    `json:"field_key"` // unique
	Label     string    `json:"label"`
	DataType  string    `json:"data_type"` // string, number, boolean, date
	Aliases   []string  `json:"aliases"`   // raw inbound names auto-mapped to this key
	CreatedAt time.Time `json:"created_at"`
}

// UnknownFieldStatus tracks operator triage of unrecognized inbound keys
type UnknownFieldStatus string

const (
	UnknownFieldUnmapped UnknownFieldStatus = "unmapped"
	UnknownFieldMapped   UnknownFieldStatus = "mapped"
	UnknownFieldIgnored  UnknownFieldStatus = "ignored"
)

// UnknownField records an inbound payload key with no mapping rule.
// Tracked for operator triage; never blocks routing.
type UnknownField struct {
	ID            int64              `json:"id" db:"id"`
	SourceID      string             `json:"source_id" db:"source_id"`
	FieldName     string             `json:"field_name" db:"field_name"`
	SampleValue   *string            `json:"sample_value,omitempty" db:"sample_value"`
	DetectedCount int                `json:"detected_count" db:"detected_count"`
	Status        UnknownFieldStatus `json:"status" db:"status"`
	FirstSeen     time.Time          `json:"first_seen" db:"first_seen"`
	LastSeen      time.Time          `json:"last_seen" db:"last_seen"`
}
