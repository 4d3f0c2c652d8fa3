package models

// MappingRule translates one field between a raw payload and the canonical
// record (inbound, on sources) or between the canonical record and an
// outbound payload (on campaigns).
//
// When IsStatic is set the rule ignores SourceField and emits DefaultValue
// verbatim under TargetField on every lead.
type MappingRule struct {
	SourceField  string `json:"source_field"`
	TargetField  string `json:"target_field"`
	DefaultValue string `json:"default_value,omitempty"`
	IsStatic     bool   `json:"is_static,omitempty"`
}

// SourceMapping is the ordered rule list attached to a source or campaign.
// Later rules win when two rules write the same target field.
type SourceMapping struct {
	Rules []MappingRule `json:"rules"`
}
