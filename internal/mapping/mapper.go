package mapping

import (
	"sort"
	"strings"

	"github.com/checkfox/leadroute/internal/models"
)

// Normalize translates a source's raw payload into the canonical record.
//
// Each mapping rule reads rawPayload[source_field]; when the exact key is
// absent a relaxed key match is tried (case, underscores and spaces
// ignored), then the rule's default value, then the field is omitted.
// Static rules emit their default verbatim. Raw keys consumed by no rule
// are returned as unknown field names for operator triage; they never block
// the lead.
func Normalize(rules []models.MappingRule, rawPayload models.JSONB) (models.JSONB, []string) {
	canonical := make(models.JSONB, len(rules))

	// Relaxed-key index over the raw payload
	relaxed := make(map[string]string, len(rawPayload))
	for key := range rawPayload {
		relaxed[relaxKey(key)] = key
	}

	consumed := make(map[string]bool, len(rawPayload))

	for _, rule := range rules {
		if rule.TargetField == "" {
			continue
		}

		if rule.IsStatic {
			canonical[rule.TargetField] = rule.DefaultValue
			continue
		}

		value, sourceKey, found := lookup(rawPayload, relaxed, rule.SourceField)
		if found {
			consumed[sourceKey] = true
		}

		switch {
		case found && value != nil:
			canonical[rule.TargetField] = value
		case rule.DefaultValue != "":
			canonical[rule.TargetField] = rule.DefaultValue
		}
	}

	var unknown []string
	for key := range rawPayload {
		if !consumed[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	return canonical, unknown
}

// Denormalize translates the canonical record into a destination's expected
// payload. Static rules emit their default unconditionally; dynamic rules
// fall back to the default when the canonical field is absent, else omit
// the key. Collisions resolve last-write-wins in rule order.
func Denormalize(rules []models.MappingRule, canonical models.JSONB) models.JSONB {
	outbound := make(models.JSONB, len(rules))

	for _, rule := range rules {
		if rule.TargetField == "" {
			continue
		}

		if rule.IsStatic {
			outbound[rule.TargetField] = rule.DefaultValue
			continue
		}

		value, ok := canonical[rule.SourceField]
		switch {
		case ok && value != nil:
			outbound[rule.TargetField] = value
		case rule.DefaultValue != "":
			outbound[rule.TargetField] = rule.DefaultValue
		}
	}

	return outbound
}

// lookup finds a raw value by exact key first, then by relaxed key
func lookup(payload models.JSONB, relaxed map[string]string, sourceField string) (interface{}, string, bool) {
	if value, ok := payload[sourceField]; ok {
		return value, sourceField, true
	}

	if rawKey, ok := relaxed[relaxKey(sourceField)]; ok {
		return payload[rawKey], rawKey, true
	}

	return nil, "", false
}

// relaxKey lowers a field name and strips underscores and spaces, so
// "Phone_Number" finds a rule written against "phonenumber" and vice versa
func relaxKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, "_", "")
	key = strings.ReplaceAll(key, " ", "")
	return key
}
