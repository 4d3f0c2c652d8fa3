package rules

import (
	"fmt"
	"regexp"

	"github.com/checkfox/leadroute/internal/models"
)

// MaxGroupDepth bounds rule tree nesting. Value-typed decoding already
// guarantees the tree is acyclic; the depth limit guards against runaway
// nesting from misbehaving clients.
const MaxGroupDepth = 16

// ValidateRuleGroup checks a filtering tree at save time: unknown logic or
// operator, empty or dangling field references, invalid regex patterns, and
// excessive nesting are rejected with a field-level ConfigurationError.
// knownFields is the set of registered SystemField keys; a nil set skips the
// dangling-reference check.
func ValidateRuleGroup(group *models.RuleGroup, knownFields map[string]bool) error {
	if group == nil {
		return nil
	}
	return validateGroup(group, knownFields, 1, "rules.filtering")
}

func validateGroup(group *models.RuleGroup, knownFields map[string]bool, depth int, path string) error {
	if depth > MaxGroupDepth {
		return models.NewConfigurationError(path, fmt.Sprintf("rule groups nested deeper than %d levels", MaxGroupDepth))
	}

	if !group.Logic.IsValid() {
		return models.NewConfigurationError(path+".logic", fmt.Sprintf("unknown logic %q", group.Logic))
	}

	for i, node := range group.Conditions {
		childPath := fmt.Sprintf("%s.conditions[%d]", path, i)

		switch {
		case node.Group != nil:
			if err := validateGroup(node.Group, knownFields, depth+1, childPath); err != nil {
				return err
			}

		case node.Condition != nil:
			if err := validateCondition(node.Condition, knownFields, childPath); err != nil {
				return err
			}

		default:
			return models.NewConfigurationError(childPath, "node is neither a condition nor a group")
		}
	}

	return nil
}

func validateCondition(cond *models.RuleCondition, knownFields map[string]bool, path string) error {
	if cond.Field == "" {
		return models.NewConfigurationError(path+".field", "field is required")
	}

	if knownFields != nil && !knownFields[cond.Field] {
		return models.NewConfigurationError(path+".field", fmt.Sprintf("field %q is not a registered system field", cond.Field))
	}

	if !KnownOperator(cond.Op) {
		return models.NewConfigurationError(path+".op", fmt.Sprintf("unknown operator %q", cond.Op))
	}

	if cond.Op == models.OpRegex {
		if _, err := regexp.Compile(cond.Value); err != nil {
			return models.NewConfigurationError(path+".value", fmt.Sprintf("invalid regex pattern: %v", err))
		}
	}

	return nil
}

// ValidateMappingRules checks a mapping rule list at save time. Static rules
// need a target and a value; dynamic rules need both sides of the
// translation.
func ValidateMappingRules(rules []models.MappingRule) error {
	for i, rule := range rules {
		path := fmt.Sprintf("mapping.rules[%d]", i)

		if rule.TargetField == "" {
			return models.NewConfigurationError(path+".target_field", "target_field is required")
		}

		if rule.IsStatic {
			if rule.DefaultValue == "" {
				return models.NewConfigurationError(path+".default_value", "static rules require a default_value")
			}
			continue
		}

		if rule.SourceField == "" {
			return models.NewConfigurationError(path+".source_field", "source_field is required for non-static rules")
		}
	}

	return nil
}
