package models

import (
	"encoding/json"
	"fmt"
)

// Logic is the boolean fold applied to a rule group's children
type Logic string

const (
	// LogicAnd requires every child to match; an empty group matches
	LogicAnd Logic = "and"

	// LogicOr requires at least one child to match; an empty group does not
	LogicOr Logic = "or"
)

// IsValid checks if the logic is a known value
func (l Logic) IsValid() bool {
	return l == LogicAnd || l == LogicOr
}

// Operator is a comparison applied by a single rule condition
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpGte      Operator = "gte"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpNin      Operator = "nin"
	OpContains Operator = "contains"
	OpRegex    Operator = "regex"
)

// RuleCondition compares one canonical field against a value
type RuleCondition struct {
	Field string   `json:"field"`
	Op    Operator `json:"op"`
	Value string   `json:"value"`
}

// RuleGroup is a boolean combination of conditions and nested groups.
// The tree is strict: children are held by value, so cycles cannot be
// expressed.
type RuleGroup struct {
	Logic      Logic      `json:"logic"`
	Conditions []RuleNode `json:"conditions"`
}

// RuleNode is a tagged variant holding either a condition or a nested group.
// Exactly one of the two fields is non-nil.
type RuleNode struct {
	Condition *RuleCondition
	Group     *RuleGroup
}

// UnmarshalJSON decodes a node by shape: objects carrying a "logic" key are
// groups, everything else is a condition.
func (n *RuleNode) UnmarshalJSON(data []byte) error {
	var probe struct {
		Logic *Logic `json:"logic"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("invalid rule node: %w", err)
	}

	if probe.Logic != nil {
		var group RuleGroup
		if err := json.Unmarshal(data, &group); err != nil {
			return fmt.Errorf("invalid rule group: %w", err)
		}
		n.Group = &group
		n.Condition = nil
		return nil
	}

	var cond RuleCondition
	if err := json.Unmarshal(data, &cond); err != nil {
		return fmt.Errorf("invalid rule condition: %w", err)
	}
	n.Condition = &cond
	n.Group = nil
	return nil
}

// MarshalJSON encodes whichever variant the node holds
func (n RuleNode) MarshalJSON() ([]byte, error) {
	if n.Group != nil {
		return json.Marshal(n.Group)
	}
	if n.Condition != nil {
		return json.Marshal(n.Condition)
	}
	return nil, fmt.Errorf("empty rule node")
}

// SourceRules holds the filtering tree attached to a source or campaign.
// A nil Filtering tree accepts every lead.
type SourceRules struct {
	Filtering *RuleGroup `json:"filtering,omitempty"`
}

// Cond builds a leaf node; test and validation helpers use it to assemble
// trees without JSON round-trips.
func Cond(field string, op Operator, value string) RuleNode {
	return RuleNode{Condition: &RuleCondition{Field: field, Op: op, Value: value}}
}

// Grp builds a group node
func Grp(logic Logic, children ...RuleNode) RuleNode {
	return RuleNode{Group: &RuleGroup{Logic: logic, Conditions: children}}
}
