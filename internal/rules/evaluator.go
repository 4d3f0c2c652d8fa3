package rules

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/checkfox/leadroute/internal/models"
)

// Record is a flat mapping of canonical field key to string-typed value.
// An absent key signals "field not present".
type Record map[string]string

// RecordFromJSONB flattens a lead's canonical data into a Record.
// Scalar values are stringified; nil values and nested structures are
// dropped, since conditions only compare flat fields.
func RecordFromJSONB(data models.JSONB) Record {
	record := make(Record, len(data))
	for key, value := range data {
		switch v := value.(type) {
		case nil, map[string]interface{}, []interface{}:
			continue
		case string:
			record[key] = v
		case bool:
			record[key] = strconv.FormatBool(v)
		case float64:
			record[key] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			record[key] = fmt.Sprintf("%v", v)
		}
	}
	return record
}

// operators maps each condition operator to a comparison on the field's
// present value. Missing fields are handled before dispatch: every operator
// evaluates false when the field is absent, including neq/nin. A returned
// error marks a runtime failure the caller recovers as non-match.
var operators = map[models.Operator]func(fieldVal, condVal string) (bool, error){
	models.OpEq:  func(f, c string) (bool, error) { return f == c, nil },
	models.OpNeq: func(f, c string) (bool, error) { return f != c, nil },
	models.OpGt:  numericOp(func(f, c float64) bool { return f > c }),
	models.OpLt:  numericOp(func(f, c float64) bool { return f < c }),
	models.OpGte: numericOp(func(f, c float64) bool { return f >= c }),
	models.OpLte: numericOp(func(f, c float64) bool { return f <= c }),
	models.OpIn:  func(f, c string) (bool, error) { return inList(f, c), nil },
	models.OpNin: func(f, c string) (bool, error) { return !inList(f, c), nil },
	models.OpContains: func(f, c string) (bool, error) {
		return strings.Contains(strings.ToLower(f), strings.ToLower(c)), nil
	},
	models.OpRegex: matchRegex,
}

// KnownOperator reports whether op has an evaluation function
func KnownOperator(op models.Operator) bool {
	_, ok := operators[op]
	return ok
}

// Evaluate runs a filtering tree against a record. A nil tree accepts
// everything. The walk is a pure recursive fold; safe for unlimited
// concurrent use.
func Evaluate(group *models.RuleGroup, record Record) bool {
	if group == nil {
		return true
	}
	return evaluateGroup(group, record)
}

func evaluateGroup(group *models.RuleGroup, record Record) bool {
	switch group.Logic {
	case models.LogicAnd:
		// Vacuous truth: an empty and-group matches
		for _, node := range group.Conditions {
			if !evaluateNode(node, record) {
				return false
			}
		}
		return true

	case models.LogicOr:
		// An empty or-group matches nothing
		for _, node := range group.Conditions {
			if evaluateNode(node, record) {
				return true
			}
		}
		return false

	default:
		// Unknown logic is rejected at save time; recover as non-match here
		slog.Debug("unknown rule group logic", "logic", string(group.Logic))
		return false
	}
}

func evaluateNode(node models.RuleNode, record Record) bool {
	if node.Group != nil {
		return evaluateGroup(node.Group, record)
	}
	if node.Condition != nil {
		return EvaluateCondition(node.Condition, record)
	}
	return false
}

// EvaluateCondition evaluates a single condition against a record.
// Runtime failures (bad regex, non-numeric comparison) evaluate false and
// never propagate.
func EvaluateCondition(cond *models.RuleCondition, record Record) bool {
	fieldVal, present := record[cond.Field]
	if !present {
		return false
	}

	op, ok := operators[cond.Op]
	if !ok {
		slog.Debug("unknown rule operator", "op", string(cond.Op), "field", cond.Field)
		return false
	}

	match, err := op(fieldVal, cond.Value)
	if err != nil {
		evalErr := &models.EvaluationError{
			Field:   cond.Field,
			Op:      string(cond.Op),
			Message: "condition recovered as non-match",
			Err:     err,
		}
		slog.Debug("rule condition failed to evaluate", "error", evalErr.Error())
		return false
	}
	return match
}

// numericOp wraps a float comparison; either side failing to parse is a
// runtime failure
func numericOp(cmp func(f, c float64) bool) func(string, string) (bool, error) {
	return func(fieldVal, condVal string) (bool, error) {
		f, err := strconv.ParseFloat(strings.TrimSpace(fieldVal), 64)
		if err != nil {
			return false, fmt.Errorf("field value %q is not numeric", fieldVal)
		}
		c, err := strconv.ParseFloat(strings.TrimSpace(condVal), 64)
		if err != nil {
			return false, fmt.Errorf("condition value %q is not numeric", condVal)
		}
		return cmp(f, c), nil
	}
}

// inList treats the condition value as a comma-separated list; elements are
// trimmed and compared case-insensitively
func inList(fieldVal, condVal string) bool {
	needle := strings.ToLower(strings.TrimSpace(fieldVal))
	for _, elem := range strings.Split(condVal, ",") {
		if strings.ToLower(strings.TrimSpace(elem)) == needle {
			return true
		}
	}
	return false
}

// matchRegex compiles the condition value as a pattern; an invalid pattern
// is a runtime failure
func matchRegex(fieldVal, condVal string) (bool, error) {
	re, err := regexp.Compile(condVal)
	if err != nil {
		return false, fmt.Errorf("invalid pattern %q: %w", condVal, err)
	}
	return re.MatchString(fieldVal), nil
}
