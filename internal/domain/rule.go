package domain

import (
	"fmt"
	"math"
)

// Operation identifies how a rule value is compared against a DICOM
// attribute value. Comparisons are case-sensitive.
type Operation string

const (
	OpEquals      Operation = "equals"
	OpNotEquals   Operation = "not_equals"
	OpContains    Operation = "contains"
	OpNotContains Operation = "not_contains"
	OpContainsAll Operation = "contains_all"
	OpContainsAny Operation = "contains_any"
	OpStartsWith  Operation = "starts_with"
	OpEndsWith    Operation = "ends_with"
	OpRegex       Operation = "regex"
	OpRange       Operation = "range"
	OpGreaterThan Operation = "greater_than"
	OpLessThan    Operation = "less_than"
)

// IsValid checks if the operation is a known value
func (o Operation) IsValid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpNotContains,
		OpContainsAll, OpContainsAny, OpStartsWith, OpEndsWith,
		OpRegex, OpRange, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

// ValueKind discriminates the typed forms a rule value can take
type ValueKind int

const (
	ValueText ValueKind = iota
	ValueNumber
	ValueRange
	ValueTextList
)

// Value is the typed rule operand, validated when the rule is parsed.
// Exactly one form is populated, indicated by Kind.
type Value struct {
	Kind   ValueKind
	Text   string
	Number float64
	Low    float64
	High   float64
	List   []string
}

// TextValue builds a text operand
func TextValue(s string) Value { return Value{Kind: ValueText, Text: s} }

// NumberValue builds a numeric operand
func NumberValue(n float64) Value { return Value{Kind: ValueNumber, Number: n} }

// RangeValue builds an inclusive [low, high] operand. Open ends are
// expressed with ±Inf.
func RangeValue(low, high float64) Value {
	return Value{Kind: ValueRange, Low: low, High: high}
}

// ListValue builds a string-list operand for contains_all / contains_any
func ListValue(items ...string) Value {
	return Value{Kind: ValueTextList, List: items}
}

// Rule matches one DICOM attribute against a value using an operation.
// Required defaults to true at parse time; a non-required rule passes
// when the attribute is absent from the series.
type Rule struct {
	Tag      string
	Op       Operation
	Value    Value
	Required bool
}

// Validate checks the rule structure. Semantic validation of the
// operand (regex compilation, range bounds) happens in the rule engine
// compile step.
func (r Rule) Validate() error {
	if r.Tag == "" {
		return fmt.Errorf("%w: missing tag", ErrRule)
	}
	if !r.Op.IsValid() {
		return fmt.Errorf("%w: unknown operation %q", ErrRule, r.Op)
	}
	switch r.Op {
	case OpContainsAll, OpContainsAny:
		if r.Value.Kind != ValueTextList || len(r.Value.List) == 0 {
			return fmt.Errorf("%w: %s requires a non-empty string list", ErrRule, r.Op)
		}
	case OpRange:
		if r.Value.Kind != ValueRange {
			return fmt.Errorf("%w: range requires a [low, high] pair", ErrRule)
		}
		if math.IsNaN(r.Value.Low) || math.IsNaN(r.Value.High) {
			return fmt.Errorf("%w: range bounds must be numeric", ErrRule)
		}
		if r.Value.Low > r.Value.High {
			return fmt.Errorf("%w: range low %v exceeds high %v", ErrRule, r.Value.Low, r.Value.High)
		}
	case OpGreaterThan, OpLessThan:
		if r.Value.Kind != ValueNumber {
			return fmt.Errorf("%w: %s requires a numeric value", ErrRule, r.Op)
		}
	default:
		if r.Value.Kind == ValueTextList || r.Value.Kind == ValueRange {
			return fmt.Errorf("%w: %s requires a scalar value", ErrRule, r.Op)
		}
	}
	return nil
}

// Pattern is a named, ordered set of rules combined with AND semantics.
type Pattern struct {
	Name  string
	Rules []Rule
}

// Validate checks that the pattern has at least one structurally valid rule
func (p Pattern) Validate() error {
	if len(p.Rules) == 0 {
		return fmt.Errorf("%w: pattern %q has no rules", ErrRule, p.Name)
	}
	for i, r := range p.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("pattern %q rule %d: %w", p.Name, i, err)
		}
	}
	return nil
}

// Tags returns the set of attribute tags the pattern references
func (p Pattern) Tags() []string {
	seen := make(map[string]bool, len(p.Rules))
	var tags []string
	for _, r := range p.Rules {
		if !seen[r.Tag] {
			seen[r.Tag] = true
			tags = append(tags, r.Tag)
		}
	}
	return tags
}
