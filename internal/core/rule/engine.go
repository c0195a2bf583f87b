package rule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Project-Laminate/flairstar/internal/domain"
)

// Compiled is a rule with its operand pre-processed for evaluation.
// Structural problems (unknown operation, bad regex, malformed range)
// surface at compile time; evaluation itself never fails.
type Compiled struct {
	Rule  domain.Rule
	regex *regexp.Regexp
}

// Compile validates a rule and pre-compiles its operand
func Compile(r domain.Rule) (*Compiled, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	c := &Compiled{Rule: r}
	if r.Op == domain.OpRegex {
		re, err := regexp.Compile(r.Value.Text)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid regex %q: %v", domain.ErrRule, r.Value.Text, err)
		}
		c.regex = re
	}
	return c, nil
}

// CompilePattern compiles every rule of a pattern
func CompilePattern(p domain.Pattern) ([]*Compiled, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	compiled := make([]*Compiled, 0, len(p.Rules))
	for i, r := range p.Rules {
		c, err := Compile(r)
		if err != nil {
			return nil, fmt.Errorf("pattern %q rule %d: %w", p.Name, i, err)
		}
		compiled = append(compiled, c)
	}
	return compiled, nil
}

// Evaluate tests a compiled rule against one series. A missing
// attribute matches only when the rule is not required; well-typed
// mismatches (e.g. a numeric operation on non-numeric data) are
// non-matches, never errors.
func (c *Compiled) Evaluate(series domain.SeriesDescriptor) bool {
	actual, ok := series.Attribute(c.Rule.Tag)
	if !ok {
		return !c.Rule.Required
	}

	switch c.Rule.Op {
	case domain.OpEquals:
		return actual == c.operandText()
	case domain.OpNotEquals:
		return actual != c.operandText()
	case domain.OpContains:
		return strings.Contains(actual, c.operandText())
	case domain.OpNotContains:
		return !strings.Contains(actual, c.operandText())
	case domain.OpContainsAll:
		for _, v := range c.Rule.Value.List {
			if !strings.Contains(actual, v) {
				return false
			}
		}
		return true
	case domain.OpContainsAny:
		for _, v := range c.Rule.Value.List {
			if strings.Contains(actual, v) {
				return true
			}
		}
		return false
	case domain.OpStartsWith:
		return strings.HasPrefix(actual, c.operandText())
	case domain.OpEndsWith:
		return strings.HasSuffix(actual, c.operandText())
	case domain.OpRegex:
		return c.regex.MatchString(actual)
	case domain.OpRange:
		n, err := parseNumeric(actual)
		if err != nil {
			return false
		}
		return n >= c.Rule.Value.Low && n <= c.Rule.Value.High
	case domain.OpGreaterThan:
		n, err := parseNumeric(actual)
		if err != nil {
			return false
		}
		return n > c.Rule.Value.Number
	case domain.OpLessThan:
		n, err := parseNumeric(actual)
		if err != nil {
			return false
		}
		return n < c.Rule.Value.Number
	}
	return false
}

// operandText renders the scalar operand as the string it is compared as
func (c *Compiled) operandText() string {
	if c.Rule.Value.Kind == domain.ValueNumber {
		return strconv.FormatFloat(c.Rule.Value.Number, 'f', -1, 64)
	}
	return c.Rule.Value.Text
}

func parseNumeric(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
