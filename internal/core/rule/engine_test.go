package rule

import (
	"errors"
	"testing"

	"github.com/Project-Laminate/flairstar/internal/domain"
)

func series(attrs map[string]string) domain.SeriesDescriptor {
	return domain.SeriesDescriptor{SeriesInstanceUID: "1.2.3", Attributes: attrs}
}

func mustCompile(t *testing.T, r domain.Rule) *Compiled {
	t.Helper()
	c, err := Compile(r)
	if err != nil {
		t.Fatalf("Compile(%+v) failed: %v", r, err)
	}
	return c
}

func TestEvaluate_StringOperations(t *testing.T) {
	s := series(map[string]string{"SeriesDescription": "t2_space_dark-fluid"})

	cases := []struct {
		op    domain.Operation
		value string
		want  bool
	}{
		{domain.OpEquals, "t2_space_dark-fluid", true},
		{domain.OpEquals, "T2_SPACE_DARK-FLUID", false}, // case-sensitive
		{domain.OpNotEquals, "localizer", true},
		{domain.OpContains, "dark-fluid", true},
		{domain.OpContains, "SWI", false},
		{domain.OpNotContains, "SWI", true},
		{domain.OpStartsWith, "t2_space", true},
		{domain.OpStartsWith, "space", false},
		{domain.OpEndsWith, "fluid", true},
		{domain.OpEndsWith, "t2", false},
	}

	for _, tc := range cases {
		c := mustCompile(t, domain.Rule{
			Tag: "SeriesDescription", Op: tc.op,
			Value: domain.TextValue(tc.value), Required: true,
		})
		if got := c.Evaluate(s); got != tc.want {
			t.Errorf("%s %q: expected %v, got %v", tc.op, tc.value, tc.want, got)
		}
	}
}

func TestEvaluate_ContainsAll(t *testing.T) {
	s := series(map[string]string{"SeriesDescription": "AxB"})

	all := mustCompile(t, domain.Rule{
		Tag: "SeriesDescription", Op: domain.OpContainsAll,
		Value: domain.ListValue("A", "B"), Required: true,
	})
	if !all.Evaluate(s) {
		t.Error("Expected contains_all [A B] to match AxB")
	}

	if all.Evaluate(series(map[string]string{"SeriesDescription": "A"})) {
		t.Error("Expected contains_all [A B] to reject bare A")
	}
}

func TestEvaluate_ContainsAny(t *testing.T) {
	c := mustCompile(t, domain.Rule{
		Tag: "SeriesDescription", Op: domain.OpContainsAny,
		Value: domain.ListValue("SWI", "swi"), Required: true,
	})

	if !c.Evaluate(series(map[string]string{"SeriesDescription": "swi_tra"})) {
		t.Error("Expected contains_any to match on second alternative")
	}
	if c.Evaluate(series(map[string]string{"SeriesDescription": "flair"})) {
		t.Error("Expected contains_any to reject value containing neither")
	}
}

func TestEvaluate_RangeInclusive(t *testing.T) {
	c := mustCompile(t, domain.Rule{
		Tag: "EchoTime", Op: domain.OpRange,
		Value: domain.RangeValue(10, 20), Required: true,
	})

	cases := []struct {
		actual string
		want   bool
	}{
		{"10", true},
		{"20", true},
		{"15.5", true},
		{"9", false},
		{"21", false},
		{"not-a-number", false},
	}
	for _, tc := range cases {
		if got := c.Evaluate(series(map[string]string{"EchoTime": tc.actual})); got != tc.want {
			t.Errorf("range [10,20] against %q: expected %v, got %v", tc.actual, tc.want, got)
		}
	}
}

func TestEvaluate_NumericComparisons(t *testing.T) {
	gt := mustCompile(t, domain.Rule{
		Tag: "SeriesNumber", Op: domain.OpGreaterThan,
		Value: domain.NumberValue(5), Required: true,
	})
	lt := mustCompile(t, domain.Rule{
		Tag: "SeriesNumber", Op: domain.OpLessThan,
		Value: domain.NumberValue(5), Required: true,
	})

	if !gt.Evaluate(series(map[string]string{"SeriesNumber": "6"})) {
		t.Error("Expected 6 > 5")
	}
	if gt.Evaluate(series(map[string]string{"SeriesNumber": "5"})) {
		t.Error("Expected 5 > 5 to be false")
	}
	if !lt.Evaluate(series(map[string]string{"SeriesNumber": "4"})) {
		t.Error("Expected 4 < 5")
	}
	if gt.Evaluate(series(map[string]string{"SeriesNumber": "MR"})) {
		t.Error("Expected non-numeric actual value to be a non-match, not an error")
	}
}

func TestEvaluate_Regex(t *testing.T) {
	c := mustCompile(t, domain.Rule{
		Tag: "SeriesDescription", Op: domain.OpRegex,
		Value: domain.TextValue(`dark.fluid`), Required: true,
	})

	// search semantics: pattern anywhere in the value
	if !c.Evaluate(series(map[string]string{"SeriesDescription": "t2_space_dark-fluid_sag"})) {
		t.Error("Expected regex to search within the value")
	}
}

func TestCompile_InvalidRegex(t *testing.T) {
	_, err := Compile(domain.Rule{
		Tag: "SeriesDescription", Op: domain.OpRegex,
		Value: domain.TextValue(`[unclosed`), Required: true,
	})
	if !errors.Is(err, domain.ErrRule) {
		t.Errorf("Expected ErrRule for invalid regex, got %v", err)
	}
}

func TestCompile_UnknownOperation(t *testing.T) {
	_, err := Compile(domain.Rule{
		Tag: "SeriesDescription", Op: "fuzzy",
		Value: domain.TextValue("x"), Required: true,
	})
	if !errors.Is(err, domain.ErrRule) {
		t.Errorf("Expected ErrRule for unknown operation, got %v", err)
	}
}

func TestEvaluate_MissingAttribute(t *testing.T) {
	required := mustCompile(t, domain.Rule{
		Tag: "ProtocolName", Op: domain.OpEquals,
		Value: domain.TextValue("swi"), Required: true,
	})
	optional := mustCompile(t, domain.Rule{
		Tag: "ProtocolName", Op: domain.OpEquals,
		Value: domain.TextValue("swi"), Required: false,
	})

	s := series(map[string]string{"SeriesDescription": "swi"})
	if required.Evaluate(s) {
		t.Error("Expected required rule on missing attribute to be a non-match")
	}
	if !optional.Evaluate(s) {
		t.Error("Expected non-required rule on missing attribute to pass")
	}
}

func TestEvaluate_NumericOperandAgainstText(t *testing.T) {
	// equals with a numeric operand compares the decimal rendering
	c := mustCompile(t, domain.Rule{
		Tag: "SeriesNumber", Op: domain.OpEquals,
		Value: domain.NumberValue(1000), Required: true,
	})
	if !c.Evaluate(series(map[string]string{"SeriesNumber": "1000"})) {
		t.Error("Expected numeric equals to match its decimal string form")
	}
}

func TestCompilePattern_SingleRuleIsRequired(t *testing.T) {
	p := domain.Pattern{Name: "swi_pattern", Rules: []domain.Rule{
		{Tag: "SeriesDescription", Op: domain.OpEquals, Value: domain.TextValue("SWI_Images"), Required: true},
	}}

	compiled, err := CompilePattern(p)
	if err != nil {
		t.Fatalf("CompilePattern failed: %v", err)
	}
	if len(compiled) != 1 || !compiled[0].Rule.Required {
		t.Error("Expected the single rule to be treated as required")
	}
}
