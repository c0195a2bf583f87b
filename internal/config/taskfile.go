package config

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"

	"github.com/Project-Laminate/flairstar/internal/domain"
)

// TaskFileName is the task-configuration document expected alongside
// the input data.
const TaskFileName = "task.json"

// rawRule mirrors the wire form of a rule before value typing
type rawRule struct {
	Tag       string      `mapstructure:"tag"`
	Operation string      `mapstructure:"operation"`
	Value     interface{} `mapstructure:"value"`
	Required  *bool       `mapstructure:"required"`
}

type rawPattern struct {
	Rules []rawRule `mapstructure:"rules"`
}

// ParsePayload parses a task-configuration JSON document (either the
// inline payload or the contents of task.json) into a Selection and
// SendConfig. The document must carry
// process.settings.processing.{swi_pattern,flair_pattern}.
func ParsePayload(data []byte) (Selection, domain.SendConfig, error) {
	var send domain.SendConfig

	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return Selection{}, send, fmt.Errorf("%w: malformed task configuration: %v", domain.ErrConfig, err)
	}

	if !v.IsSet("process.settings.processing") {
		return Selection{}, send, fmt.Errorf(
			"%w: task configuration is missing process.settings.processing", domain.ErrConfig)
	}

	swi, err := parsePattern(v, "swi_pattern")
	if err != nil {
		return Selection{}, send, err
	}
	flair, err := parsePattern(v, "flair_pattern")
	if err != nil {
		return Selection{}, send, err
	}

	if v.IsSet("process.settings.dicom_send") {
		if err := v.UnmarshalKey("process.settings.dicom_send", &send); err != nil {
			return Selection{}, send, fmt.Errorf("%w: malformed dicom_send: %v", domain.ErrConfig, err)
		}
		if err := send.Validate(); err != nil {
			return Selection{}, send, err
		}
	}

	sel := Selection{Strategy: StrategyPattern, SWIPattern: swi, FLAIRPattern: flair}
	if err := sel.Validate(); err != nil {
		return Selection{}, send, err
	}
	return sel, send, nil
}

// LoadTaskFile reads and parses <dir>/task.json. A missing file is
// ErrTaskFileNotFound so the resolver can fall through cleanly.
func LoadTaskFile(dir string) (Selection, domain.SendConfig, error) {
	path := filepath.Join(dir, TaskFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Selection{}, domain.SendConfig{}, fmt.Errorf("%w: %s", domain.ErrTaskFileNotFound, path)
		}
		return Selection{}, domain.SendConfig{}, fmt.Errorf("%w: reading %s: %v", domain.ErrConfig, path, err)
	}
	return ParsePayload(data)
}

func parsePattern(v *viper.Viper, name string) (domain.Pattern, error) {
	key := "process.settings.processing." + name
	if !v.IsSet(key) {
		return domain.Pattern{}, fmt.Errorf("%w: task configuration is missing %s", domain.ErrConfig, name)
	}

	var raw rawPattern
	if err := v.UnmarshalKey(key, &raw); err != nil {
		return domain.Pattern{}, fmt.Errorf("%w: malformed %s: %v", domain.ErrConfig, name, err)
	}

	p := domain.Pattern{Name: name, Rules: make([]domain.Rule, 0, len(raw.Rules))}
	for i, rr := range raw.Rules {
		r, err := normalizeRule(rr)
		if err != nil {
			return domain.Pattern{}, fmt.Errorf("%s rule %d: %w", name, i, err)
		}
		p.Rules = append(p.Rules, r)
	}
	if err := p.Validate(); err != nil {
		return domain.Pattern{}, err
	}
	return p, nil
}

// normalizeRule converts the untyped wire value into the tagged Value
// form the rule's operation expects. Typing mistakes are configuration
// errors here, never evaluation-time surprises.
func normalizeRule(rr rawRule) (domain.Rule, error) {
	op := domain.Operation(rr.Operation)
	r := domain.Rule{Tag: rr.Tag, Op: op, Required: true}
	if rr.Required != nil {
		r.Required = *rr.Required
	}
	if !op.IsValid() {
		return r, fmt.Errorf("%w: unknown operation %q", domain.ErrRule, rr.Operation)
	}

	switch op {
	case domain.OpContainsAll, domain.OpContainsAny:
		list, err := toStringList(rr.Value)
		if err != nil {
			return r, fmt.Errorf("%w: %s: %v", domain.ErrRule, op, err)
		}
		r.Value = domain.ListValue(list...)

	case domain.OpRange:
		low, high, err := toRange(rr.Value)
		if err != nil {
			return r, fmt.Errorf("%w: range: %v", domain.ErrRule, err)
		}
		r.Value = domain.RangeValue(low, high)

	case domain.OpGreaterThan, domain.OpLessThan:
		n, err := toFloat(rr.Value)
		if err != nil {
			return r, fmt.Errorf("%w: %s: %v", domain.ErrRule, op, err)
		}
		r.Value = domain.NumberValue(n)

	default:
		switch v := rr.Value.(type) {
		case string:
			r.Value = domain.TextValue(v)
		case float64, float32, int, int64:
			n, _ := toFloat(v)
			r.Value = domain.NumberValue(n)
		default:
			return r, fmt.Errorf("%w: %s requires a scalar value, got %T", domain.ErrRule, op, rr.Value)
		}
	}

	if err := r.Validate(); err != nil {
		return r, err
	}
	return r, nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to number", v)
	}
}

func toStringList(v interface{}) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []interface{}:
		out := make([]string, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("list item %d is %T, want string", i, item)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("requires a string list, got %T", v)
	}
}

// toRange accepts the pair form [low, high] and the object form
// {"min": low, "max": high}; an absent object bound is open.
func toRange(v interface{}) (float64, float64, error) {
	switch rv := v.(type) {
	case []interface{}:
		if len(rv) != 2 {
			return 0, 0, fmt.Errorf("pair form needs exactly 2 elements, got %d", len(rv))
		}
		low, err := toFloat(rv[0])
		if err != nil {
			return 0, 0, err
		}
		high, err := toFloat(rv[1])
		if err != nil {
			return 0, 0, err
		}
		return low, high, nil
	case map[string]interface{}:
		low, high := math.Inf(-1), math.Inf(1)
		if raw, ok := rv["min"]; ok {
			n, err := toFloat(raw)
			if err != nil {
				return 0, 0, err
			}
			low = n
		}
		if raw, ok := rv["max"]; ok {
			n, err := toFloat(raw)
			if err != nil {
				return 0, 0, err
			}
			high = n
		}
		return low, high, nil
	default:
		return 0, 0, fmt.Errorf("requires [low, high] or {min, max}, got %T", v)
	}
}
