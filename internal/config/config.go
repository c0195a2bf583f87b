package config

import (
	"fmt"
	"strings"

	"github.com/Project-Laminate/flairstar/internal/domain"
)

// Strategy identifies how the SWI and FLAIR series are selected
type Strategy int

const (
	// StrategyPattern selects by evaluating rule patterns against the inventory
	StrategyPattern Strategy = iota

	// StrategyUID selects by explicit SeriesInstanceUID lookup
	StrategyUID
)

// String returns the string representation of the strategy
func (s Strategy) String() string {
	if s == StrategyUID {
		return "uid"
	}
	return "pattern"
}

// Selection is the resolved series-selection configuration. Exactly one
// strategy is active per run.
type Selection struct {
	Strategy Strategy

	// Populated when Strategy == StrategyUID
	SWIUID   string
	FLAIRUID string

	// Populated when Strategy == StrategyPattern
	SWIPattern   domain.Pattern
	FLAIRPattern domain.Pattern
}

// Validate checks the active strategy is fully specified
func (s Selection) Validate() error {
	switch s.Strategy {
	case StrategyUID:
		if s.SWIUID == "" || s.FLAIRUID == "" {
			return fmt.Errorf("%w: both SWI and FLAIR UIDs are required", domain.ErrConfig)
		}
	case StrategyPattern:
		if err := s.SWIPattern.Validate(); err != nil {
			return err
		}
		if err := s.FLAIRPattern.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown selection strategy", domain.ErrConfig)
	}
	return nil
}

// Tags returns the attribute tags the selection needs from the inventory
func (s Selection) Tags() []string {
	if s.Strategy == StrategyUID {
		return nil
	}
	seen := make(map[string]bool)
	var tags []string
	for _, t := range append(s.SWIPattern.Tags(), s.FLAIRPattern.Tags()...) {
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	return tags
}

// Config is the complete, immutable run configuration. It is built once
// at startup by Resolve and passed to every component; nothing reads
// process environment after that point.
type Config struct {
	InputDir  string
	OutputDir string
	TempDir   string

	Selection Selection
	Send      domain.SendConfig

	// CopyAll copies every input file into the output directory
	// verbatim after processing
	CopyAll bool

	// CallingAET is the local application entity title used when
	// opening associations
	CallingAET string

	// Source names the configuration source that won the priority
	// chain, for logging only
	Source string
}

// Validate checks the resolved configuration as a whole
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return fmt.Errorf("%w: input directory is required", domain.ErrConfig)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output directory is required", domain.ErrConfig)
	}
	if err := c.Selection.Validate(); err != nil {
		return err
	}
	return c.Send.Validate()
}

// ParseBool interprets the fixed accepted literal set for boolean
// environment values: "true", "yes" and "1", case-insensitively, are
// true; every other value, including the empty string, is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true
	}
	return false
}

// containsRule builds the single required rule a bare pattern string
// stands for: substring match on SeriesDescription.
func containsRule(value string) domain.Rule {
	return domain.Rule{
		Tag:      "SeriesDescription",
		Op:       domain.OpContains,
		Value:    domain.TextValue(value),
		Required: true,
	}
}

// PatternSelection builds a Selection from two bare pattern strings
func PatternSelection(swi, flair string) Selection {
	return Selection{
		Strategy:     StrategyPattern,
		SWIPattern:   domain.Pattern{Name: "swi_pattern", Rules: []domain.Rule{containsRule(swi)}},
		FLAIRPattern: domain.Pattern{Name: "flair_pattern", Rules: []domain.Rule{containsRule(flair)}},
	}
}

// UIDSelection builds a Selection from two explicit SeriesInstanceUIDs
func UIDSelection(swi, flair string) Selection {
	return Selection{Strategy: StrategyUID, SWIUID: swi, FLAIRUID: flair}
}
