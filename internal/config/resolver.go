package config

import (
	"errors"
	"fmt"

	"github.com/Project-Laminate/flairstar/internal/domain"
)

// Options carries every raw configuration input, collected once by the
// CLI from flags and environment. Resolve consumes it without touching
// process state.
type Options struct {
	InputDir  string
	OutputDir string
	TempDir   string

	// InlinePayload is a complete task-configuration JSON document
	// supplied as a single unit (TASK_CONFIG)
	InlinePayload string

	SWIUID   string
	FLAIRUID string

	SWIPattern   string
	FLAIRPattern string

	// CopyAll is the raw boolean literal (COPY_ALL)
	CopyAll string

	CallingAET string
}

// DefaultCallingAET is used when no local AE title is configured
const DefaultCallingAET = "FLAIRSTAR"

// Resolve produces the single run configuration from the available
// sources. The priority order is strict and exclusive - the first
// source that is present wins and the rest are ignored:
//
//  1. inline JSON payload
//  2. explicit SWI/FLAIR SeriesInstanceUIDs
//  3. explicit SWI/FLAIR pattern strings
//  4. task.json in the input directory
//
// The copy-all flag is parsed independently of the selection source.
func Resolve(opts Options) (*Config, error) {
	cfg := &Config{
		InputDir:   opts.InputDir,
		OutputDir:  opts.OutputDir,
		TempDir:    opts.TempDir,
		CopyAll:    ParseBool(opts.CopyAll),
		CallingAET: opts.CallingAET,
	}
	if cfg.CallingAET == "" {
		cfg.CallingAET = DefaultCallingAET
	}

	switch {
	case opts.InlinePayload != "":
		sel, send, err := ParsePayload([]byte(opts.InlinePayload))
		if err != nil {
			return nil, fmt.Errorf("inline payload: %w", err)
		}
		cfg.Selection, cfg.Send, cfg.Source = sel, send, "inline payload"

	case opts.SWIUID != "" && opts.FLAIRUID != "":
		cfg.Selection, cfg.Source = UIDSelection(opts.SWIUID, opts.FLAIRUID), "explicit uids"

	case opts.SWIPattern != "" && opts.FLAIRPattern != "":
		cfg.Selection, cfg.Source = PatternSelection(opts.SWIPattern, opts.FLAIRPattern), "explicit patterns"

	default:
		sel, send, err := LoadTaskFile(opts.InputDir)
		if err != nil {
			if errors.Is(err, domain.ErrTaskFileNotFound) {
				return nil, fmt.Errorf("%w: no selection configuration resolvable "+
					"(no inline payload, UIDs, patterns, or %s)", domain.ErrConfig, TaskFileName)
			}
			return nil, err
		}
		cfg.Selection, cfg.Send, cfg.Source = sel, send, TaskFileName
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
