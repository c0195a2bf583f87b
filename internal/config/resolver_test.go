package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Project-Laminate/flairstar/internal/domain"
)

const payload = `{
  "process": {
    "settings": {
      "processing": {
        "swi_pattern": {
          "rules": [
            {"tag": "SeriesDescription", "operation": "equals", "value": "SWI_Images"}
          ]
        },
        "flair_pattern": {
          "rules": [
            {"tag": "SeriesDescription", "operation": "contains", "value": "dark-fluid"}
          ]
        }
      },
      "dicom_send": {
        "enabled": true,
        "destinations": [
          {"name": "archive", "aet": "ARCHIVE", "host": "pacs.local", "port": 104}
        ]
      }
    }
  }
}`

func baseOptions() Options {
	return Options{InputDir: "/input", OutputDir: "/output", TempDir: "/tmp/work"}
}

func TestResolve_InlinePayloadWinsOverUIDs(t *testing.T) {
	opts := baseOptions()
	opts.InlinePayload = payload
	opts.SWIUID = "1.2.3.1"
	opts.FLAIRUID = "1.2.3.2"

	cfg, err := Resolve(opts)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Selection.Strategy != StrategyPattern {
		t.Errorf("Expected pattern strategy from inline payload, got %v", cfg.Selection.Strategy)
	}
	if !cfg.Send.Enabled || len(cfg.Send.Destinations) != 1 {
		t.Errorf("Expected send config from inline payload, got %+v", cfg.Send)
	}
	if cfg.Send.Destinations[0].AET != "ARCHIVE" {
		t.Errorf("Expected AET ARCHIVE, got %s", cfg.Send.Destinations[0].AET)
	}
}

func TestResolve_UIDsWinOverPatterns(t *testing.T) {
	opts := baseOptions()
	opts.SWIUID = "1.2.3.1"
	opts.FLAIRUID = "1.2.3.2"
	opts.SWIPattern = "SWI"
	opts.FLAIRPattern = "FLAIR"

	cfg, err := Resolve(opts)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Selection.Strategy != StrategyUID {
		t.Errorf("Expected UID strategy, got %v", cfg.Selection.Strategy)
	}
	if cfg.Selection.SWIUID != "1.2.3.1" || cfg.Selection.FLAIRUID != "1.2.3.2" {
		t.Errorf("Expected verbatim UIDs, got %+v", cfg.Selection)
	}
}

func TestResolve_PatternStrings(t *testing.T) {
	opts := baseOptions()
	opts.SWIPattern = "SWI"
	opts.FLAIRPattern = "dark-fluid"

	cfg, err := Resolve(opts)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Selection.Strategy != StrategyPattern {
		t.Fatalf("Expected pattern strategy, got %v", cfg.Selection.Strategy)
	}

	rules := cfg.Selection.SWIPattern.Rules
	if len(rules) != 1 {
		t.Fatalf("Expected a single rule, got %d", len(rules))
	}
	if rules[0].Tag != "SeriesDescription" || rules[0].Op != domain.OpContains || !rules[0].Required {
		t.Errorf("Expected required contains-on-SeriesDescription rule, got %+v", rules[0])
	}
	if cfg.Send.Enabled {
		t.Error("Expected sending to stay disabled for the pattern source")
	}
}

func TestResolve_PartialUIDsFallThrough(t *testing.T) {
	opts := baseOptions()
	opts.SWIUID = "1.2.3.1" // FLAIR UID missing
	opts.SWIPattern = "SWI"
	opts.FLAIRPattern = "FLAIR"

	cfg, err := Resolve(opts)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Selection.Strategy != StrategyPattern {
		t.Errorf("Expected fall-through to patterns with only one UID, got %v", cfg.Selection.Strategy)
	}
}

func TestResolve_TaskFileFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, TaskFileName), []byte(payload), 0644); err != nil {
		t.Fatal(err)
	}

	opts := baseOptions()
	opts.InputDir = dir

	cfg, err := Resolve(opts)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Source != TaskFileName {
		t.Errorf("Expected task.json source, got %q", cfg.Source)
	}
	if !cfg.Send.Enabled {
		t.Error("Expected send config from task file")
	}
}

func TestResolve_NothingResolvable(t *testing.T) {
	opts := baseOptions()
	opts.InputDir = t.TempDir() // no task.json

	_, err := Resolve(opts)
	if !errors.Is(err, domain.ErrConfig) {
		t.Errorf("Expected ErrConfig when no source resolves, got %v", err)
	}
}

func TestResolve_MalformedInlinePayload(t *testing.T) {
	opts := baseOptions()
	opts.InlinePayload = `{"process": {`

	_, err := Resolve(opts)
	if !errors.Is(err, domain.ErrConfig) {
		t.Errorf("Expected ErrConfig for malformed payload, got %v", err)
	}
}

func TestResolve_CopyAllIndependent(t *testing.T) {
	opts := baseOptions()
	opts.SWIUID = "1.2.3.1"
	opts.FLAIRUID = "1.2.3.2"
	opts.CopyAll = "YES"

	cfg, err := Resolve(opts)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !cfg.CopyAll {
		t.Error("Expected COPY_ALL=YES to enable copy-all")
	}
}

func TestResolve_DefaultCallingAET(t *testing.T) {
	opts := baseOptions()
	opts.SWIUID = "1.2.3.1"
	opts.FLAIRUID = "1.2.3.2"

	cfg, err := Resolve(opts)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.CallingAET != DefaultCallingAET {
		t.Errorf("Expected default calling AET, got %q", cfg.CallingAET)
	}
}

func TestParseBool(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"true", true}, {"TRUE", true}, {"True", true},
		{"yes", true}, {"Yes", true}, {"1", true},
		{" 1 ", true},
		{"false", false}, {"no", false}, {"0", false},
		{"", false}, {"y", false}, {"on", false},
	}
	for _, tc := range cases {
		if got := ParseBool(tc.in); got != tc.want {
			t.Errorf("ParseBool(%q): expected %v, got %v", tc.in, tc.want, got)
		}
	}
}
