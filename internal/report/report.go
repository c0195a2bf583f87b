// Package report publishes pipeline stage transitions to the operator.
package report

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Project-Laminate/flairstar/internal/domain"
)

// Reporter receives stage-level progress from the orchestrator
type Reporter interface {
	// StageStarted marks the beginning of a pipeline stage
	StageStarted(stage string)
	// StageCompleted marks a successful stage with its duration
	StageCompleted(stage string, elapsed time.Duration)
	// StageSkipped marks a stage that did not run, with the reason
	StageSkipped(stage, reason string)
	// StageFailed marks a fatal stage failure
	StageFailed(stage string, err error)
	// SendResults reports the per-file, per-destination outcomes
	SendResults(results []domain.SendResult)
}

// ConsoleReporter writes human-readable progress lines
type ConsoleReporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleReporter creates a reporter writing to w
func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{w: w}
}

func (r *ConsoleReporter) StageStarted(stage string) {
	r.printf("==> %s\n", stage)
}

func (r *ConsoleReporter) StageCompleted(stage string, elapsed time.Duration) {
	r.printf("    %s done in %s\n", stage, elapsed.Round(time.Millisecond))
}

func (r *ConsoleReporter) StageSkipped(stage, reason string) {
	r.printf("    %s skipped: %s\n", stage, reason)
}

func (r *ConsoleReporter) StageFailed(stage string, err error) {
	r.printf("    %s FAILED: %v\n", stage, err)
}

func (r *ConsoleReporter) SendResults(results []domain.SendResult) {
	for _, res := range results {
		if res.Status == domain.SendSuccess {
			r.printf("    sent %s -> %s\n", res.File, res.Destination)
		} else {
			r.printf("    send %s -> %s FAILED: %s\n", res.File, res.Destination, res.Detail)
		}
	}
}

func (r *ConsoleReporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

// NullReporter discards all progress
type NullReporter struct{}

func (NullReporter) StageStarted(string)                  {}
func (NullReporter) StageCompleted(string, time.Duration) {}
func (NullReporter) StageSkipped(string, string)          {}
func (NullReporter) StageFailed(string, error)            {}
func (NullReporter) SendResults([]domain.SendResult)      {}
