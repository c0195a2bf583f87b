// Package tools wraps the external neuroimaging commands the pipeline
// shells out to.
package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Project-Laminate/flairstar/internal/logger"
)

// Runner executes external commands with captured output.
type Runner struct{}

func NewRunner() *Runner {
	return &Runner{}
}

// Run executes name with args and returns an error carrying the
// command's combined output when it fails.
func (r *Runner) Run(ctx context.Context, name string, args ...string) error {
	log := logger.With("command", name)
	log.Debug("running command", "args", strings.Join(args, " "))

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s",
			name, strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	log.Debug("command finished", "duration", time.Since(start))
	return nil
}
