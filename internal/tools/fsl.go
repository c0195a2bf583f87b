package tools

import (
	"context"
	"fmt"
	"os"

	"github.com/Project-Laminate/flairstar/internal/domain"
)

// Flirt performs rigid registration between two volumes.
type Flirt struct {
	Path   string
	runner *Runner
}

func NewFlirt(runner *Runner) *Flirt {
	return &Flirt{Path: "flirt", runner: runner}
}

// Register aligns the in volume to the ref volume. outBase is the
// output path without extension; FSL appends .nii.gz and the full
// path of the registered volume is returned.
func (f *Flirt) Register(ctx context.Context, in, ref, outBase string) (string, error) {
	if err := f.runner.Run(ctx, f.Path, "-in", in, "-ref", ref, "-out", outBase); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCombination, err)
	}
	out := outBase + ".nii.gz"
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("%w: registered volume missing: %v", domain.ErrCombination, err)
	}
	return out, nil
}

// FSLMaths performs voxelwise arithmetic on volumes.
type FSLMaths struct {
	Path   string
	runner *Runner
}

func NewFSLMaths(runner *Runner) *FSLMaths {
	return &FSLMaths{Path: "fslmaths", runner: runner}
}

// Multiply computes a voxelwise product of the two volumes into out.
func (m *FSLMaths) Multiply(ctx context.Context, a, b, out string) error {
	if err := m.runner.Run(ctx, m.Path, a, "-mul", b, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCombination, err)
	}
	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("%w: product volume missing: %v", domain.ErrCombination, err)
	}
	return nil
}
