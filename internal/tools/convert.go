package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/Project-Laminate/flairstar/internal/domain"
)

// Dcm2niix converts DICOM series to compressed NIfTI volumes.
type Dcm2niix struct {
	Path   string
	runner *Runner
}

func NewDcm2niix(runner *Runner) *Dcm2niix {
	return &Dcm2niix{Path: "dcm2niix", runner: runner}
}

// Convert runs dcm2niix over srcDir and returns the path of the
// resulting .nii.gz volume in outDir. Exactly one volume is expected
// per staged series; when the converter emits more than one the first
// in lexical order is used.
func (d *Dcm2niix) Convert(ctx context.Context, srcDir, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrConversion, err)
	}
	if err := d.runner.Run(ctx, d.Path, "-z", "y", "-o", outDir, srcDir); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrConversion, err)
	}

	matches, err := filepath.Glob(filepath.Join(outDir, "*.nii.gz"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrConversion, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: no NIfTI output in %s", domain.ErrConversion, outDir)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// Stage hardlinks (or copies) the files of a series into a fresh
// subdirectory of workDir so dcm2niix sees only that series.
func Stage(workDir, label string, series domain.SeriesDescriptor) (string, error) {
	dir := filepath.Join(workDir, label)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	for i, src := range series.FilePaths {
		dst := filepath.Join(dir, fmt.Sprintf("%06d.dcm", i))
		if err := os.Link(src, dst); err != nil {
			if err := copyFile(src, dst); err != nil {
				return "", fmt.Errorf("staging %s: %w", src, err)
			}
		}
	}
	return dir, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
