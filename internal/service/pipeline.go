// Package service orchestrates the processing pipeline from series
// selection through transmission.
package service

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Project-Laminate/flairstar/internal/config"
	"github.com/Project-Laminate/flairstar/internal/core/match"
	"github.com/Project-Laminate/flairstar/internal/domain"
	"github.com/Project-Laminate/flairstar/internal/inventory"
	"github.com/Project-Laminate/flairstar/internal/lock"
	"github.com/Project-Laminate/flairstar/internal/logger"
	"github.com/Project-Laminate/flairstar/internal/report"
	"github.com/Project-Laminate/flairstar/internal/sender"
	"github.com/Project-Laminate/flairstar/internal/tools"
	"github.com/Project-Laminate/flairstar/internal/writeback"
)

// Inventory lists the series under a directory.
type Inventory func(ctx context.Context, dir string, extraTags []string) ([]domain.SeriesDescriptor, error)

// Converter turns one DICOM series into a NIfTI volume inside workDir.
type Converter interface {
	Convert(ctx context.Context, workDir, label string, series domain.SeriesDescriptor) (string, error)
}

// Combiner registers the FLAIR volume onto the SWI volume and computes
// their voxelwise product.
type Combiner interface {
	Combine(ctx context.Context, workDir, flairVol, swiVol string) (string, error)
}

// Writer converts the combined volume back to a DICOM series.
type Writer interface {
	ToDICOM(niftiPath string, reference domain.SeriesDescriptor, outDir string) (*writeback.Result, error)
}

// Sender transmits the generated files to the configured destinations.
type Sender interface {
	Send(ctx context.Context, files []string, cfg domain.SendConfig) ([]domain.SendResult, error)
}

// Summary describes a completed run.
type Summary struct {
	SWISeriesUID    string
	FLAIRSeriesUID  string
	OutputSeriesUID string
	OutputFiles     []string
	CopiedInputs    int
	SendResults     []domain.SendResult
	Elapsed         time.Duration
}

// Pipeline runs the full processing sequence. A run lock in the temp
// root keeps concurrent runs from sharing a workspace, and the
// per-run working directory is removed on every exit path.
type Pipeline struct {
	cfg       *config.Config
	runLock   *lock.RunLock
	scan      Inventory
	converter Converter
	combiner  Combiner
	writer    Writer
	sender    Sender
	reporter  report.Reporter
}

// Option overrides one pipeline collaborator.
type Option func(*Pipeline)

func WithReporter(r report.Reporter) Option { return func(p *Pipeline) { p.reporter = r } }
func WithInventory(scan Inventory) Option   { return func(p *Pipeline) { p.scan = scan } }
func WithConverter(c Converter) Option      { return func(p *Pipeline) { p.converter = c } }
func WithCombiner(c Combiner) Option        { return func(p *Pipeline) { p.combiner = c } }
func WithWriter(w Writer) Option            { return func(p *Pipeline) { p.writer = w } }
func WithSender(s Sender) Option            { return func(p *Pipeline) { p.sender = s } }

// NewPipeline builds a pipeline with the production collaborators.
func NewPipeline(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", domain.ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	runLock, err := lock.New(cfg.TempDir)
	if err != nil {
		return nil, err
	}

	runner := tools.NewRunner()
	p := &Pipeline{
		cfg:       cfg,
		runLock:   runLock,
		scan:      inventory.Scan,
		converter: &toolConverter{dcm2niix: tools.NewDcm2niix(runner)},
		combiner: &fslCombiner{
			flirt: tools.NewFlirt(runner),
			maths: tools.NewFSLMaths(runner),
		},
		writer:   writebackWriter{},
		sender:   sender.New(cfg.CallingAET),
		reporter: report.NullReporter{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Run executes the pipeline. On a send failure the generated series
// stays in the output directory and the error wraps ErrSend.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if err := p.runLock.Acquire(); err != nil {
		return nil, err
	}
	defer p.runLock.Release()

	start := time.Now()
	log := logger.With("input", p.cfg.InputDir, "output", p.cfg.OutputDir)
	log.Info("starting run",
		"strategy", p.cfg.Selection.Strategy.String(),
		"source", p.cfg.Source,
		"copy_all", p.cfg.CopyAll,
		"send", p.cfg.Send.Enabled)

	workDir, err := os.MkdirTemp(p.cfg.TempDir, "flairstar-")
	if err != nil {
		return nil, fmt.Errorf("creating working directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn("failed to remove working directory", "dir", workDir, "error", err)
		}
	}()

	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	summary := &Summary{}

	var swi, flair domain.SeriesDescriptor
	err = p.stage("select series", func() error {
		swi, flair, err = p.selectSeries(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	summary.SWISeriesUID = swi.SeriesInstanceUID
	summary.FLAIRSeriesUID = flair.SeriesInstanceUID

	var swiVol, flairVol string
	err = p.stage("convert to nifti", func() error {
		if swiVol, err = p.converter.Convert(ctx, workDir, "swi", swi); err != nil {
			return err
		}
		flairVol, err = p.converter.Convert(ctx, workDir, "flair", flair)
		return err
	})
	if err != nil {
		return nil, err
	}

	var product string
	err = p.stage("combine volumes", func() error {
		product, err = p.combiner.Combine(ctx, workDir, flairVol, swiVol)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.stage("write derived series", func() error {
		res, err := p.writer.ToDICOM(product, swi, p.cfg.OutputDir)
		if err != nil {
			return err
		}
		summary.OutputSeriesUID = res.SeriesInstanceUID
		summary.OutputFiles = res.Files
		return nil
	})
	if err != nil {
		return nil, err
	}

	if p.cfg.CopyAll {
		// Best effort: a copy failure never discards the result.
		p.stage("copy inputs", func() error {
			n, err := p.copyInputs()
			summary.CopiedInputs = n
			if err != nil {
				log.Warn("copying input files failed", "copied", n, "error", err)
			}
			return err
		})
	} else {
		p.reporter.StageSkipped("copy inputs", "copy-all not set")
	}

	if p.cfg.Send.Enabled {
		var sendErr error
		p.stage("send", func() error {
			summary.SendResults, sendErr = p.sender.Send(ctx, summary.OutputFiles, p.cfg.Send)
			p.reporter.SendResults(summary.SendResults)
			return sendErr
		})
		if sendErr != nil {
			summary.Elapsed = time.Since(start)
			return summary, sendErr
		}
	} else {
		p.reporter.StageSkipped("send", "sending disabled")
	}

	summary.Elapsed = time.Since(start)
	log.Info("run complete",
		"series", summary.OutputSeriesUID,
		"files", len(summary.OutputFiles),
		"elapsed", summary.Elapsed)
	return summary, nil
}

// selectSeries scans the input directory and resolves exactly one SWI
// and one FLAIR series per the configured strategy.
func (p *Pipeline) selectSeries(ctx context.Context) (swi, flair domain.SeriesDescriptor, err error) {
	sel := p.cfg.Selection
	candidates, err := p.scan(ctx, p.cfg.InputDir, sel.Tags())
	if err != nil {
		return swi, flair, err
	}

	switch sel.Strategy {
	case config.StrategyUID:
		if swi, err = match.SelectByUID(sel.SWIUID, candidates); err != nil {
			return swi, flair, fmt.Errorf("selecting SWI series: %w", err)
		}
		if flair, err = match.SelectByUID(sel.FLAIRUID, candidates); err != nil {
			return swi, flair, fmt.Errorf("selecting FLAIR series: %w", err)
		}
	default:
		if swi, err = match.Select(sel.SWIPattern, candidates); err != nil {
			return swi, flair, fmt.Errorf("selecting SWI series: %w", err)
		}
		if flair, err = match.Select(sel.FLAIRPattern, candidates); err != nil {
			return swi, flair, fmt.Errorf("selecting FLAIR series: %w", err)
		}
	}

	if swi.SeriesInstanceUID == flair.SeriesInstanceUID {
		return swi, flair, fmt.Errorf("%w: SWI and FLAIR selection resolved to the same series %s",
			domain.ErrMatch, swi.SeriesInstanceUID)
	}

	logger.Get().Info("selected series",
		"swi", swi.SeriesInstanceUID, "swi_description", swi.Description(),
		"flair", flair.SeriesInstanceUID, "flair_description", flair.Description())
	return swi, flair, nil
}

// copyInputs copies every .dcm file under the input directory into the
// output directory, flattened the way downstream consumers expect.
func (p *Pipeline) copyInputs() (int, error) {
	copied := 0
	err := filepath.WalkDir(p.cfg.InputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".dcm") {
			return nil
		}
		dst := filepath.Join(p.cfg.OutputDir, d.Name())
		if err := copyFile(path, dst); err != nil {
			logger.Get().Warn("failed to copy input file", "path", path, "error", err)
			return nil
		}
		copied++
		return nil
	})
	return copied, err
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// stage wraps one pipeline step with reporting and timing.
func (p *Pipeline) stage(name string, fn func() error) error {
	p.reporter.StageStarted(name)
	start := time.Now()
	if err := fn(); err != nil {
		p.reporter.StageFailed(name, err)
		return err
	}
	p.reporter.StageCompleted(name, time.Since(start))
	return nil
}

// toolConverter stages a series and runs dcm2niix over it.
type toolConverter struct {
	dcm2niix *tools.Dcm2niix
}

func (c *toolConverter) Convert(ctx context.Context, workDir, label string, series domain.SeriesDescriptor) (string, error) {
	staged, err := tools.Stage(workDir, label, series)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrConversion, err)
	}
	return c.dcm2niix.Convert(ctx, staged, filepath.Join(workDir, label+"_nifti"))
}

// fslCombiner registers FLAIR onto SWI and multiplies the volumes.
type fslCombiner struct {
	flirt *tools.Flirt
	maths *tools.FSLMaths
}

func (c *fslCombiner) Combine(ctx context.Context, workDir, flairVol, swiVol string) (string, error) {
	registered, err := c.flirt.Register(ctx, flairVol, swiVol, filepath.Join(workDir, "registered"))
	if err != nil {
		return "", err
	}
	product := filepath.Join(workDir, "FLAIR-STAR.nii.gz")
	if err := c.maths.Multiply(ctx, registered, swiVol, product); err != nil {
		return "", err
	}
	return product, nil
}

type writebackWriter struct{}

func (writebackWriter) ToDICOM(niftiPath string, reference domain.SeriesDescriptor, outDir string) (*writeback.Result, error) {
	return writeback.ToDICOM(niftiPath, reference, outDir)
}
