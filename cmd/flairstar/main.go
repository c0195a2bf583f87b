package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Project-Laminate/flairstar/internal/config"
	"github.com/Project-Laminate/flairstar/internal/logger"
	"github.com/Project-Laminate/flairstar/internal/report"
	"github.com/Project-Laminate/flairstar/internal/service"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "flairstar",
		Short: "Generate a FLAIR-STAR series from SWI and FLAIR DICOM inputs",
		Long: `flairstar selects one SWI and one FLAIR series from a DICOM
input directory, registers FLAIR onto SWI, multiplies the volumes and
writes the product back as a new DICOM series, optionally transmitting
it to one or more C-STORE destinations.

Series selection comes from the first available source: an inline JSON
payload (TASK_CONFIG), explicit series UIDs, pattern strings, or a
task.json file in the input directory.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v)
		},
	}

	flags := cmd.Flags()
	flags.String("input-dir", "", "directory containing the input DICOM files (env DATASET_PATH, default /input)")
	flags.String("output-dir", "", "directory for the generated series (env RESULTS_PATH, default /output)")
	flags.String("temp-dir", "", "directory for intermediate files (default /tmp/flairstar)")
	flags.String("swi-pattern", "", "substring matched against SeriesDescription to select the SWI series (env SWI_PATTERN)")
	flags.String("flair-pattern", "", "substring matched against SeriesDescription to select the FLAIR series (env FLAIR_PATTERN)")
	flags.String("swi-uid", "", "SeriesInstanceUID of the SWI series (env SWI_UID)")
	flags.String("flair-uid", "", "SeriesInstanceUID of the FLAIR series (env FLAIR_UID)")
	flags.String("copy-all", "", "copy every input DICOM file to the output directory (env COPY_ALL)")
	flags.String("aet", "", "calling AE title for outbound associations")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text, json")
	flags.String("log-file", "", "also write logs to this file, size-rotated")
	flags.Bool("quiet", false, "suppress per-stage progress output")

	envBindings := map[string]string{
		"input-dir":     "DATASET_PATH",
		"output-dir":    "RESULTS_PATH",
		"swi-pattern":   "SWI_PATTERN",
		"flair-pattern": "FLAIR_PATTERN",
		"swi-uid":       "SWI_UID",
		"flair-uid":     "FLAIR_UID",
		"copy-all":      "COPY_ALL",
		"task-config":   "TASK_CONFIG",
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			panic(err)
		}
	}
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	v.SetDefault("input-dir", "/input")
	v.SetDefault("output-dir", "/output")
	v.SetDefault("temp-dir", "/tmp/flairstar")

	return cmd
}

func run(cmd *cobra.Command, v *viper.Viper) error {
	logCfg := logger.Config{
		Level:  logger.ParseLevel(v.GetString("log-level")),
		Format: logger.ParseFormat(v.GetString("log-format")),
	}
	if path := v.GetString("log-file"); path != "" {
		logCfg.File = logger.FileConfig{Enabled: true, Path: path}
	}
	if err := logger.Init(logCfg); err != nil {
		return err
	}
	defer logger.Shutdown()

	cfg, err := config.Resolve(config.Options{
		InputDir:      v.GetString("input-dir"),
		OutputDir:     v.GetString("output-dir"),
		TempDir:       v.GetString("temp-dir"),
		InlinePayload: v.GetString("task-config"),
		SWIUID:        v.GetString("swi-uid"),
		FLAIRUID:      v.GetString("flair-uid"),
		SWIPattern:    v.GetString("swi-pattern"),
		FLAIRPattern:  v.GetString("flair-pattern"),
		CopyAll:       v.GetString("copy-all"),
		CallingAET:    v.GetString("aet"),
	})
	if err != nil {
		return err
	}

	var reporter report.Reporter = report.NullReporter{}
	if !v.GetBool("quiet") {
		reporter = report.NewConsoleReporter(cmd.OutOrStdout())
	}

	pipeline, err := service.NewPipeline(cfg, service.WithReporter(reporter))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Generated series %s (%d files) in %s\n",
		summary.OutputSeriesUID, len(summary.OutputFiles), cfg.OutputDir)
	return nil
}
