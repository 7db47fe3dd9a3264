package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/DeusData/ms2cc/internal/config"
	"github.com/DeusData/ms2cc/internal/pipeline"
	"github.com/DeusData/ms2cc/internal/store"
	"github.com/DeusData/ms2cc/internal/ui"
)

func newGenerateCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Convert a build log (same as running ms2cc without a subcommand)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, opts)
		},
	}
	addGenerateFlags(cmd)
	return cmd
}

func addGenerateFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("input-file", "i", "", "MSBuild log to read")
	f.StringP("output-file", "o", config.DefaultOutputFile, "compilation database to write")
	f.BoolP("pretty-print", "p", false, "indent the JSON output")
	f.StringP("source-directory", "d", "", "root of the source tree to index")
	f.StringSliceP("exclude-directories", "x", config.DefaultExcludeDirectories, "directory names to skip while indexing")
	f.StringSliceP("file-extensions", "e", config.DefaultFileExtensions, "source and header extensions to index")
	f.StringP("compiler-executable", "c", config.DefaultCompilerExecutable, "compiler executable name to look for in the log")
	f.IntP("max-threads", "t", config.DefaultMaxThreads, "worker threads for indexing and resolution")
	f.String("entry-directory", config.EntryDirectoryRoot, "directory recorded per entry (root|file)")
	f.Bool("merge-continuations", true, "join compiler commands wrapped over several log lines")
	f.Int("max-continuation-lines", config.DefaultMaxContinuationLines, "longest wrapped command to join")
	f.Int("max-samples", config.DefaultMaxSamples, "diagnostics shown per kind in the summary")
	f.String("report", "", "write a YAML diagnostics report to this path")
	f.String("ui", "auto", "progress display (auto|on|off)")
}

// loadConfig layers flags, environment and config file into a Config and
// installs the logger it asks for. The result is not validated.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("working directory: %w", err)
	}
	cfg, err := config.Load(v, opts.configFile, wd)
	if err != nil {
		return nil, err
	}
	if err := setupLogging(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	if used := v.ConfigFileUsed(); used != "" {
		slog.Info("config.loaded", "path", used)
	}
	return cfg, nil
}

// outputFile returns w as a file when it is one, for terminal detection.
func outputFile(w io.Writer) *os.File {
	f, _ := w.(*os.File)
	return f
}

func newPrinter(cmd *cobra.Command, colorSetting string) (*ui.Printer, error) {
	mode, err := ui.ParseMode("color", colorSetting)
	if err != nil {
		return nil, err
	}
	out := outputFile(cmd.OutOrStdout())
	return ui.NewPrinter(cmd.OutOrStdout(), mode.Enabled(out), ui.TerminalWidth(out)), nil
}

func runGenerate(cmd *cobra.Command, opts *globalOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	uiMode, err := ui.ParseMode("ui", cfg.UI)
	if err != nil {
		return err
	}
	printer, err := newPrinter(cmd, cfg.Color)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	p := pipeline.New(ctx, cfg)

	var res *pipeline.Result
	work := func() error {
		var runErr error
		res, runErr = p.Run()
		return runErr
	}
	if uiMode.Enabled(outputFile(cmd.OutOrStdout())) {
		err = ui.RunWithProgress(cmd.OutOrStdout(), "ms2cc", p.Progress, cancel, work)
	} else {
		err = work()
	}
	if err != nil {
		return err
	}

	if err := pipeline.WriteOutputs(cfg, res); err != nil {
		return err
	}

	summary := ui.RunSummary{
		OutputFile:   cfg.OutputFile,
		ReportFile:   cfg.ReportFile,
		Entries:      len(res.Commands),
		Superseded:   res.Duplicates,
		IndexedFiles: res.IndexedFiles,
		LogLines:     res.LogLines,
		Elapsed:      res.Elapsed(),
		Diagnostics:  res.Summary,
	}
	if cfg.HistoryDB != "" {
		st, err := store.OpenPath(cfg.HistoryDB)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		run, err := pipeline.Record(st, cfg, res)
		st.Close()
		if err != nil {
			return err
		}
		summary.RunID = run.ID
	}
	printer.Summary(summary)
	return nil
}
