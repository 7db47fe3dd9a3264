package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/DeusData/ms2cc/internal/compdb"
	"github.com/DeusData/ms2cc/internal/config"
	"github.com/DeusData/ms2cc/internal/store"
)

// Elapsed is the combined duration of all phases.
func (r *Result) Elapsed() time.Duration {
	return r.IndexDuration + r.ReadDuration + r.ResolveDuration
}

// Report builds the diagnostics report of a finished run.
func (r *Result) Report(cfg *config.Config) *compdb.Report {
	return &compdb.Report{
		GeneratedAt: time.Now().UTC(),
		InputFile:   cfg.InputFile,
		SourceRoot:  cfg.SourceDirectory,
		OutputFile:  cfg.OutputFile,
		Entries:     len(r.Commands),
		Summary:     r.Summary,
		Diagnostics: r.Diagnostics,
	}
}

// WriteOutputs writes the compilation database and, when report_file is set,
// the YAML report. cfg.OutputFile is made absolute.
func WriteOutputs(cfg *config.Config, res *Result) error {
	out, err := filepath.Abs(cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("output path: %w", err)
	}
	cfg.OutputFile = out
	if err := compdb.WriteFile(out, res.Commands, cfg.PrettyPrint); err != nil {
		return err
	}
	slog.Info("output.written", "path", out, "entries", len(res.Commands))

	if cfg.ReportFile == "" {
		return nil
	}
	if err := compdb.WriteReport(cfg.ReportFile, res.Report(cfg)); err != nil {
		return err
	}
	slog.Info("report.written", "path", cfg.ReportFile, "diagnostics", len(res.Diagnostics))
	return nil
}

// Record stores the run in the history database.
func Record(st *store.Store, cfg *config.Config, res *Result) (*store.Run, error) {
	hash, err := store.HashFile(cfg.InputFile)
	if err != nil {
		return nil, fmt.Errorf("hash log: %w", err)
	}
	run := &store.Run{
		LogPath:      cfg.InputFile,
		LogHash:      hash,
		SourceRoot:   cfg.SourceDirectory,
		OutputPath:   cfg.OutputFile,
		LogLines:     res.LogLines,
		IndexedFiles: res.IndexedFiles,
		Elapsed:      res.Elapsed(),
	}
	if err := st.RecordRun(run, res.Commands, res.Diagnostics); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}
	slog.Info("history.recorded", "run", run.ID, "db", st.Path())
	return run, nil
}
