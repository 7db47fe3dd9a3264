package tools

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/ms2cc/internal/config"
	"github.com/DeusData/ms2cc/internal/pipeline"
)

// configFromArgs overlays the tool arguments on the built-in defaults.
func configFromArgs(args map[string]any) *config.Config {
	cfg := config.Default()
	cfg.InputFile = getStringArg(args, "input_file")
	cfg.SourceDirectory = getStringArg(args, "source_directory")
	cfg.OutputFile = getStringArg(args, "output_file")
	if cfg.OutputFile == "" && cfg.SourceDirectory != "" {
		cfg.OutputFile = filepath.Join(cfg.SourceDirectory, config.DefaultOutputFile)
	}
	cfg.PrettyPrint = getBoolArg(args, "pretty_print")
	cfg.MaxThreads = getIntArg(args, "max_threads", cfg.MaxThreads)
	if c := getStringArg(args, "compiler_executable"); c != "" {
		cfg.CompilerExecutable = c
	}
	if v, ok := getStringSliceArg(args, "exclude_directories"); ok {
		cfg.ExcludeDirectories = v
	}
	if v, ok := getStringSliceArg(args, "file_extensions"); ok {
		cfg.FileExtensions = v
	}
	cfg.ReportFile = getStringArg(args, "report_file")
	cfg.Normalize()
	return cfg
}

func (s *Server) handleGenerate(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	cfg := configFromArgs(args)
	if err := cfg.Validate(); err != nil {
		return errResult(err.Error()), nil
	}

	s.genMu.Lock()
	defer s.genMu.Unlock()

	res, err := pipeline.New(ctx, cfg).Run()
	if err != nil {
		return errResult(fmt.Sprintf("conversion failed: %v", err)), nil
	}
	if err := pipeline.WriteOutputs(cfg, res); err != nil {
		return errResult(fmt.Sprintf("write failed: %v", err)), nil
	}

	out := map[string]any{
		"output_file":   cfg.OutputFile,
		"entries":       len(res.Commands),
		"superseded":    res.Duplicates,
		"indexed_files": res.IndexedFiles,
		"log_lines":     res.LogLines,
		"elapsed_ms":    res.Elapsed().Milliseconds(),
		"diagnostics":   res.Summary,
	}
	if cfg.ReportFile != "" {
		out["report_file"] = cfg.ReportFile
	}
	if s.store != nil {
		run, err := pipeline.Record(s.store, cfg, res)
		if err != nil {
			return errResult(fmt.Sprintf("history failed: %v", err)), nil
		}
		out["run_id"] = run.ID
	}
	return jsonResult(out), nil
}
