// Package pipeline runs the two phases of a conversion: index the source
// tree, then extract and resolve every command in the log.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DeusData/ms2cc/internal/aggregate"
	"github.com/DeusData/ms2cc/internal/config"
	"github.com/DeusData/ms2cc/internal/diag"
	"github.com/DeusData/ms2cc/internal/discover"
	"github.com/DeusData/ms2cc/internal/extract"
	"github.com/DeusData/ms2cc/internal/logscan"
	"github.com/DeusData/ms2cc/internal/resolve"
)

// batchSize is the number of logical lines handed to one worker task.
const batchSize = 256

// Pipeline converts one build log into a compilation database.
type Pipeline struct {
	ctx      context.Context
	cfg      *config.Config
	Progress *Progress
}

// Result is the outcome of a run.
type Result struct {
	aggregate.Result
	IndexedFiles    int
	LogLines        int
	LogicalLines    int // lines after continuation merging
	IndexDuration   time.Duration
	ReadDuration    time.Duration
	ResolveDuration time.Duration
}

// New creates a Pipeline for a validated configuration.
func New(ctx context.Context, cfg *config.Config) *Pipeline {
	return &Pipeline{ctx: ctx, cfg: cfg, Progress: &Progress{}}
}

func (p *Pipeline) checkCancel() error {
	return p.ctx.Err()
}

// Run executes both phases. Fatal problems (unreadable log or source root,
// cancellation) are returned as errors; everything else is reported in the
// result's diagnostics.
func (p *Pipeline) Run() (*Result, error) {
	cfg := p.cfg
	slog.Info("pipeline.start", "log", cfg.InputFile, "root", cfg.SourceDirectory, "workers", cfg.MaxThreads)
	if err := p.checkCancel(); err != nil {
		return nil, err
	}
	res := &Result{}
	agg := aggregate.New()

	// Phase 1: the index must be complete before any lookup.
	t := time.Now()
	p.Progress.setPhase(PhaseIndexing)
	ix, warnings, err := discover.BuildIndex(p.ctx, discover.Options{
		Root:        cfg.SourceDirectory,
		ExcludeDirs: cfg.ExcludeDirectories,
		Extensions:  cfg.FileExtensions,
		Workers:     cfg.MaxThreads,
		Progress:    p.Progress,
	})
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	for _, w := range warnings {
		agg.AddDiagnostic(w)
	}
	p.Progress.diagnostics.Add(int64(len(warnings)))
	res.IndexedFiles = ix.Files()
	res.IndexDuration = time.Since(t)
	slog.Info("pass.timing", "pass", "index", "elapsed", res.IndexDuration)

	// Phase 2a: read and merge the log.
	t = time.Now()
	p.Progress.setPhase(PhaseReading)
	raw, err := logscan.ReadFile(p.ctx, cfg.InputFile)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	for _, l := range raw {
		if l.Oversized {
			agg.AddDiagnostic(diag.New(diag.IoError, l.Number, cfg.InputFile, "line too long, skipped"))
			p.Progress.diagnostics.Add(1)
		}
	}
	p.Progress.linesRead.Store(int64(len(raw)))
	res.LogLines = len(raw)
	if len(raw) == 0 {
		slog.Warn("log.empty", "path", cfg.InputFile)
	}

	ex := extract.New(extract.Options{Compiler: cfg.CompilerExecutable, Extensions: cfg.FileExtensions})
	var lines []logscan.LogicalLine
	if cfg.MergeContinuations {
		lines = logscan.Merge(raw, ex, cfg.MaxContinuationLines)
	} else {
		lines = logscan.Passthrough(raw)
	}
	res.LogicalLines = len(lines)
	p.Progress.linesTotal.Store(int64(len(lines)))
	res.ReadDuration = time.Since(t)
	slog.Info("pass.timing", "pass", "read", "lines", len(raw), "logical", len(lines), "elapsed", res.ReadDuration)

	// Phase 2b: extract and resolve in parallel against the frozen index.
	t = time.Now()
	p.Progress.setPhase(PhaseResolving)
	rs := resolve.New(ix, cfg.EntryDirectory)
	if err := p.resolveLines(lines, ex, rs, agg); err != nil {
		return nil, err
	}
	res.ResolveDuration = time.Since(t)
	slog.Info("pass.timing", "pass", "resolve", "elapsed", res.ResolveDuration)

	res.Result = agg.Finalize(cfg.MaxSamples)
	p.Progress.setPhase(PhaseDone)
	slog.Info("pipeline.done",
		"entries", len(res.Commands),
		"diagnostics", len(res.Diagnostics),
		"superseded", res.Duplicates)
	return res, nil
}

func (p *Pipeline) resolveLines(lines []logscan.LogicalLine, ex *extract.Extractor, rs *resolve.Resolver, agg *aggregate.Aggregator) error {
	numWorkers := p.cfg.MaxThreads
	g, gctx := errgroup.WithContext(p.ctx)
	g.SetLimit(numWorkers)
	for start := 0; start < len(lines); start += batchSize {
		batch := lines[start:min(start+batchSize, len(lines))]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			p.processBatch(batch, ex, rs, agg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	return nil
}

func (p *Pipeline) processBatch(batch []logscan.LogicalLine, ex *extract.Extractor, rs *resolve.Resolver, agg *aggregate.Aggregator) {
	for _, line := range batch {
		invs, d := ex.Extract(line.Seq, logscan.Tokenize(line.Text))
		if d != nil {
			slog.Debug("extract.malformed", "line", line.Seq)
			agg.AddDiagnostic(*d)
			p.Progress.diagnostics.Add(1)
		}
		p.Progress.invocations.Add(int64(len(invs)))
		for _, inv := range invs {
			cmd, d := rs.Resolve(inv)
			if d != nil {
				slog.Debug("resolve.fail", "line", inv.Seq, "kind", d.Kind.String(), "file", inv.SourceFilename)
				agg.AddDiagnostic(*d)
				p.Progress.diagnostics.Add(1)
				continue
			}
			agg.Add(aggregate.Order{Seq: inv.Seq, Index: inv.Index}, cmd)
			p.Progress.entriesResolved.Add(1)
		}
		p.Progress.linesProcessed.Add(1)
	}
}
