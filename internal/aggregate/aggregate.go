// Package aggregate merges resolved entries into the final, deduplicated and
// deterministically ordered compilation database.
package aggregate

import (
	"sort"
	"strings"
	"sync"

	"github.com/DeusData/ms2cc/internal/compdb"
	"github.com/DeusData/ms2cc/internal/diag"
)

// Order positions an entry in the log: the command's line, then the source's
// position within that command.
type Order struct {
	Seq   int
	Index int
}

// After reports whether o comes later in the log than p.
func (o Order) After(p Order) bool {
	if o.Seq != p.Seq {
		return o.Seq > p.Seq
	}
	return o.Index > p.Index
}

type entry struct {
	order Order
	cmd   compdb.CompileCommand
}

// Aggregator collects entries and diagnostics from concurrent workers. For
// each file path the entry from the latest log position wins, whatever order
// the workers deliver them in.
type Aggregator struct {
	mu       sync.Mutex
	entries  map[string]entry
	diags    []diag.Diagnostic
	replaced int
}

func New() *Aggregator {
	return &Aggregator{entries: make(map[string]entry)}
}

// Add records cmd at log position o. It reports whether cmd is now the entry
// for its file.
func (a *Aggregator) Add(o Order, cmd compdb.CompileCommand) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur, ok := a.entries[cmd.File]
	if ok {
		a.replaced++
		if !o.After(cur.order) {
			return false
		}
	}
	a.entries[cmd.File] = entry{order: o, cmd: cmd}
	return true
}

// AddDiagnostic records a non-fatal problem.
func (a *Aggregator) AddDiagnostic(d diag.Diagnostic) {
	a.mu.Lock()
	a.diags = append(a.diags, d)
	a.mu.Unlock()
}

// Result is the finalized output of a run.
type Result struct {
	Commands    []compdb.CompileCommand
	Diagnostics []diag.Diagnostic
	Summary     diag.Summary
	Duplicates  int // entries superseded by a later line
}

// Finalize sorts the entries by path, case-insensitively with the exact path
// as a tie-breaker, and summarizes the diagnostics keeping up to maxSamples
// per kind. Call it only after every worker has finished.
func (a *Aggregator) Finalize(maxSamples int) Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	commands := make([]compdb.CompileCommand, 0, len(a.entries))
	for _, e := range a.entries {
		commands = append(commands, e.cmd)
	}
	sort.Slice(commands, func(i, j int) bool {
		li, lj := strings.ToLower(commands[i].File), strings.ToLower(commands[j].File)
		if li != lj {
			return li < lj
		}
		return commands[i].File < commands[j].File
	})

	diags := make([]diag.Diagnostic, len(a.diags))
	copy(diags, a.diags)
	diag.Sort(diags)

	return Result{
		Commands:    commands,
		Diagnostics: diags,
		Summary:     diag.Summarize(diags, maxSamples),
		Duplicates:  a.replaced,
	}
}
