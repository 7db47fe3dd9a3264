package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/DeusData/ms2cc/internal/compdb"
	"github.com/DeusData/ms2cc/internal/diag"
	"github.com/DeusData/ms2cc/internal/store"
)

// RunSummary is what the CLI reports after a conversion.
type RunSummary struct {
	OutputFile   string
	ReportFile   string
	RunID        string
	Entries      int
	Superseded   int
	IndexedFiles int
	LogLines     int
	Elapsed      time.Duration
	Diagnostics  diag.Summary
}

// Printer writes summaries and tables, colored when enabled.
type Printer struct {
	w     io.Writer
	width int

	ok, warn, bad, head, dim *color.Color
}

// NewPrinter returns a Printer for w. width bounds sample lines; 0 means 100.
func NewPrinter(w io.Writer, useColor bool, width int) *Printer {
	if width <= 0 {
		width = 100
	}
	p := &Printer{
		w:     w,
		width: width,
		ok:    color.New(color.FgGreen, color.Bold),
		warn:  color.New(color.FgYellow),
		bad:   color.New(color.FgRed, color.Bold),
		head:  color.New(color.Bold),
		dim:   color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.ok, p.warn, p.bad, p.head, p.dim} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Summary prints the run banner and the per-kind diagnostics table.
func (p *Printer) Summary(s RunSummary) {
	entries := p.ok
	if s.Entries == 0 {
		entries = p.bad
	}
	fmt.Fprintf(p.w, "%s %s entries to %s (%s)\n",
		p.head.Sprint("wrote"), entries.Sprint(s.Entries), s.OutputFile, s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(p.w, "%s %d files indexed, %d log lines, %d superseded entries\n",
		p.dim.Sprint("     "), s.IndexedFiles, s.LogLines, s.Superseded)
	if s.ReportFile != "" {
		fmt.Fprintf(p.w, "%s %s\n", p.head.Sprint("report"), s.ReportFile)
	}
	if s.RunID != "" {
		fmt.Fprintf(p.w, "%s %s\n", p.head.Sprint("run"), s.RunID)
	}

	if s.Diagnostics.Total == 0 {
		fmt.Fprintln(p.w, p.ok.Sprint("no diagnostics"))
		return
	}
	fmt.Fprintf(p.w, "\n%s\n", p.warn.Sprintf("%d diagnostics", s.Diagnostics.Total))
	p.Diagnostics(s.Diagnostics)
}

// Diagnostics prints one row per kind followed by its samples.
func (p *Printer) Diagnostics(sum diag.Summary) {
	kindWidth := 0
	for _, ks := range sum.Kinds {
		kindWidth = max(kindWidth, runewidth.StringWidth(ks.Kind.String()))
	}
	for _, ks := range sum.Kinds {
		fmt.Fprintf(p.w, "  %s %6d\n", p.kindColor(ks.Kind).Sprint(pad(ks.Kind.String(), kindWidth)), ks.Count)
		for _, d := range ks.Samples {
			fmt.Fprintf(p.w, "    %s\n", p.dim.Sprint(truncate(d.String(), p.width-4)))
		}
		if more := ks.Count - len(ks.Samples); more > 0 && len(ks.Samples) > 0 {
			fmt.Fprintf(p.w, "    %s\n", p.dim.Sprintf("... %d more", more))
		}
	}
}

func (p *Printer) kindColor(k diag.Kind) *color.Color {
	if k == diag.IoError {
		return p.warn
	}
	return p.bad
}

// Runs prints a history table, newest first.
func (p *Printer) Runs(runs []*store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(p.w, p.dim.Sprint("no recorded runs"))
		return
	}
	headers := []string{"RUN", "CREATED", "ENTRIES", "DIAGS", "ELAPSED", "LOG"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID),
			r.CreatedAt,
			fmt.Sprint(r.Entries),
			fmt.Sprint(r.Diagnostics),
			r.Elapsed.String(),
			r.LogPath,
		})
	}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = pad(h, widths[i])
	}
	fmt.Fprintln(p.w, p.head.Sprint(strings.TrimRight(strings.Join(cells, "  "), " ")))
	for _, row := range rows {
		for i, cell := range row {
			cells[i] = pad(cell, widths[i])
		}
		line := strings.TrimRight(strings.Join(cells, "  "), " ")
		if row[3] != "0" {
			fmt.Fprintln(p.w, p.warn.Sprint(line))
			continue
		}
		fmt.Fprintln(p.w, line)
	}
}

// Run prints the details of one recorded run.
func (p *Printer) Run(r *store.Run, sum diag.Summary) {
	rows := [][2]string{
		{"run", r.ID},
		{"created", r.CreatedAt},
		{"log", r.LogPath},
		{"log hash", r.LogHash},
		{"source root", r.SourceRoot},
		{"output", r.OutputPath},
		{"log lines", fmt.Sprint(r.LogLines)},
		{"indexed files", fmt.Sprint(r.IndexedFiles)},
		{"entries", fmt.Sprint(r.Entries)},
		{"diagnostics", fmt.Sprint(r.Diagnostics)},
		{"elapsed", r.Elapsed.String()},
	}
	for _, row := range rows {
		fmt.Fprintf(p.w, "%s %s\n", p.head.Sprint(pad(row[0], 13)), row[1])
	}
	if sum.Total > 0 {
		fmt.Fprintln(p.w)
		p.Diagnostics(sum)
	}
}

// Commands lists the entries of a run, one file per line followed by its
// arguments, each line truncated to the printer width.
func (p *Printer) Commands(cmds []compdb.CompileCommand) {
	fmt.Fprintf(p.w, "%s\n", p.head.Sprintf("%d commands", len(cmds)))
	for _, c := range cmds {
		fmt.Fprintln(p.w, "  "+truncate(c.File, p.width-2))
		fmt.Fprintln(p.w, "    "+p.dim.Sprint(truncate(strings.Join(c.Arguments, " "), p.width-4)))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// pad right-pads s with spaces to the given display width.
func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
