// Package logscan reads an MSBuild log, merges commands that MSBuild wrapped
// across several physical lines, and tokenizes command lines.
package logscan

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/DeusData/ms2cc/internal/diag"
)

// maxLineBytes bounds a single physical log line. Longer lines are reported
// as oversized and their text is dropped.
const maxLineBytes = 16 << 20

// RawLine is one physical line of the log. Number is 1-based. Oversized lines
// exceeded maxLineBytes and carry no text.
type RawLine struct {
	Number    int
	Text      string
	Oversized bool
}

// LogicalLine is one command after continuation merging. Seq is the line
// number of its first physical line and orders entries for last-write-wins.
type LogicalLine struct {
	Seq  int
	Text string
}

// NewDecoder wraps r so UTF-8 and UTF-16 logs with a byte-order mark are
// decoded to UTF-8 and the mark is dropped. Input without a mark passes
// through unchanged.
func NewDecoder(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(encoding.Nop.NewDecoder()))
}

// Scan reads r line by line and calls fn for each line. Trailing CR is
// stripped. Scanning stops at the first error from fn or at ctx cancellation.
func Scan(ctx context.Context, r io.Reader, fn func(RawLine) error) error {
	return scan(ctx, r, maxLineBytes, fn)
}

func scan(ctx context.Context, r io.Reader, limit int, fn func(RawLine) error) error {
	br := bufio.NewReaderSize(NewDecoder(r), 64*1024)
	var buf []byte
	n := 0
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", n+1, err)
		}
		n++
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		buf = append(buf[:0], chunk...)
		oversized := len(buf) > limit
		for isPrefix {
			chunk, isPrefix, err = br.ReadLine()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("line %d: %w", n, err)
			}
			if !oversized && len(buf)+len(chunk) <= limit {
				buf = append(buf, chunk...)
			} else {
				oversized = true
				buf = buf[:0]
			}
		}

		line := RawLine{Number: n, Oversized: oversized}
		if !oversized {
			line.Text = strings.TrimRight(string(buf), "\r")
		}
		if err := fn(line); err != nil {
			return err
		}
	}
}

// ReadFile reads every line of the log at path. Failure to open or read the
// log is a fatal diag.IoError. Oversized lines are kept, without text.
func ReadFile(ctx context.Context, path string) ([]RawLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, diag.Errorf(diag.IoError, path, "open log: %w", err)
	}
	defer f.Close()

	var lines []RawLine
	err = Scan(ctx, f, func(l RawLine) error {
		if l.Oversized {
			slog.Warn("scan.line.oversized", "path", path, "line", l.Number, "limit", maxLineBytes)
		}
		lines = append(lines, l)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, diag.Errorf(diag.IoError, path, "read log: %w", err)
	}
	return lines, nil
}

// Classifier decides where a wrapped compiler command starts and ends.
type Classifier interface {
	// StartsCommand reports whether text invokes the configured compiler.
	StartsCommand(text string) bool
	// EndsCommand reports whether text ends with a source file argument.
	EndsCommand(text string) bool
}

// Merge joins compiler commands that continue over several lines. A line that
// starts a command but does not end with a source file absorbs the following
// lines, joined with a single space, until one of them ends with a source
// file. The pending command is emitted as-is when another command starts,
// when maxLines physical lines have been absorbed, or at the end of input.
// Lines outside a command pass through unchanged.
func Merge(lines []RawLine, cls Classifier, maxLines int) []LogicalLine {
	out := make([]LogicalLine, 0, len(lines))

	var pending strings.Builder
	pendingSeq := 0
	absorbed := 0

	flush := func(reason string) {
		if pendingSeq == 0 {
			return
		}
		if reason != "" {
			slog.Debug("scan.merge.flush", "line", pendingSeq, "reason", reason, "absorbed", absorbed)
		}
		out = append(out, LogicalLine{Seq: pendingSeq, Text: pending.String()})
		pending.Reset()
		pendingSeq = 0
		absorbed = 0
	}

	for _, l := range lines {
		if pendingSeq != 0 {
			if cls.StartsCommand(l.Text) {
				flush("new_command")
			} else {
				pending.WriteByte(' ')
				pending.WriteString(l.Text)
				absorbed++
				switch {
				case cls.EndsCommand(l.Text):
					flush("")
				case absorbed >= maxLines:
					flush("limit")
				}
				continue
			}
		}

		if cls.StartsCommand(l.Text) && !cls.EndsCommand(l.Text) {
			pending.WriteString(l.Text)
			pendingSeq = l.Number
			continue
		}
		out = append(out, LogicalLine{Seq: l.Number, Text: l.Text})
	}
	flush("eof")
	return out
}

// Passthrough converts physical lines to logical lines without merging.
func Passthrough(lines []RawLine) []LogicalLine {
	out := make([]LogicalLine, len(lines))
	for i, l := range lines {
		out[i] = LogicalLine{Seq: l.Number, Text: l.Text}
	}
	return out
}
