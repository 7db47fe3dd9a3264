// Package diag holds the diagnostics model shared by every stage: per-entry
// problems recorded as data, and the typed fatal errors that abort a run.
package diag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a diagnostic or fatal error.
type Kind uint8

const (
	// MalformedCommand: the compiler was named but no source token was found.
	MalformedCommand Kind = iota
	// NotFound: the source basename is absent from the index.
	NotFound
	// AmbiguousPath: several indexed files match and the hint does not single one out.
	AmbiguousPath
	// IoError: a file or directory could not be read.
	IoError
	// ConfigError: the run configuration is invalid.
	ConfigError
)

// Kinds lists every kind in report order.
var Kinds = []Kind{MalformedCommand, NotFound, AmbiguousPath, IoError, ConfigError}

func (k Kind) String() string {
	switch k {
	case MalformedCommand:
		return "MalformedCommand"
	case NotFound:
		return "NotFound"
	case AmbiguousPath:
		return "AmbiguousPath"
	case IoError:
		return "IoError"
	case ConfigError:
		return "ConfigError"
	}
	return "Unknown"
}

// MarshalText renders the kind by name in JSON and YAML output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind is the inverse of Kind.String. Matching is case-insensitive.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if strings.EqualFold(k.String(), s) {
			return k, true
		}
	}
	return 0, false
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, ok := ParseKind(string(text))
	if !ok {
		return fmt.Errorf("unknown diagnostic kind %q", text)
	}
	*k = parsed
	return nil
}

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "info"
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	}
	return "unknown"
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseSeverity is the inverse of Severity.String. Unknown names map to SevError.
func ParseSeverity(name string) Severity {
	switch strings.ToLower(name) {
	case "info":
		return SevInfo
	case "warning":
		return SevWarning
	}
	return SevError
}

func (s *Severity) UnmarshalText(text []byte) error {
	*s = ParseSeverity(string(text))
	return nil
}

// Diagnostic is a non-fatal problem tied to one log line or directory.
// Line is 0 when the problem is not tied to the log.
type Diagnostic struct {
	Kind       Kind     `json:"kind" yaml:"kind"`
	Severity   Severity `json:"severity" yaml:"severity"`
	Line       int      `json:"line,omitempty" yaml:"line,omitempty"`
	Filename   string   `json:"filename,omitempty" yaml:"filename,omitempty"`
	Candidates []string `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	Message    string   `json:"message" yaml:"message"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", d.Line)
	}
	b.WriteString(d.Kind.String())
	if d.Filename != "" {
		fmt.Fprintf(&b, " %q", d.Filename)
	}
	if d.Message != "" {
		b.WriteString(": ")
		b.WriteString(d.Message)
	}
	if len(d.Candidates) > 0 {
		fmt.Fprintf(&b, " (candidates: %s)", strings.Join(d.Candidates, ", "))
	}
	return b.String()
}

// New builds a diagnostic with the default severity for its kind.
func New(kind Kind, line int, filename, message string) Diagnostic {
	sev := SevError
	if kind == IoError {
		sev = SevWarning
	}
	return Diagnostic{Kind: kind, Severity: sev, Line: line, Filename: filename, Message: message}
}

// Sort orders diagnostics by line, then kind, then filename, for stable output.
func Sort(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		di, dj := ds[i], ds[j]
		if di.Line != dj.Line {
			return di.Line < dj.Line
		}
		if di.Kind != dj.Kind {
			return di.Kind < dj.Kind
		}
		return di.Filename < dj.Filename
	})
}

// KindSummary aggregates the diagnostics of one kind.
type KindSummary struct {
	Kind    Kind         `json:"kind" yaml:"kind"`
	Count   int          `json:"count" yaml:"count"`
	Samples []Diagnostic `json:"samples,omitempty" yaml:"samples,omitempty"`
}

// Summary is the per-kind digest of a run's diagnostics.
type Summary struct {
	Total int           `json:"total" yaml:"total"`
	Kinds []KindSummary `json:"kinds,omitempty" yaml:"kinds,omitempty"`
}

// Count returns the number of diagnostics of kind k.
func (s Summary) Count(k Kind) int {
	for _, ks := range s.Kinds {
		if ks.Kind == k {
			return ks.Count
		}
	}
	return 0
}

// Summarize counts ds per kind and keeps up to maxSamples of each kind,
// lowest line numbers first. Kinds with no diagnostics are omitted.
func Summarize(ds []Diagnostic, maxSamples int) Summary {
	sorted := make([]Diagnostic, len(ds))
	copy(sorted, ds)
	Sort(sorted)

	byKind := make(map[Kind]*KindSummary)
	for _, d := range sorted {
		ks, ok := byKind[d.Kind]
		if !ok {
			ks = &KindSummary{Kind: d.Kind}
			byKind[d.Kind] = ks
		}
		ks.Count++
		if len(ks.Samples) < maxSamples {
			ks.Samples = append(ks.Samples, d)
		}
	}

	sum := Summary{Total: len(ds)}
	for _, k := range Kinds {
		if ks, ok := byKind[k]; ok {
			sum.Kinds = append(sum.Kinds, *ks)
		}
	}
	return sum
}

// Error is a fatal failure that aborts the run.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a fatal error of the given kind.
func Errorf(kind Kind, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}
