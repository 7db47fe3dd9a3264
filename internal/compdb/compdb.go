// Package compdb defines the compilation database entry and writes the
// database and the diagnostics report.
package compdb

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DeusData/ms2cc/internal/diag"
)

// CompileCommand is one entry of compile_commands.json.
type CompileCommand struct {
	Directory string   `json:"directory" yaml:"directory"`
	File      string   `json:"file" yaml:"file"`
	Arguments []string `json:"arguments" yaml:"arguments"`
}

// Encode writes commands as a JSON array. A nil or empty slice is written
// as [].
func Encode(w io.Writer, commands []CompileCommand, pretty bool) error {
	if commands == nil {
		commands = []CompileCommand{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(commands)
}

// WriteFile writes the database to path through a temporary file in the same
// directory, so a failed run never leaves a truncated database behind.
func WriteFile(path string, commands []CompileCommand, pretty bool) error {
	return writeAtomic(path, func(w io.Writer) error {
		return Encode(w, commands, pretty)
	})
}

// Decode reads a database written by Encode.
func Decode(r io.Reader) ([]CompileCommand, error) {
	var commands []CompileCommand
	if err := json.NewDecoder(r).Decode(&commands); err != nil {
		return nil, fmt.Errorf("decode compile commands: %w", err)
	}
	return commands, nil
}

// Report is the YAML diagnostics report of one run.
type Report struct {
	GeneratedAt time.Time         `yaml:"generated_at"`
	InputFile   string            `yaml:"input_file"`
	SourceRoot  string            `yaml:"source_root"`
	OutputFile  string            `yaml:"output_file"`
	Entries     int               `yaml:"entries"`
	Summary     diag.Summary      `yaml:"summary"`
	Diagnostics []diag.Diagnostic `yaml:"diagnostics"`
}

// WriteReport writes r as YAML to path.
func WriteReport(path string, r *Report) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	})
}

// outputMode is the permission of written files; CreateTemp starts at 0600.
const outputMode = 0o644

func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return diag.Errorf(diag.IoError, path, "create: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriterSize(tmp, 64*1024)
	if err := write(bw); err != nil {
		tmp.Close()
		return diag.Errorf(diag.IoError, path, "write: %w", err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return diag.Errorf(diag.IoError, path, "flush: %w", err)
	}
	if err := tmp.Chmod(outputMode); err != nil {
		tmp.Close()
		return diag.Errorf(diag.IoError, path, "chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return diag.Errorf(diag.IoError, path, "close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return diag.Errorf(diag.IoError, path, "rename: %w", err)
	}
	return nil
}
