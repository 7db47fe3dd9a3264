package compdb

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DeusData/ms2cc/internal/diag"
)

func TestEncodeEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, nil, true); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Fatalf("expected [], got %q", got)
	}
}

func TestEncodeKeepsArgumentsVerbatim(t *testing.T) {
	cmds := []CompileCommand{{
		Directory: `C:\src`,
		File:      `C:\src\a&b.cpp`,
		Arguments: []string{"cl.exe", "/DVER=<1>", `C:\src\a&b.cpp`},
	}}
	var buf bytes.Buffer
	if err := Encode(&buf, cmds, false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `"/DVER=<1>"`) || !strings.Contains(out, `a&b.cpp`) {
		t.Fatalf("expected unescaped output, got %s", out)
	}
	if !strings.HasPrefix(out, `[{"directory":`) {
		t.Fatalf("expected directory, file, arguments key order, got %s", out)
	}

	back, err := Decode(strings.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 1 || back[0].Arguments[1] != "/DVER=<1>" {
		t.Fatalf("decode mismatch: %+v", back)
	}
}

func TestWriteFileReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "compile_commands.json")
	if err := os.WriteFile(path, []byte("stale"), 0o600); err != nil {
		t.Fatal(err)
	}
	cmds := []CompileCommand{{Directory: "/p", File: "/p/a.cpp", Arguments: []string{"cl.exe", "a.cpp"}}}
	if err := WriteFile(path, cmds, true); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  {\n    \"directory\": \"/p\"") {
		t.Fatalf("unexpected content %s", data)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0o644 {
		t.Fatalf("expected mode 0644, got %v", info.Mode().Perm())
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestWriteFileMissingDirectory(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "nope", "out.json"), nil, false)
	if kind, ok := diag.KindOf(err); !ok || kind != diag.IoError {
		t.Fatalf("expected IoError, got %v", err)
	}
}

func TestWriteReport(t *testing.T) {
	ds := []diag.Diagnostic{
		diag.New(diag.NotFound, 2, "gone.cpp", "not in index"),
		diag.New(diag.IoError, 0, "/p/locked", "permission denied"),
	}
	path := filepath.Join(t.TempDir(), "report.yaml")
	r := &Report{
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		InputFile:   "/logs/build.log",
		SourceRoot:  "/p",
		OutputFile:  "/p/compile_commands.json",
		Entries:     3,
		Summary:     diag.Summarize(ds, 5),
		Diagnostics: ds,
	}
	if err := WriteReport(path, r); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(path); err != nil || (runtime.GOOS != "windows" && info.Mode().Perm() != 0o644) {
		t.Fatalf("report not world-readable: %v %v", info, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var doc struct {
		Entries int `yaml:"entries"`
		Summary struct {
			Total int `yaml:"total"`
			Kinds []struct {
				Kind  string `yaml:"kind"`
				Count int    `yaml:"count"`
			} `yaml:"kinds"`
		} `yaml:"summary"`
		Diagnostics []struct {
			Kind     string `yaml:"kind"`
			Severity string `yaml:"severity"`
			Filename string `yaml:"filename"`
		} `yaml:"diagnostics"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("report is not valid YAML: %v\n%s", err, data)
	}
	if doc.Entries != 3 || doc.Summary.Total != 2 || len(doc.Summary.Kinds) != 2 {
		t.Fatalf("unexpected report %+v", doc)
	}
	if doc.Summary.Kinds[0].Kind != "NotFound" || doc.Diagnostics[1].Severity != "warning" {
		t.Fatalf("unexpected kinds %+v / %+v", doc.Summary.Kinds, doc.Diagnostics)
	}
}
