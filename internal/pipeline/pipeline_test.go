package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/DeusData/ms2cc/internal/compdb"
	"github.com/DeusData/ms2cc/internal/config"
	"github.com/DeusData/ms2cc/internal/diag"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// setupProject creates a source tree and a build log, and returns a
// validated configuration for them.
func setupProject(t *testing.T, files []string, log string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "proj")
	for _, f := range files {
		writeFile(t, filepath.Join(root, filepath.FromSlash(f)), "int x;\n")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	logPath := filepath.Join(dir, "msbuild.log")
	writeFile(t, logPath, log)

	cfg := config.Default()
	cfg.InputFile = logPath
	cfg.SourceDirectory = root
	cfg.MaxThreads = 4
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func run(t *testing.T, cfg *config.Config) *Result {
	t.Helper()
	res, err := New(context.Background(), cfg).Run()
	if err != nil {
		t.Fatalf("Pipeline.Run: %v", err)
	}
	return res
}

func TestPipelineBasic(t *testing.T) {
	cfg := setupProject(t, []string{"src/main.cpp"}, strings.Join([]string{
		"Build started.",
		`  1>ClCompile:`,
		`  CL.exe /c /Iinc /W4 /nologo src\main.cpp`,
		"Build succeeded.",
	}, "\r\n"))

	res := run(t, cfg)
	if len(res.Commands) != 1 {
		t.Fatalf("expected 1 entry, got %d (diags: %v)", len(res.Commands), res.Diagnostics)
	}
	c := res.Commands[0]
	if c.Directory != cfg.SourceDirectory {
		t.Errorf("directory: expected %s, got %s", cfg.SourceDirectory, c.Directory)
	}
	if c.File != filepath.Join(cfg.SourceDirectory, "src", "main.cpp") {
		t.Errorf("file: got %s", c.File)
	}
	want := []string{"CL.exe", "/c", "/Iinc", "/W4", "/nologo", `src\main.cpp`}
	if strings.Join(c.Arguments, "|") != strings.Join(want, "|") {
		t.Errorf("arguments: expected %v, got %v", want, c.Arguments)
	}
	if !filepath.IsAbs(c.File) {
		t.Errorf("expected absolute path, got %s", c.File)
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("expected no diagnostics, got %v", res.Diagnostics)
	}
}

func TestPipelineAmbiguity(t *testing.T) {
	cfg := setupProject(t, []string{"a/x.cpp", "b/x.cpp"}, strings.Join([]string{
		`cl.exe /c x.cpp`,
		`cl.exe /c /Foa\ x.cpp`,
	}, "\n"))

	res := run(t, cfg)
	if len(res.Commands) != 1 || res.Commands[0].File != filepath.Join(cfg.SourceDirectory, "a", "x.cpp") {
		t.Fatalf("expected a/x.cpp only, got %+v", res.Commands)
	}
	if res.Summary.Count(diag.AmbiguousPath) != 1 {
		t.Fatalf("expected one AmbiguousPath, got %+v", res.Summary)
	}
	if d := res.Diagnostics[0]; d.Line != 1 || len(d.Candidates) != 2 {
		t.Fatalf("unexpected diagnostic %+v", d)
	}
}

func TestPipelineLastWriteWins(t *testing.T) {
	cfg := setupProject(t, []string{"main.cpp"}, strings.Join([]string{
		`cl.exe /c /O1 main.cpp`,
		`cl.exe /c /O2 main.cpp`,
	}, "\n"))

	res := run(t, cfg)
	if len(res.Commands) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(res.Commands))
	}
	if got := res.Commands[0].Arguments[2]; got != "/O2" {
		t.Fatalf("expected later line to win, got %v", res.Commands[0].Arguments)
	}
}

func TestPipelineFlagPolicy(t *testing.T) {
	cfg := setupProject(t, []string{"main.cpp", "pch.cpp"},
		`cl.exe /c /Yupch.h /Fpx64\pch.pch /FIpch.h main.cpp`+"\n"+
			`cl.exe /c /Ycpch.h pch.cpp`)

	res := run(t, cfg)
	if len(res.Commands) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(res.Commands))
	}
	for _, c := range res.Commands {
		for _, a := range c.Arguments {
			if strings.HasPrefix(a, "/Y") || strings.HasPrefix(a, "/Fp") {
				t.Errorf("%s: PCH flag %q survived", c.File, a)
			}
		}
	}
	if !strings.Contains(strings.Join(res.Commands[0].Arguments, " "), "/FIpch.h") {
		t.Errorf("expected /FI to be kept, got %v", res.Commands[0].Arguments)
	}
}

func TestPipelineDiagnostics(t *testing.T) {
	cfg := setupProject(t, []string{"main.cpp"}, strings.Join([]string{
		`cl.exe /c /W4`,
		`link.exe /OUT:app.exe main.obj`,
		`cl.exe /c gone.cpp`,
		`cl.exe /c main.cpp`,
	}, "\n"))
	cfg.MergeContinuations = false

	res := run(t, cfg)
	if len(res.Commands) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(res.Commands))
	}
	if res.Summary.Count(diag.MalformedCommand) != 1 || res.Summary.Count(diag.NotFound) != 1 {
		t.Fatalf("unexpected summary %+v", res.Summary)
	}
}

func TestPipelineOversizedLineIsSkipped(t *testing.T) {
	cfg := setupProject(t, []string{"src/main.cpp"},
		strings.Repeat("x", 17<<20)+"\r\n  cl.exe /c src\\main.cpp\r\n")

	res := run(t, cfg)
	if len(res.Commands) != 1 {
		t.Fatalf("expected 1 entry after an oversized line, got %d (diags %v)", len(res.Commands), res.Diagnostics)
	}
	if res.Summary.Count(diag.IoError) != 1 {
		t.Fatalf("expected 1 IoError, got %+v", res.Summary)
	}
	d := res.Diagnostics[0]
	if d.Line != 1 || d.Filename != cfg.InputFile || d.Severity != diag.SevWarning {
		t.Fatalf("unexpected diagnostic %+v", d)
	}
}

func TestPipelineKeepsNonUTF8Arguments(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("file names that are not valid UTF-8 need a byte-oriented filesystem")
	}
	cfg := setupProject(t, []string{"src/caf\xe9.cpp", "src/caf\xe8.cpp"},
		"cl.exe /c /DNAME=caf\xe9 src\\caf\xe9.cpp\r\n")

	res := run(t, cfg)
	if len(res.Commands) != 1 {
		t.Fatalf("expected 1 entry, got %d (diags %v)", len(res.Commands), res.Diagnostics)
	}
	c := res.Commands[0]
	if filepath.Base(c.File) != "caf\xe9.cpp" {
		t.Fatalf("resolved the wrong file %q", c.File)
	}
	want := []string{"cl.exe", "/c", "/DNAME=caf\xe9", "src\\caf\xe9.cpp"}
	if strings.Join(c.Arguments, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %q, got %q", want, c.Arguments)
	}
}

func TestPipelineContinuation(t *testing.T) {
	cfg := setupProject(t, []string{"src/main.cpp"}, strings.Join([]string{
		`cl.exe /c /nologo`,
		`   /Iinc`,
		`   src\main.cpp`,
	}, "\n"))

	res := run(t, cfg)
	if len(res.Commands) != 1 {
		t.Fatalf("expected merged command, got %d entries (diags %v)", len(res.Commands), res.Diagnostics)
	}
	want := []string{"cl.exe", "/c", "/nologo", "/Iinc", `src\main.cpp`}
	if strings.Join(res.Commands[0].Arguments, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, res.Commands[0].Arguments)
	}
	if res.LogLines != 3 || res.LogicalLines != 1 {
		t.Fatalf("expected 3 physical lines in 1 command, got %d / %d", res.LogLines, res.LogicalLines)
	}
}

func TestPipelineExtensionAndExclusionFilters(t *testing.T) {
	cfg := setupProject(t, []string{"main.CPP", "gen.rc", ".git/x/vendor.cpp", "build/.git/old.cpp"}, strings.Join([]string{
		`cl.exe /c main.CPP`,
		`cl.exe /c vendor.cpp`,
		`cl.exe /c old.cpp`,
	}, "\n"))

	res := run(t, cfg)
	if len(res.Commands) != 1 || filepath.Base(res.Commands[0].File) != "main.CPP" {
		t.Fatalf("expected only main.CPP, got %+v", res.Commands)
	}
	if res.Summary.Count(diag.NotFound) != 2 {
		t.Fatalf("expected 2 NotFound, got %+v", res.Summary)
	}
}

func TestPipelineEmptyLog(t *testing.T) {
	cfg := setupProject(t, []string{"main.cpp"}, "")
	res := run(t, cfg)
	if len(res.Commands) != 0 || len(res.Diagnostics) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
	var buf bytes.Buffer
	if err := compdb.Encode(&buf, res.Commands, false); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("expected [], got %q", buf.String())
	}
}

func TestPipelineIdempotentAndWorkerInvariant(t *testing.T) {
	var files []string
	var log []string
	for _, d := range []string{"a", "b", "c/d", "e"} {
		for _, n := range []string{"one.cpp", "two.cpp", "three.cpp"} {
			files = append(files, d+"/"+n)
			log = append(log, `cl.exe /c /Fo`+strings.ReplaceAll(d, "/", `\`)+`\ `+n)
		}
	}
	log = append(log, "cl.exe /c one.cpp", "cl.exe /c nothing.cpp")
	cfg := setupProject(t, files, strings.Join(log, "\n"))

	encode := func(workers int) string {
		cfg.MaxThreads = workers
		var buf bytes.Buffer
		res := run(t, cfg)
		if err := compdb.Encode(&buf, res.Commands, true); err != nil {
			t.Fatal(err)
		}
		for _, d := range res.Diagnostics {
			buf.WriteString(d.String() + "\n")
		}
		return buf.String()
	}

	base := encode(1)
	if again := encode(1); again != base {
		t.Fatal("two runs with the same input differ")
	}
	for _, w := range []int{2, 8} {
		if got := encode(w); got != base {
			t.Fatalf("workers=%d output differs from workers=1", w)
		}
	}
}

func TestPipelineMissingLogIsFatal(t *testing.T) {
	cfg := setupProject(t, []string{"main.cpp"}, "cl.exe main.cpp")
	if err := os.Remove(cfg.InputFile); err != nil {
		t.Fatal(err)
	}
	_, err := New(context.Background(), cfg).Run()
	if kind, ok := diag.KindOf(err); !ok || kind != diag.IoError {
		t.Fatalf("expected IoError, got %v", err)
	}
}

func TestPipelineCancellation(t *testing.T) {
	cfg := setupProject(t, []string{"main.cpp"}, "cl.exe main.cpp")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(ctx, cfg).Run()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestProgressCounters(t *testing.T) {
	cfg := setupProject(t, []string{"a.cpp", "b.cpp"}, "cl.exe /c a.cpp b.cpp\nother line")
	p := New(context.Background(), cfg)
	if _, err := p.Run(); err != nil {
		t.Fatalf("Pipeline.Run: %v", err)
	}
	s := p.Progress.Snapshot()
	if s.Phase != PhaseDone || s.FilesIndexed != 2 || s.LinesProcessed != 2 || s.EntriesResolved != 2 || s.Invocations != 2 {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if s.Fraction() != 1 {
		t.Fatalf("expected fraction 1, got %v", s.Fraction())
	}
}
