package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultCompilerExecutable, cfg.CompilerExecutable)
	assert.Equal(t, DefaultMaxThreads, cfg.MaxThreads)
	assert.Equal(t, DefaultOutputFile, cfg.OutputFile)
	assert.Equal(t, []string{".git"}, cfg.ExcludeDirectories)
	assert.Equal(t, DefaultFileExtensions, cfg.FileExtensions)
	assert.Equal(t, EntryDirectoryRoot, cfg.EntryDirectory)
	assert.True(t, cfg.MergeContinuations)
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".ms2cc.yaml"), `
compiler_executable: clang-cl.exe
max_threads: 2
file_extensions: [".CPP", "h"]
pretty_print: true
`)
	t.Setenv("MS2CC_MAX_THREADS", "6")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringP("compiler-executable", "c", DefaultCompilerExecutable, "")
	fs.IntP("max-threads", "t", DefaultMaxThreads, "")
	require.NoError(t, fs.Parse([]string{"-c", "icl.exe"}))

	v := New()
	require.NoError(t, BindFlags(v, fs))
	cfg, err := Load(v, "", dir)
	require.NoError(t, err)

	assert.Equal(t, "icl.exe", cfg.CompilerExecutable, "flag beats file")
	assert.Equal(t, 6, cfg.MaxThreads, "env beats file when flag unset")
	assert.Equal(t, []string{"cpp", "h"}, cfg.FileExtensions)
	assert.True(t, cfg.PrettyPrint)
}

func TestLoadExplicitConfigMissing(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"), ".")
	kind, ok := diag.KindOf(err)
	require.True(t, ok, "expected diag error, got %v", err)
	assert.Equal(t, diag.ConfigError, kind)
}

func TestNormalizeExtensions(t *testing.T) {
	got := NormalizeExtensions([]string{".Cpp", "cpp", " H ", "", "."})
	assert.Equal(t, []string{"cpp", "h"}, got)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "msbuild.log")
	writeFile(t, logPath, "")

	valid := func() *Config {
		c := Default()
		c.InputFile = logPath
		c.SourceDirectory = dir
		return c
	}

	require.NoError(t, valid().Validate(), "empty log is allowed")

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero threads", func(c *Config) { c.MaxThreads = 0 }},
		{"no extensions", func(c *Config) { c.FileExtensions = nil }},
		{"no compiler", func(c *Config) { c.CompilerExecutable = "" }},
		{"bad entry directory", func(c *Config) { c.EntryDirectory = "cwd" }},
		{"missing log", func(c *Config) { c.InputFile = filepath.Join(dir, "missing.log") }},
		{"missing root", func(c *Config) { c.SourceDirectory = filepath.Join(dir, "missing") }},
		{"root is a file", func(c *Config) { c.SourceDirectory = logPath }},
		{"no input", func(c *Config) { c.InputFile = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			kind, ok := diag.KindOf(err)
			require.True(t, ok, "expected diag error, got %v", err)
			assert.Equal(t, diag.ConfigError, kind)
		})
	}
}
