// Package config loads and validates the settings of an ms2cc run.
//
// Settings are layered, highest priority first:
//  1. command-line flags bound with BindFlags
//  2. MS2CC_<KEY> environment variables (MS2CC_MAX_THREADS, MS2CC_SOURCE_DIRECTORY, ...)
//  3. the config file (--config, else .ms2cc.yaml in the working directory)
//  4. built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/DeusData/ms2cc/internal/diag"
)

const (
	DefaultCompilerExecutable   = "cl.exe"
	DefaultMaxThreads           = 8
	DefaultOutputFile           = "compile_commands.json"
	DefaultMaxContinuationLines = 32
	DefaultMaxSamples           = 5
)

// Entry directory modes.
const (
	EntryDirectoryRoot = "root" // every entry uses the source root
	EntryDirectoryFile = "file" // every entry uses the file's containing folder
)

// DefaultExcludeDirectories are directory names pruned from the index.
var DefaultExcludeDirectories = []string{".git"}

// DefaultFileExtensions are the source and header extensions that are indexed.
var DefaultFileExtensions = []string{
	"c", "cc", "cpp", "cxx", "c++",
	"h", "hh", "hpp", "hxx", "h++", "inl",
}

// Config holds every setting of a run.
type Config struct {
	InputFile            string   `mapstructure:"input_file" yaml:"input_file"`
	OutputFile           string   `mapstructure:"output_file" yaml:"output_file"`
	PrettyPrint          bool     `mapstructure:"pretty_print" yaml:"pretty_print"`
	SourceDirectory      string   `mapstructure:"source_directory" yaml:"source_directory"`
	ExcludeDirectories   []string `mapstructure:"exclude_directories" yaml:"exclude_directories"`
	FileExtensions       []string `mapstructure:"file_extensions" yaml:"file_extensions"`
	CompilerExecutable   string   `mapstructure:"compiler_executable" yaml:"compiler_executable"`
	MaxThreads           int      `mapstructure:"max_threads" yaml:"max_threads"`
	EntryDirectory       string   `mapstructure:"entry_directory" yaml:"entry_directory"`
	MergeContinuations   bool     `mapstructure:"merge_continuations" yaml:"merge_continuations"`
	MaxContinuationLines int      `mapstructure:"max_continuation_lines" yaml:"max_continuation_lines"`
	MaxSamples           int      `mapstructure:"max_samples" yaml:"max_samples"`
	ReportFile           string   `mapstructure:"report_file" yaml:"report_file"`
	HistoryDB            string   `mapstructure:"history_db" yaml:"history_db"`
	LogLevel             string   `mapstructure:"log_level" yaml:"log_level"`
	LogFormat            string   `mapstructure:"log_format" yaml:"log_format"`
	UI                   string   `mapstructure:"ui" yaml:"ui"`
	Color                string   `mapstructure:"color" yaml:"color"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		OutputFile:           DefaultOutputFile,
		ExcludeDirectories:   append([]string(nil), DefaultExcludeDirectories...),
		FileExtensions:       append([]string(nil), DefaultFileExtensions...),
		CompilerExecutable:   DefaultCompilerExecutable,
		MaxThreads:           DefaultMaxThreads,
		EntryDirectory:       EntryDirectoryRoot,
		MergeContinuations:   true,
		MaxContinuationLines: DefaultMaxContinuationLines,
		MaxSamples:           DefaultMaxSamples,
		LogLevel:             "warn",
		LogFormat:            "text",
		UI:                   "auto",
		Color:                "auto",
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"input-file":             "input_file",
	"output-file":            "output_file",
	"pretty-print":           "pretty_print",
	"source-directory":       "source_directory",
	"exclude-directories":    "exclude_directories",
	"file-extensions":        "file_extensions",
	"compiler-executable":    "compiler_executable",
	"max-threads":            "max_threads",
	"entry-directory":        "entry_directory",
	"merge-continuations":    "merge_continuations",
	"max-continuation-lines": "max_continuation_lines",
	"max-samples":            "max_samples",
	"report":                 "report_file",
	"history-db":             "history_db",
	"log-level":              "log_level",
	"log-format":             "log_format",
	"ui":                     "ui",
	"color":                  "color",
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("input_file", d.InputFile)
	v.SetDefault("output_file", d.OutputFile)
	v.SetDefault("pretty_print", d.PrettyPrint)
	v.SetDefault("source_directory", d.SourceDirectory)
	v.SetDefault("exclude_directories", d.ExcludeDirectories)
	v.SetDefault("file_extensions", d.FileExtensions)
	v.SetDefault("compiler_executable", d.CompilerExecutable)
	v.SetDefault("max_threads", d.MaxThreads)
	v.SetDefault("entry_directory", d.EntryDirectory)
	v.SetDefault("merge_continuations", d.MergeContinuations)
	v.SetDefault("max_continuation_lines", d.MaxContinuationLines)
	v.SetDefault("max_samples", d.MaxSamples)
	v.SetDefault("report_file", d.ReportFile)
	v.SetDefault("history_db", d.HistoryDB)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("ui", d.UI)
	v.SetDefault("color", d.Color)

	v.SetEnvPrefix("MS2CC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds every known flag present in fs to its config key.
// Flags that were not set on the command line do not override lower layers.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the config file (explicit path, else .ms2cc.yaml in dir if present)
// and decodes all layers into a Config. The result is normalized, not validated.
func Load(v *viper.Viper, configFile, dir string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, diag.Errorf(diag.ConfigError, configFile, "read config: %w", err)
		}
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName(".ms2cc")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, diag.Errorf(diag.ConfigError, v.ConfigFileUsed(), "read config: %w", err)
			}
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, diag.Errorf(diag.ConfigError, "", "decode config: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize canonicalizes list settings: extensions are lowercased with any
// leading dot removed, blank entries are dropped from both lists.
func (c *Config) Normalize() {
	c.FileExtensions = NormalizeExtensions(c.FileExtensions)
	excludes := c.ExcludeDirectories[:0:0]
	for _, d := range c.ExcludeDirectories {
		if d = strings.TrimSpace(d); d != "" {
			excludes = append(excludes, d)
		}
	}
	c.ExcludeDirectories = excludes
	c.CompilerExecutable = strings.TrimSpace(c.CompilerExecutable)
	c.EntryDirectory = strings.ToLower(strings.TrimSpace(c.EntryDirectory))
}

// NormalizeExtensions lowercases extensions and strips a leading dot.
// Duplicates and blanks are dropped; order is preserved.
func NormalizeExtensions(exts []string) []string {
	seen := make(map[string]bool, len(exts))
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// Validate checks the settings needed to run the pipeline. Every failure is a
// diag.ConfigError. SourceDirectory and InputFile are made absolute.
func (c *Config) Validate() error {
	if c.MaxThreads < 1 {
		return diag.Errorf(diag.ConfigError, "", "max_threads must be at least 1, got %d", c.MaxThreads)
	}
	if len(c.FileExtensions) == 0 {
		return diag.Errorf(diag.ConfigError, "", "file_extensions is empty")
	}
	if c.CompilerExecutable == "" {
		return diag.Errorf(diag.ConfigError, "", "compiler_executable is empty")
	}
	if c.EntryDirectory != EntryDirectoryRoot && c.EntryDirectory != EntryDirectoryFile {
		return diag.Errorf(diag.ConfigError, "", "entry_directory must be %q or %q, got %q",
			EntryDirectoryRoot, EntryDirectoryFile, c.EntryDirectory)
	}
	if c.MaxContinuationLines < 1 {
		return diag.Errorf(diag.ConfigError, "", "max_continuation_lines must be at least 1, got %d", c.MaxContinuationLines)
	}
	if c.MaxSamples < 0 {
		return diag.Errorf(diag.ConfigError, "", "max_samples must not be negative, got %d", c.MaxSamples)
	}

	if c.InputFile == "" {
		return diag.Errorf(diag.ConfigError, "", "input_file is required")
	}
	in, err := filepath.Abs(c.InputFile)
	if err != nil {
		return diag.Errorf(diag.ConfigError, c.InputFile, "resolve path: %w", err)
	}
	info, err := os.Stat(in)
	if err != nil {
		return diag.Errorf(diag.ConfigError, in, "input file: %w", err)
	}
	if info.IsDir() {
		return diag.Errorf(diag.ConfigError, in, "input file is a directory")
	}
	c.InputFile = in

	if c.SourceDirectory == "" {
		return diag.Errorf(diag.ConfigError, "", "source_directory is required")
	}
	root, err := filepath.Abs(c.SourceDirectory)
	if err != nil {
		return diag.Errorf(diag.ConfigError, c.SourceDirectory, "resolve path: %w", err)
	}
	info, err = os.Stat(root)
	if err != nil {
		return diag.Errorf(diag.ConfigError, root, "source directory: %w", err)
	}
	if !info.IsDir() {
		return diag.Errorf(diag.ConfigError, root, "source directory is not a directory")
	}
	c.SourceDirectory = root

	if c.OutputFile == "" {
		c.OutputFile = DefaultOutputFile
	}
	return nil
}
