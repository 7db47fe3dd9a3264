package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DeusData/ms2cc/internal/diag"
)

var version = "dev"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "ms2cc",
		Short: "Generate compile_commands.json from an MSBuild log",
		Long: `ms2cc reads an MSBuild build log, finds every compiler invocation in it,
resolves each source file against an index of the source tree and writes a
deduplicated compile_commands.json.

Settings come from flags, MS2CC_* environment variables and .ms2cc.yaml in the
working directory (or --config), in that order of priority.`,
		Example: `  ms2cc -i msbuild.log -d C:\src\project -o compile_commands.json
  ms2cc -i build.log -d . -t 16 --report diagnostics.yaml --history-db ~/.cache/ms2cc/history.db`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, opts)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (default is .ms2cc.yaml in the working directory)")
	pf.String("log-level", "warn", "log level (debug|info|warn|error|off)")
	pf.String("log-format", "text", "log format (text|json)")
	pf.String("history-db", "", "sqlite database recording runs (history commands default to ~/.cache/ms2cc/history.db)")
	pf.String("color", "auto", "colorize output (auto|on|off)")

	addGenerateFlags(rootCmd)
	rootCmd.AddCommand(
		newGenerateCmd(opts),
		newHistoryCmd(opts),
		newLookupCmd(opts),
		newMCPCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError prints a fatal error. Configuration errors also point at --help.
func reportError(w io.Writer, err error) {
	fmt.Fprintln(w, "ms2cc:", err)
	if kind, ok := diag.KindOf(err); ok && kind == diag.ConfigError {
		fmt.Fprintln(w, "run 'ms2cc --help' for usage")
	}
}
