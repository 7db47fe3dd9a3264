package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/DeusData/ms2cc/internal/compdb"
	"github.com/DeusData/ms2cc/internal/config"
	"github.com/DeusData/ms2cc/internal/diag"
	"github.com/DeusData/ms2cc/internal/store"
)

// openHistory opens the configured history database, or the default one
// under the user cache directory.
func openHistory(cfg *config.Config) (*store.Store, error) {
	path := cfg.HistoryDB
	if path == "" {
		var err error
		if path, err = store.DefaultPath(); err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
	}
	st, err := store.OpenPath(path)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	slog.Debug("history.open", "path", path)
	return st, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			st, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(limit)
			if err != nil {
				return err
			}
			if asJSON {
				if runs == nil {
					runs = []*store.Run{}
				}
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			printer, err := newPrinter(cmd, cfg.Color)
			if err != nil {
				return err
			}
			printer.Runs(runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.AddCommand(newHistoryShowCmd(opts), newHistoryDeleteCmd(opts))
	return cmd
}

func newHistoryShowCmd(opts *globalOptions) *cobra.Command {
	var asJSON, withCommands bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its diagnostics (a unique ID prefix is enough)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			st, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.GetRun(args[0])
			if err != nil {
				return err
			}
			diags, err := st.DiagnosticsForRun(run.ID, nil)
			if err != nil {
				return err
			}
			var cmds []compdb.CompileCommand
			if withCommands {
				if cmds, err = st.CommandsForRun(run.ID); err != nil {
					return err
				}
			}
			if asJSON {
				if diags == nil {
					diags = []diag.Diagnostic{}
				}
				payload := map[string]any{
					"run":         run,
					"diagnostics": diags,
				}
				if withCommands {
					if cmds == nil {
						cmds = []compdb.CompileCommand{}
					}
					payload["commands"] = cmds
				}
				return writeJSON(cmd.OutOrStdout(), payload)
			}
			printer, err := newPrinter(cmd, cfg.Color)
			if err != nil {
				return err
			}
			printer.Run(run, diag.Summarize(diags, cfg.MaxSamples))
			if withCommands {
				fmt.Fprintln(cmd.OutOrStdout())
				printer.Commands(cmds)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&withCommands, "commands", false, "also list the recorded compile commands")
	cmd.Flags().Int("max-samples", config.DefaultMaxSamples, "diagnostics shown per kind")
	return cmd
}

func newHistoryDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a recorded run (a unique ID prefix is enough)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			st, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.GetRun(args[0])
			if err != nil {
				return err
			}
			if err := st.DeleteRun(run.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", run.ID)
			return nil
		},
	}
}

func newLookupCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <file>",
		Short: "Print the latest recorded compile command for a source file",
		Long: `lookup searches the run history for the newest entry whose file matches the
argument: an absolute path, a trailing path fragment (src/main.cpp) or a bare
file name, compared case-insensitively.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			st, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			m, err := st.FindCommand(args[0])
			if err != nil {
				return err
			}
			slog.Info("lookup.hit", "file", m.Command.File, "run", m.Run.ID)
			return writeJSON(cmd.OutOrStdout(), m.Command)
		},
	}
}
