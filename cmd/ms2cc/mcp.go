package main

import (
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/DeusData/ms2cc/internal/store"
	"github.com/DeusData/ms2cc/internal/tools"
)

func newMCPCmd(opts *globalOptions) *cobra.Command {
	var noHistory bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve ms2cc as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			var st *store.Store
			if !noHistory {
				if st, err = openHistory(cfg); err != nil {
					return err
				}
				defer st.Close()
			}

			srv := tools.NewServer(st, version)
			slog.Info("mcp.start", "version", version, "history", !noHistory)
			return srv.MCPServer().Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record runs; disables lookup_compile_command and list_runs")
	return cmd
}
