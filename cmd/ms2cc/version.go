package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

type versionPayload struct {
	Tool      string `json:"tool"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Commit    string `json:"commit,omitempty"`
}

func buildCommit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

func newVersionCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := versionPayload{
				Tool:      "ms2cc",
				Version:   version,
				GoVersion: runtime.Version(),
				Commit:    buildCommit(),
			}
			switch format {
			case "json":
				return writeJSON(cmd.OutOrStdout(), p)
			case "text", "":
				fmt.Fprintln(cmd.OutOrStdout(), p.Tool, p.Version)
				return nil
			}
			return fmt.Errorf("invalid --format %q (expected text|json)", format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format (text|json)")
	return cmd
}
