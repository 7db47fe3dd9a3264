// Package tools exposes compile database generation and history lookups as
// MCP tools.
package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/ms2cc/internal/store"
)

// Server wraps the MCP server with tool handlers.
type Server struct {
	mcp   *mcp.Server
	store *store.Store // nil disables history tools

	genMu sync.Mutex // one generate run at a time
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(s *store.Store, version string) *Server {
	srv := &Server{
		store: s,
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "ms2cc",
				Version: version,
			},
			nil,
		),
	}
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "generate_compile_commands",
		Description: "Convert an MSBuild build log into compile_commands.json. Indexes the source tree, extracts every compiler invocation from the log, resolves each source file to one absolute path and writes the deduplicated database. Returns entry count, diagnostics summary and the run ID when history is enabled.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"input_file": {
					"type": "string",
					"description": "Path to the MSBuild log (detailed or diagnostic verbosity)."
				},
				"source_directory": {
					"type": "string",
					"description": "Root of the source tree to index."
				},
				"output_file": {
					"type": "string",
					"description": "Where to write the database. Defaults to compile_commands.json inside source_directory."
				},
				"pretty_print": {
					"type": "boolean",
					"description": "Indent the JSON output."
				},
				"max_threads": {
					"type": "integer",
					"description": "Worker count for indexing and resolution (default 8)."
				},
				"compiler_executable": {
					"type": "string",
					"description": "Compiler name to look for in the log (default cl.exe)."
				},
				"exclude_directories": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Directory names pruned from the index (default [\".git\"])."
				},
				"file_extensions": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Source and header extensions to index, without dot."
				},
				"report_file": {
					"type": "string",
					"description": "Optional path for a YAML diagnostics report."
				}
			},
			"required": ["input_file", "source_directory"]
		}`),
	}, s.handleGenerate)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "lookup_compile_command",
		Description: "Return the compile command recorded for a source file by the most recent run that produced one. Accepts an absolute path, a path fragment (src/main.cpp) or a bare file name. Requires history.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"file": {
					"type": "string",
					"description": "Source file path or name."
				}
			},
			"required": ["file"]
		}`),
	}, s.handleLookup)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "list_runs",
		Description: "List recorded conversion runs, newest first, with log, source root, entry and diagnostic counts. Requires history.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {
					"type": "integer",
					"description": "Maximum runs to return (default 10, 0 for all)."
				}
			}
		}`),
	}, s.handleListRuns)
}

// jsonResult marshals data to JSON and returns it as a tool result.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult("json marshal err=" + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

// errResult returns a tool result indicating an error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// parseArgs unmarshals the raw JSON arguments into a map.
func parseArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	if len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return m, nil
}

func getStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// getIntArg extracts an integer argument with a default value.
func getIntArg(args map[string]any, key string, defaultVal int) int {
	f, ok := args[key].(float64) // JSON numbers decode as float64
	if !ok {
		return defaultVal
	}
	return int(f)
}

func getBoolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

// getStringSliceArg extracts a string array. ok is false when the key is
// absent, so callers can keep their defaults.
func getStringSliceArg(args map[string]any, key string) (vals []string, ok bool) {
	raw, ok := args[key].([]any)
	if !ok {
		return nil, false
	}
	for _, v := range raw {
		if s, isStr := v.(string); isStr {
			vals = append(vals, s)
		}
	}
	return vals, true
}
