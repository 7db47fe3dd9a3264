package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/ms2cc/internal/store"
)

const errNoHistory = "history is disabled: start the server with --history-db"

func (s *Server) handleLookup(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return errResult(errNoHistory), nil
	}
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	file := getStringArg(args, "file")
	if file == "" {
		return errResult("file is required"), nil
	}

	m, err := s.store.FindCommand(file)
	if errors.Is(err, store.ErrNotFound) {
		return errResult(fmt.Sprintf("no recorded compile command for %s", file)), nil
	}
	if err != nil {
		return errResult(fmt.Sprintf("lookup failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"directory":   m.Command.Directory,
		"file":        m.Command.File,
		"arguments":   m.Command.Arguments,
		"run_id":      m.Run.ID,
		"recorded_at": m.Run.CreatedAt,
		"log_path":    m.Run.LogPath,
	}), nil
}

func (s *Server) handleListRuns(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return errResult(errNoHistory), nil
	}
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	runs, err := s.store.ListRuns(getIntArg(args, "limit", 10))
	if err != nil {
		return errResult(fmt.Sprintf("list runs: %v", err)), nil
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	return jsonResult(map[string]any{
		"runs":  runs,
		"count": len(runs),
	}), nil
}
