package store

import (
	"fmt"
	"strings"

	"github.com/DeusData/ms2cc/internal/compdb"
	"github.com/DeusData/ms2cc/internal/diag"
)

// CommandsForRun returns the entries of a run ordered by file.
func (s *Store) CommandsForRun(runID string) ([]compdb.CompileCommand, error) {
	rows, err := s.q.Query(`
		SELECT file, directory, arguments FROM commands
		WHERE run_id=? ORDER BY file_lower, file`, runID)
	if err != nil {
		return nil, fmt.Errorf("commands for run: %w", err)
	}
	defer rows.Close()
	var result []compdb.CompileCommand
	for rows.Next() {
		var c compdb.CompileCommand
		var args string
		if err := rows.Scan(&c.File, &c.Directory, &args); err != nil {
			return nil, err
		}
		c.Arguments = unmarshalList(args)
		result = append(result, c)
	}
	return result, rows.Err()
}

// DiagnosticsForRun returns the diagnostics of a run, optionally limited to
// one kind, ordered by line.
func (s *Store) DiagnosticsForRun(runID string, kind *diag.Kind) ([]diag.Diagnostic, error) {
	query := `SELECT kind, severity, line, filename, candidates, message FROM diagnostics WHERE run_id=?`
	args := []any{runID}
	if kind != nil {
		query += " AND kind=?"
		args = append(args, kind.String())
	}
	query += " ORDER BY line, id"

	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("diagnostics for run: %w", err)
	}
	defer rows.Close()
	var result []diag.Diagnostic
	for rows.Next() {
		var d diag.Diagnostic
		var kindName, sev, cands string
		if err := rows.Scan(&kindName, &sev, &d.Line, &d.Filename, &cands, &d.Message); err != nil {
			return nil, err
		}
		d.Kind, _ = diag.ParseKind(kindName)
		d.Severity = diag.ParseSeverity(sev)
		d.Candidates = unmarshalList(cands)
		result = append(result, d)
	}
	return result, rows.Err()
}

// CommandMatch is a recorded entry together with the run it came from.
type CommandMatch struct {
	Command compdb.CompileCommand
	Run     *Run
}

// FindCommand returns the entry for file from the most recent run that has
// one. file is matched case-insensitively, either as a full path or as a
// trailing path fragment ("src/main.cpp", "main.cpp"). Separators may be
// either slash.
func (s *Store) FindCommand(file string) (*CommandMatch, error) {
	needle := strings.ToLower(file)
	alt := strings.NewReplacer(`\`, "/", "/", `\`).Replace(needle)

	rows, err := s.q.Query(`
		SELECT c.file, c.directory, c.arguments, `+prefixed("r", runColumns)+`
		FROM commands c JOIN runs r ON r.id = c.run_id
		WHERE c.file_lower = ? OR c.file_lower = ?
			OR c.file_lower LIKE ? ESCAPE '\' OR c.file_lower LIKE ? ESCAPE '\'
			OR c.file_lower LIKE ? ESCAPE '\' OR c.file_lower LIKE ? ESCAPE '\'
		ORDER BY r.created_at DESC, length(c.file), c.file
		LIMIT 1`,
		needle, alt,
		"%/"+escapeLike(needle), "%\\\\"+escapeLike(needle),
		"%/"+escapeLike(alt), "%\\\\"+escapeLike(alt))
	if err != nil {
		return nil, fmt.Errorf("find command: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("command for %s: %w", file, ErrNotFound)
	}

	var m CommandMatch
	var args string
	var r Run
	var elapsedMS int64
	if err := rows.Scan(&m.Command.File, &m.Command.Directory, &args,
		&r.ID, &r.CreatedAt, &r.LogPath, &r.LogHash, &r.SourceRoot, &r.OutputPath,
		&r.LogLines, &r.IndexedFiles, &r.Entries, &r.Diagnostics, &elapsedMS); err != nil {
		return nil, err
	}
	r.Elapsed = msDuration(elapsedMS)
	m.Command.Arguments = unmarshalList(args)
	m.Run = &r
	return &m, nil
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
