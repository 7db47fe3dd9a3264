package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"fortio.org/safecast"
	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/DeusData/ms2cc/internal/compdb"
	"github.com/DeusData/ms2cc/internal/diag"
)

// ErrNotFound is returned when no run or command matches a lookup.
var ErrNotFound = errors.New("not found")

// Run is the record of one conversion.
type Run struct {
	ID           string        `json:"id"`
	CreatedAt    string        `json:"created_at"`
	LogPath      string        `json:"log_path"`
	LogHash      string        `json:"log_hash"`
	SourceRoot   string        `json:"source_root"`
	OutputPath   string        `json:"output_path"`
	LogLines     int           `json:"log_lines"`
	IndexedFiles int           `json:"indexed_files"`
	Entries      int           `json:"entries"`
	Diagnostics  int           `json:"diagnostics"`
	Elapsed      time.Duration `json:"elapsed"`
}

// HashFile returns the xxh3 digest of the file at path, hex encoded.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// RecordRun stores a run with its entries and diagnostics in one transaction.
// An empty run.ID is filled with a fresh UUID.
func (s *Store) RecordRun(run *Run, commands []compdb.CompileCommand, diags []diag.Diagnostic) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt == "" {
		run.CreatedAt = Now()
	}
	run.Entries = len(commands)
	run.Diagnostics = len(diags)

	return s.WithTransaction(func(tx *Store) error {
		if err := tx.insertRun(run); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		if err := tx.insertCommands(run.ID, commands); err != nil {
			return fmt.Errorf("insert commands: %w", err)
		}
		if err := tx.insertDiagnostics(run.ID, diags); err != nil {
			return fmt.Errorf("insert diagnostics: %w", err)
		}
		return nil
	})
}

func (s *Store) insertRun(r *Run) error {
	_, err := s.q.Exec(`
		INSERT INTO runs (id, created_at, log_path, log_hash, source_root, output_path,
			log_lines, indexed_files, entries, diagnostics, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt, r.LogPath, r.LogHash, r.SourceRoot, r.OutputPath,
		r.LogLines, r.IndexedFiles, r.Entries, r.Diagnostics, r.Elapsed.Milliseconds())
	return err
}

func (s *Store) insertCommands(runID string, commands []compdb.CompileCommand) error {
	for _, c := range commands {
		_, err := s.q.Exec(`
			INSERT INTO commands (run_id, file, file_lower, directory, arguments) VALUES (?, ?, ?, ?, ?)`,
			runID, c.File, strings.ToLower(c.File), c.Directory, marshalList(c.Arguments))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertDiagnostics(runID string, diags []diag.Diagnostic) error {
	for _, d := range diags {
		_, err := s.q.Exec(`
			INSERT INTO diagnostics (run_id, kind, severity, line, filename, candidates, message)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, d.Kind.String(), d.Severity.String(), d.Line, d.Filename, marshalList(d.Candidates), d.Message)
		if err != nil {
			return err
		}
	}
	return nil
}

const runColumns = `id, created_at, log_path, log_hash, source_root, output_path,
	log_lines, indexed_files, entries, diagnostics, elapsed_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var elapsedMS int64
	if err := sc.Scan(&r.ID, &r.CreatedAt, &r.LogPath, &r.LogHash, &r.SourceRoot, &r.OutputPath,
		&r.LogLines, &r.IndexedFiles, &r.Entries, &r.Diagnostics, &elapsedMS); err != nil {
		return nil, err
	}
	r.Elapsed = msDuration(elapsedMS)
	return &r, nil
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY created_at DESC, id"
	var args []any
	if limit > 0 {
		n, err := safecast.Conv[int64](limit)
		if err != nil {
			return nil, fmt.Errorf("limit: %w", err)
		}
		query += " LIMIT ?"
		args = append(args, n)
	}
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var result []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// GetRun returns the run whose ID equals id or, failing that, the single run
// whose ID starts with id.
func (s *Store) GetRun(id string) (*Run, error) {
	r, err := scanRun(s.q.QueryRow("SELECT "+runColumns+" FROM runs WHERE id=?", id))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	rows, err := s.q.Query("SELECT "+runColumns+" FROM runs WHERE id LIKE ? ESCAPE '\\' LIMIT 2", escapeLike(id)+"%")
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()
	var matches []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	case 1:
		return matches[0], nil
	}
	return nil, fmt.Errorf("run prefix %s is ambiguous", id)
}

// DeleteRun removes a run with its commands and diagnostics.
func (s *Store) DeleteRun(id string) error {
	res, err := s.q.Exec("DELETE FROM runs WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}
