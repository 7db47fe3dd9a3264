// Package discover builds the file index: every source file under the source
// root, keyed by lowercase basename.
package discover

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/DeusData/ms2cc/internal/diag"
)

// Options configures an index build.
type Options struct {
	Root        string   // source root, made absolute
	ExcludeDirs []string // directory names pruned at any depth, case-insensitive
	Extensions  []string // allowed extensions without the dot, case-insensitive
	Workers     int      // upper bound on concurrent directory readers
	Progress    Counters // optional
}

// Counters receives indexing progress. Implementations must be safe for
// concurrent use and must not block.
type Counters interface {
	AddDirsVisited(n int64)
	AddFilesIndexed(n int64)
}

// FileIndex maps lowercase basenames to the absolute paths carrying them.
// It is immutable once BuildIndex returns.
type FileIndex struct {
	root    string
	entries map[string][]string
	files   int
}

// Root returns the absolute source root the index was built from.
func (ix *FileIndex) Root() string { return ix.root }

// Len returns the number of distinct basenames.
func (ix *FileIndex) Len() int { return len(ix.entries) }

// Files returns the total number of indexed paths.
func (ix *FileIndex) Files() int { return ix.files }

// Lookup returns the sorted paths whose basename equals name, ignoring case.
// The returned slice must not be modified.
func (ix *FileIndex) Lookup(name string) []string {
	return ix.entries[FoldCase(name)]
}

// FoldCase lowercases s for case-insensitive name comparison. Bytes that are
// not valid UTF-8 are kept as they are, so names from ANSI code page logs
// stay distinct.
func FoldCase(s string) string {
	if utf8.ValidString(s) {
		return strings.ToLower(s)
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteByte(s[i])
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
		i += size
	}
	return b.String()
}

// newFileIndex builds an index directly from a list of absolute paths.
func newFileIndex(root string, paths []string) *FileIndex {
	m := newShardedMap()
	for _, p := range paths {
		m.add(filepath.Base(p), p)
	}
	return m.freeze(root)
}

const shardCount = 64

type shard struct {
	mu      sync.Mutex
	entries map[string][]string
}

// shardedMap collects paths from concurrent walkers. The shard is chosen by
// the xxh3 hash of the lowercase basename.
type shardedMap struct {
	shards [shardCount]shard
}

func newShardedMap() *shardedMap {
	m := &shardedMap{}
	for i := range m.shards {
		m.shards[i].entries = make(map[string][]string)
	}
	return m
}

func (m *shardedMap) add(name, path string) {
	key := FoldCase(name)
	s := &m.shards[xxh3.HashString(key)%shardCount]
	s.mu.Lock()
	s.entries[key] = append(s.entries[key], path)
	s.mu.Unlock()
}

// freeze merges the shards into an immutable FileIndex with sorted,
// de-duplicated path sets. Call only after every writer has finished.
func (m *shardedMap) freeze(root string) *FileIndex {
	ix := &FileIndex{root: root, entries: make(map[string][]string)}
	for i := range m.shards {
		for key, paths := range m.shards[i].entries {
			sort.Strings(paths)
			out := paths[:0]
			for j, p := range paths {
				if j > 0 && p == paths[j-1] {
					continue
				}
				out = append(out, p)
			}
			ix.entries[key] = out
			ix.files += len(out)
		}
	}
	return ix
}

type walker struct {
	ctx      context.Context
	g        *errgroup.Group
	exclude  map[string]bool
	exts     map[string]bool
	index    *shardedMap
	progress Counters

	mu    sync.Mutex
	diags []diag.Diagnostic

	dirs  atomic.Int64
	files atomic.Int64
}

func (w *walker) warn(path string, err error) {
	slog.Warn("index.dir.err", "path", path, "err", err)
	d := diag.New(diag.IoError, 0, path, err.Error())
	w.mu.Lock()
	w.diags = append(w.diags, d)
	w.mu.Unlock()
}

// matches reports whether a file name has an allowed extension after a
// non-empty stem.
func (w *walker) matches(name string) bool {
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 || dot == len(name)-1 {
		return false
	}
	return w.exts[strings.ToLower(name[dot+1:])]
}

// walk reads one directory. Subdirectories go to a new worker when the pool
// has room and are walked inline otherwise, so a saturated pool never blocks.
func (w *walker) walk(dir string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.warn(dir, err)
		return nil
	}
	w.dirs.Add(1)
	if w.progress != nil {
		w.progress.AddDirsVisited(1)
	}

	var found int64
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)
		switch {
		case e.Type()&os.ModeSymlink != 0:
			continue
		case e.IsDir():
			if w.exclude[FoldCase(name)] {
				continue
			}
			if !w.g.TryGo(func() error { return w.walk(path) }) {
				if err := w.walk(path); err != nil {
					return err
				}
			}
		case e.Type().IsRegular():
			if w.matches(name) {
				w.index.add(name, path)
				found++
			}
		}
	}
	if found > 0 {
		w.files.Add(found)
		if w.progress != nil {
			w.progress.AddFilesIndexed(found)
		}
	}
	return nil
}

// BuildIndex walks opts.Root with at most opts.Workers concurrent readers and
// returns the frozen index. Unreadable subdirectories become IoError
// diagnostics; an unreadable root is a fatal IoError.
func BuildIndex(ctx context.Context, opts Options) (*FileIndex, []diag.Diagnostic, error) {
	if opts.Workers < 1 {
		return nil, nil, diag.Errorf(diag.ConfigError, "", "workers must be at least 1, got %d", opts.Workers)
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, nil, diag.Errorf(diag.IoError, opts.Root, "resolve root: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if _, err := os.ReadDir(root); err != nil {
		return nil, nil, diag.Errorf(diag.IoError, root, "read source root: %w", err)
	}

	t := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	w := &walker{
		ctx:      gctx,
		g:        g,
		exclude:  make(map[string]bool, len(opts.ExcludeDirs)),
		exts:     make(map[string]bool, len(opts.Extensions)),
		index:    newShardedMap(),
		progress: opts.Progress,
	}
	for _, d := range opts.ExcludeDirs {
		w.exclude[FoldCase(d)] = true
	}
	for _, e := range opts.Extensions {
		w.exts[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}

	g.Go(func() error { return w.walk(root) })
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("index: %w", err)
	}

	ix := w.index.freeze(root)
	diag.Sort(w.diags)
	slog.Info("index.done",
		"root", root,
		"dirs", w.dirs.Load(),
		"files", ix.Files(),
		"names", ix.Len(),
		"warnings", len(w.diags),
		"elapsed", time.Since(t))
	return ix, w.diags, nil
}
