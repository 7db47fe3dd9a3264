// Package resolve maps an extracted invocation to exactly one indexed file,
// or reports why it cannot.
package resolve

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/DeusData/ms2cc/internal/compdb"
	"github.com/DeusData/ms2cc/internal/config"
	"github.com/DeusData/ms2cc/internal/diag"
	"github.com/DeusData/ms2cc/internal/discover"
	"github.com/DeusData/ms2cc/internal/extract"
)

// Index is the read side of a frozen file index. *discover.FileIndex
// implements it.
type Index interface {
	// Root is the source root the index was built from.
	Root() string
	// Lookup returns the sorted paths whose basename equals name, ignoring case.
	Lookup(name string) []string
}

// Resolver looks invocations up in a frozen Index. It holds no mutable
// state and is safe for concurrent use.
type Resolver struct {
	index          Index
	entryDirectory string
}

// New returns a Resolver. entryDirectory selects the "directory" field of each
// entry: config.EntryDirectoryRoot or config.EntryDirectoryFile.
func New(ix Index, entryDirectory string) *Resolver {
	return &Resolver{index: ix, entryDirectory: entryDirectory}
}

// normalize lowercases p, converts separators to '/' and cleans it.
func normalize(p string) string {
	p = discover.FoldCase(strings.ReplaceAll(p, `\`, "/"))
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

// isAbs accepts POSIX, UNC and drive-letter paths regardless of the host OS.
func isAbs(p string) bool {
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		return true
	}
	return len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/') &&
		(p[0]|0x20 >= 'a' && p[0]|0x20 <= 'z')
}

// hintDir returns the normalized directory named by an object-file hint. A
// hint ending in a separator names a directory; otherwise its last element is
// a file name and is dropped.
func hintDir(hint string) string {
	if strings.HasSuffix(hint, `\`) || strings.HasSuffix(hint, "/") {
		return normalize(hint)
	}
	i := strings.LastIndexAny(hint, `/\`)
	if i < 0 {
		return ""
	}
	if i == 0 {
		return "/"
	}
	return normalize(hint[:i])
}

// parent drops the last element of a normalized path. It returns "" once
// nothing meaningful is left.
func parent(p string) string {
	d := path.Dir(p)
	if d == p || d == "." {
		return ""
	}
	if len(d) == 2 && d[1] == ':' {
		return ""
	}
	return d
}

type candidate struct {
	orig string
	dir  string // normalized containing directory
	full string // normalized path
}

// levelMatch reports whether c lives at level. For an absolute level the
// directory must be equal; for a relative level it must end with it. The
// source as written is also tried below level, so "src\x.cpp" matches
// <level>/src/x.cpp.
func levelMatch(c candidate, level string, abs bool, src string) bool {
	joined := level + "/" + src
	if abs {
		return c.dir == level || c.full == joined
	}
	return c.dir == level || strings.HasSuffix(c.dir, "/"+level) ||
		c.full == joined || strings.HasSuffix(c.full, "/"+joined)
}

// Resolve returns the entry for inv, or a NotFound or AmbiguousPath diagnostic.
func (r *Resolver) Resolve(inv extract.Invocation) (compdb.CompileCommand, *diag.Diagnostic) {
	file, d := r.locate(inv)
	if d != nil {
		return compdb.CompileCommand{}, d
	}
	dir := r.index.Root()
	if r.entryDirectory == config.EntryDirectoryFile {
		dir = filepath.Dir(file)
	}
	return compdb.CompileCommand{
		Directory: dir,
		File:      file,
		Arguments: inv.Arguments,
	}, nil
}

func (r *Resolver) locate(inv extract.Invocation) (string, *diag.Diagnostic) {
	name := inv.SourceFilename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	found := r.index.Lookup(name)
	switch len(found) {
	case 0:
		d := diag.New(diag.NotFound, inv.Seq, inv.SourceFilename, "no indexed file with this name")
		return "", &d
	case 1:
		return found[0], nil
	}

	ambiguous := func(msg string, cands []string) (string, *diag.Diagnostic) {
		d := diag.New(diag.AmbiguousPath, inv.Seq, inv.SourceFilename, msg)
		d.Candidates = append([]string(nil), cands...)
		return "", &d
	}

	cands := make([]candidate, len(found))
	for i, f := range found {
		full := normalize(f)
		cands[i] = candidate{orig: f, dir: path.Dir(full), full: full}
	}

	// An absolute source path names its file outright.
	if isAbs(inv.SourceFilename) {
		want := normalize(inv.SourceFilename)
		var hits []string
		for _, c := range cands {
			if c.full == want {
				hits = append(hits, c.orig)
			}
		}
		if len(hits) == 1 {
			return hits[0], nil
		}
	}

	if inv.ObjectFileHint == "" {
		return ambiguous(fmt.Sprintf("%d files share this name and no /Fo hint is present", len(found)), found)
	}

	src := normalize(inv.SourceFilename)
	abs := isAbs(inv.ObjectFileHint)
	for level := hintDir(inv.ObjectFileHint); level != ""; level = parent(level) {
		var hits []string
		for _, c := range cands {
			if levelMatch(c, level, abs, src) {
				hits = append(hits, c.orig)
			}
		}
		switch {
		case len(hits) == 1:
			return hits[0], nil
		case len(hits) > 1:
			return ambiguous(fmt.Sprintf("/Fo hint %q matches %d files at %q", inv.ObjectFileHint, len(hits), level), hits)
		}
	}
	return ambiguous(fmt.Sprintf("/Fo hint %q matches none of %d files", inv.ObjectFileHint, len(found)), found)
}
