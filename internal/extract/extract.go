// Package extract recognizes compiler invocations in tokenized log lines and
// pulls out the source files, the object-file hint, and the cleaned argument list.
package extract

import (
	"fmt"
	"strings"

	"github.com/DeusData/ms2cc/internal/diag"
	"github.com/DeusData/ms2cc/internal/logscan"
)

// Invocation is one compiled source file found on a log line.
type Invocation struct {
	SourceFilename string   // as written in the log
	ObjectFileHint string   // value of the last /Fo flag, may be empty
	Arguments      []string // compiler token onward, PCH flags removed
	Seq            int      // log line of the command
	Index          int      // position among the sources of the same command
}

// Options configures an Extractor.
type Options struct {
	Compiler   string   // executable name, e.g. cl.exe
	Extensions []string // allowed source extensions, normalized
}

// Extractor matches command lines against one compiler executable.
// It is safe for concurrent use.
type Extractor struct {
	compiler string
	exts     map[string]bool
}

func New(opts Options) *Extractor {
	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	return &Extractor{
		compiler: strings.ToLower(opts.Compiler),
		exts:     exts,
	}
}

// valueFlags take their value from the next token when written detached.
var valueFlags = map[string]bool{
	"/I": true, "/FI": true, "/D": true, "/U": true,
	"/AI": true, "/FU": true, "/external:I": true,
	"-I": true, "-FI": true, "-D": true, "-U": true,
	"-AI": true, "-FU": true, "-external:I": true,
	"-include": true,
}

// pchPrefixes mark precompiled-header control flags.
var pchPrefixes = []string{"Yc", "Yu", "Yl", "Yd", "Y-", "Fp"}

// baseName returns the last element of a path written with either separator.
func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

// trimNodePrefix removes the MSBuild node prefix ("1>", "12>") glued to a token.
func trimNodePrefix(tok string) string {
	i := 0
	for i < len(tok) && tok[i] >= '0' && tok[i] <= '9' {
		i++
	}
	if i > 0 && i < len(tok) && tok[i] == '>' {
		return tok[i+1:]
	}
	return tok
}

func isFlag(tok string) bool {
	return strings.HasPrefix(tok, "/") || strings.HasPrefix(tok, "-")
}

// flagBody strips the leading switch character.
func flagBody(tok string) string {
	return tok[1:]
}

// HasSourceExtension reports whether name carries an allowed extension after a
// non-empty stem.
func (e *Extractor) HasSourceExtension(name string) bool {
	base := baseName(name)
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 || dot == len(base)-1 {
		return false
	}
	return e.exts[strings.ToLower(base[dot+1:])]
}

// compilerIndex returns the index of the first executable-looking token and
// whether it names the configured compiler.
func (e *Extractor) compilerIndex(tokens []string) (int, bool) {
	for i, tok := range tokens {
		name := strings.ToLower(baseName(trimNodePrefix(tok)))
		if name == e.compiler {
			return i, true
		}
		if strings.HasSuffix(name, ".exe") {
			return i, false
		}
	}
	return -1, false
}

// StartsCommand reports whether text invokes the configured compiler.
func (e *Extractor) StartsCommand(text string) bool {
	if !strings.Contains(strings.ToLower(text), e.compiler) {
		return false
	}
	_, ok := e.compilerIndex(logscan.Tokenize(text))
	return ok
}

// EndsCommand reports whether the last token of text is a source file.
func (e *Extractor) EndsCommand(text string) bool {
	tokens := logscan.Tokenize(text)
	if len(tokens) == 0 {
		return false
	}
	last := tokens[len(tokens)-1]
	return !isFlag(last) && e.HasSourceExtension(last)
}

// cursor walks the arguments that follow the compiler token.
type cursor struct {
	args []string
	i    int
}

func (c *cursor) done() bool  { return c.i >= len(c.args) }
func (c *cursor) get() string { return c.args[c.i] }

func (c *cursor) consume() string {
	c.i++
	return c.args[c.i-1]
}

// consumeDetached consumes tok and, if there is one, the token after it.
func (c *cursor) consumeDetached() []string {
	out := []string{c.consume()}
	if !c.done() {
		out = append(out, c.consume())
	}
	return out
}

// consumeObjectFile parses /Fo<path>, /Fo:<path> and /Fo <path>.
func (c *cursor) consumeObjectFile() (kept []string, hint string, found bool) {
	tok := c.get()
	if !strings.HasPrefix(flagBody(tok), "Fo") {
		return nil, "", false
	}
	value := strings.TrimPrefix(flagBody(tok)[2:], ":")
	if value != "" {
		c.consume()
		return []string{tok}, strings.Trim(value, `"`), true
	}
	kept = c.consumeDetached()
	if len(kept) == 2 {
		hint = strings.Trim(kept[1], `"`)
	}
	return kept, hint, true
}

// consumePCH drops a precompiled-header flag. A bare /Fp or /Fp: also drops
// its detached value.
func (c *cursor) consumePCH() bool {
	body := flagBody(c.get())
	for _, prefix := range pchPrefixes {
		if !strings.HasPrefix(body, prefix) {
			continue
		}
		c.consume()
		if prefix == "Fp" && (body == "Fp" || body == "Fp:") && !c.done() && !isFlag(c.get()) {
			c.consume()
		}
		return true
	}
	return false
}

type sourceArg struct {
	name string
	pos  int // position in the cleaned argument list
}

// Extract recognizes a compiler invocation in tokens. A line that does not
// invoke the configured compiler yields nothing. A compiler line without any
// source file yields a MalformedCommand diagnostic.
//
// The primary source is the last eligible token. Eligible tokens directly
// before it (a trailing run, as in "cl.exe /c a.cpp b.cpp") are compiled by the
// same command and produce their own invocations sharing one argument list.
func (e *Extractor) Extract(seq int, tokens []string) ([]Invocation, *diag.Diagnostic) {
	start, ok := e.compilerIndex(tokens)
	if !ok {
		return nil, nil
	}

	args := []string{trimNodePrefix(tokens[start])}
	var hint string
	var sources []sourceArg

	c := &cursor{args: tokens[start+1:]}
	for !c.done() {
		tok := c.get()
		if !isFlag(tok) {
			if e.HasSourceExtension(tok) {
				sources = append(sources, sourceArg{name: tok, pos: len(args)})
			}
			args = append(args, c.consume())
			continue
		}
		if kept, h, found := c.consumeObjectFile(); found {
			args = append(args, kept...)
			hint = h
			continue
		}
		if c.consumePCH() {
			continue
		}
		if valueFlags[tok] {
			args = append(args, c.consumeDetached()...)
			continue
		}
		args = append(args, c.consume())
	}

	if len(sources) == 0 {
		d := diag.New(diag.MalformedCommand, seq, "",
			fmt.Sprintf("%s invocation without a source file", tokens[start]))
		return nil, &d
	}

	// Keep the trailing run of sources that are adjacent in the argument list.
	first := len(sources) - 1
	for first > 0 && sources[first-1].pos == sources[first].pos-1 {
		first--
	}
	run := sources[first:]

	invs := make([]Invocation, len(run))
	for i, s := range run {
		invs[i] = Invocation{
			SourceFilename: s.name,
			ObjectFileHint: hint,
			Arguments:      args,
			Seq:            seq,
			Index:          i,
		}
	}
	return invs, nil
}
