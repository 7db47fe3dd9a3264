package logscan

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/DeusData/ms2cc/internal/diag"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"plain", "cl.exe /c main.cpp", []string{"cl.exe", "/c", "main.cpp"}},
		{"extra whitespace", "  cl.exe\t/c   main.cpp  ", []string{"cl.exe", "/c", "main.cpp"}},
		{"quoted path", `cl.exe /I"C:\Program Files\inc" "src\my file.cpp"`,
			[]string{"cl.exe", `/IC:\Program Files\inc`, `src\my file.cpp`}},
		{"quote mid token", `/Fo"x64\Debug dir\\" a.cpp`, []string{`/Fox64\Debug dir\\`, "a.cpp"}},
		{"empty quotes dropped", `cl.exe "" a.cpp`, []string{"cl.exe", "a.cpp"}},
		{"unbalanced quote", `cl.exe /c "src\a b.cpp /W4`, []string{"cl.exe", "/c", `src\a b.cpp /W4`}},
		{"backslashes literal", `C:\tools\cl.exe \\server\share\a.cpp`, []string{`C:\tools\cl.exe`, `\\server\share\a.cpp`}},
		{"empty", "", nil},
		{"non-UTF-8 bytes kept", "cl.exe /DNAME=caf\xe9 src\\caf\xe9.cpp",
			[]string{"cl.exe", "/DNAME=caf\xe9", "src\\caf\xe9.cpp"}},
		{"quoted non-UTF-8 path", "cl.exe \"d\xfcr dir\\a.cpp\"", []string{"cl.exe", "d\xfcr dir\\a.cpp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.line))
		})
	}
}

func TestTokenizeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("tokens are non-empty and quote-free", prop.ForAll(
		func(line string) bool {
			for _, tok := range Tokenize(line) {
				if tok == "" || strings.ContainsRune(tok, '"') {
					return false
				}
			}
			return true
		},
		gen.AnyString(),
	))

	properties.Property("unquoted words survive a space join", prop.ForAll(
		func(words []string) bool {
			var kept []string
			for _, w := range words {
				if w != "" {
					kept = append(kept, w)
				}
			}
			got := Tokenize(strings.Join(words, " "))
			if len(got) != len(kept) {
				return false
			}
			for i := range got {
				if got[i] != kept[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// extClassifier treats lines containing "cl.exe" as commands and lines
// ending in ".cpp" as complete.
type extClassifier struct{}

func (extClassifier) StartsCommand(text string) bool { return strings.Contains(text, "cl.exe") }
func (extClassifier) EndsCommand(text string) bool {
	return strings.HasSuffix(strings.TrimSpace(text), ".cpp")
}

func rawLines(texts ...string) []RawLine {
	lines := make([]RawLine, len(texts))
	for i, s := range texts {
		lines[i] = RawLine{Number: i + 1, Text: s}
	}
	return lines
}

func TestMergeContinuation(t *testing.T) {
	got := Merge(rawLines("Build started.", "cl.exe /c", "  /Iinc", "  main.cpp", "done"), extClassifier{}, 32)
	want := []LogicalLine{
		{Seq: 1, Text: "Build started."},
		{Seq: 2, Text: "cl.exe /c   /Iinc   main.cpp"},
		{Seq: 5, Text: "done"},
	}
	assert.Equal(t, want, got)
}

func TestMergeFlushesOnNewCommand(t *testing.T) {
	got := Merge(rawLines("cl.exe /c", "cl.exe /c b.cpp"), extClassifier{}, 32)
	want := []LogicalLine{
		{Seq: 1, Text: "cl.exe /c"},
		{Seq: 2, Text: "cl.exe /c b.cpp"},
	}
	assert.Equal(t, want, got)
}

func TestMergeLimitAndEOF(t *testing.T) {
	got := Merge(rawLines("cl.exe /c", "/W4", "/O2", "tail"), extClassifier{}, 2)
	want := []LogicalLine{
		{Seq: 1, Text: "cl.exe /c /W4 /O2"},
		{Seq: 4, Text: "tail"},
	}
	assert.Equal(t, want, got)

	got = Merge(rawLines("cl.exe /c", "/W4"), extClassifier{}, 32)
	assert.Equal(t, []LogicalLine{{Seq: 1, Text: "cl.exe /c /W4"}}, got)
}

func TestReadFileDecodesUTF16(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	data, err := enc.String("1>cl.exe /c a.cpp\r\nBuild succeeded.\r\n")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "msbuild.log")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	lines, err := ReadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []RawLine{
		{Number: 1, Text: "1>cl.exe /c a.cpp"},
		{Number: 2, Text: "Build succeeded."},
	}, lines)
}

func TestReadFileStripsUTF8BOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msbuild.log")
	require.NoError(t, os.WriteFile(path, []byte("\xEF\xBB\xBFcl.exe a.cpp\n"), 0o600))

	lines, err := ReadFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "cl.exe a.cpp", lines[0].Text)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(context.Background(), filepath.Join(t.TempDir(), "missing.log"))
	kind, ok := diag.KindOf(err)
	require.True(t, ok, "expected diag error, got %v", err)
	assert.Equal(t, diag.IoError, kind)
}

func collect(t *testing.T, input string, limit int) []RawLine {
	t.Helper()
	var lines []RawLine
	err := scan(context.Background(), strings.NewReader(input), limit, func(l RawLine) error {
		lines = append(lines, l)
		return nil
	})
	require.NoError(t, err)
	return lines
}

func TestScanOversizedLines(t *testing.T) {
	huge := strings.Repeat("x", 200*1024)
	got := collect(t, "short\r\n"+huge+"\r\n12345678\n123456789\ncl.exe a.cpp", 8)
	assert.Equal(t, []RawLine{
		{Number: 1, Text: "short"},
		{Number: 2, Oversized: true},
		{Number: 3, Text: "12345678"},
		{Number: 4, Oversized: true},
		{Number: 5, Text: "cl.exe a.cpp"},
	}, got)
}

func TestScanLongLineWithinLimit(t *testing.T) {
	long := strings.Repeat("y", 150*1024)
	got := collect(t, long+"\nnext\n", 1<<20)
	require.Len(t, got, 2)
	assert.False(t, got[0].Oversized)
	assert.Len(t, got[0].Text, len(long))
	assert.Equal(t, "next", got[1].Text)
}

func TestReadFileSkipsOversizedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msbuild.log")
	data := strings.Repeat("x", maxLineBytes+1) + "\r\n  cl.exe /c src\\main.cpp\r\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	lines, err := ReadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []RawLine{
		{Number: 1, Oversized: true},
		{Number: 2, Text: `  cl.exe /c src\main.cpp`},
	}, lines)
}
