package logscan

// Tokenize splits one command line into arguments.
//
// Whitespace separates tokens except inside double quotes. Quote characters
// are removed and the quoted text joins whatever token it touches, so
// /Fo"out dir\" becomes /Foout dir\. An unmatched quote makes the rest of the
// line part of one trailing token. Backslashes are literal. Empty tokens are
// dropped. The line is split on ASCII bytes only, so bytes that are not
// valid UTF-8 (ANSI code page logs) are copied through untouched.
func Tokenize(line string) []string {
	var tokens []string
	var cur []byte
	inQuote := false

	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			inQuote = !inQuote
		case !inQuote && isSpace(c):
			flush()
		default:
			cur = append(cur, c)
		}
	}
	flush()
	return tokens
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
