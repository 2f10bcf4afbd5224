// FilePath: server/weatherhub/internal/sandbox/validate.go
package sandbox

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/errors"
	"golang.org/x/text/unicode/norm"
)

// Limits bounds the size of an accepted query.
type Limits struct {
	MaxChars int
	MaxLines int
}

// forbiddenFunctions are rejected wherever they appear outside strings
// and comments.
var forbiddenFunctions = []string{"load_extension"}

// Validate checks that text is exactly one read query and returns the
// statement to execute: NFC-normalized, with surrounding comments, one
// trailing separator and any whole-statement parentheses removed.
//
// Size limits apply to the raw input and are checked first, so the
// remaining stages only ever see bounded text.
func Validate(text string, limits Limits) (string, error) {
	if err := checkSize(text, limits); err != nil {
		return "", err
	}

	text = norm.NFC.String(strings.TrimSpace(text))
	view := keywordView(text)

	lo, hi := trimRange(view, 0, len(view))
	if hi > lo && view[hi-1] == ';' {
		lo, hi = trimRange(view, lo, hi-1)
	}
	if lo >= hi {
		return "", errors.NewSandboxError(errors.ErrorTypeMissingQuery, "query is empty", nil)
	}

	closing := matchingParens(view)
	for view[lo] == '(' && closing[lo] == hi-1 {
		lo, hi = trimRange(view, lo+1, hi-1)
		if lo >= hi {
			return "", errors.NewSandboxError(errors.ErrorTypeMissingQuery, "query is empty", nil)
		}
	}

	structure := view[lo:hi]
	if strings.ContainsRune(structure, ';') {
		return "", errors.NewSandboxError(errors.ErrorTypeMultipleStatements, "only a single statement is allowed", nil)
	}
	if !startsWithKeyword(structure, "select") {
		return "", errors.NewSandboxError(errors.ErrorTypeNotASelect, "only SELECT queries are allowed", nil)
	}
	lower := strings.ToLower(structure)
	for _, fn := range forbiddenFunctions {
		if strings.Contains(lower, fn) {
			return "", errors.NewSandboxError(errors.ErrorTypeNotASelect, fmt.Sprintf("%s is not allowed", fn), nil)
		}
	}

	return text[lo:hi], nil
}

// checkSize applies the character and line limits to the raw input.
func checkSize(text string, limits Limits) error {
	if limits.MaxChars > 0 {
		// Each rune is at least one byte, so short inputs skip the count.
		if len(text) > limits.MaxChars && utf8.RuneCountInString(text) > limits.MaxChars {
			return errors.NewSandboxError(errors.ErrorTypeTooLarge, fmt.Sprintf("query exceeds %d characters", limits.MaxChars), nil).
				WithDetails(map[string]int{"max_chars": limits.MaxChars})
		}
	}
	if limits.MaxLines > 0 && strings.Count(text, "\n")+1 > limits.MaxLines {
		return errors.NewSandboxError(errors.ErrorTypeTooLarge, fmt.Sprintf("query exceeds %d lines", limits.MaxLines), nil).
			WithDetails(map[string]int{"max_lines": limits.MaxLines})
	}
	return nil
}

// keywordView returns a copy of sql of the same byte length in which
// comments and the contents of quoted strings and identifiers are
// replaced by spaces. Newlines are kept. Unterminated comments and
// quotes blank everything to the end.
func keywordView(sql string) string {
	out := []byte(sql)
	blank := func(from, to int) {
		for i := from; i < to; i++ {
			if out[i] != '\n' {
				out[i] = ' '
			}
		}
	}

	for i := 0; i < len(sql); {
		switch c := sql[i]; {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				end = len(sql) - i
			}
			blank(i, i+end)
			i += end
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				blank(i, len(sql))
				return string(out)
			}
			stop := i + 2 + end + 2
			blank(i, stop)
			i = stop
		case c == '\'' || c == '"' || c == '`' || c == '[':
			closer := c
			if c == '[' {
				closer = ']'
			}
			j := i + 1
			for j < len(sql) {
				if sql[j] == closer {
					// Doubled quote is an escaped quote, except for [].
					if c != '[' && j+1 < len(sql) && sql[j+1] == closer {
						j += 2
						continue
					}
					break
				}
				j++
			}
			if j >= len(sql) {
				blank(i+1, len(sql))
				return string(out)
			}
			blank(i+1, j)
			i = j + 1
		default:
			i++
		}
	}
	return string(out)
}

// trimRange narrows [lo, hi) past leading and trailing whitespace in view.
func trimRange(view string, lo, hi int) (int, int) {
	for lo < hi && isSpace(view[lo]) {
		lo++
	}
	for hi > lo && isSpace(view[hi-1]) {
		hi--
	}
	return lo, hi
}

// matchingParens maps the index of every '(' in view to the index of its
// closing ')', or -1 when it is never closed. Other entries are unused.
func matchingParens(view string) []int {
	closing := make([]int, len(view))
	var open []int
	for i := 0; i < len(view); i++ {
		switch view[i] {
		case '(':
			closing[i] = -1
			open = append(open, i)
		case ')':
			if n := len(open); n > 0 {
				closing[open[n-1]] = i
				open = open[:n-1]
			}
		}
	}
	return closing
}

func startsWithKeyword(s, keyword string) bool {
	if len(s) < len(keyword) || !strings.EqualFold(s[:len(keyword)], keyword) {
		return false
	}
	return len(s) == len(keyword) || !isIdentByte(s[len(keyword)])
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		(c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
