package stat

import (
	"regexp"
	"strings"
)

// ScanResult describes the shape of a SQL text as seen by the lexer.
type ScanResult struct {
	// Statements is the number of non-empty statements separated by ';'.
	Statements int
	// HasComment reports a -- or /* */ comment outside string literals.
	HasComment bool
}

var inList = regexp.MustCompile(`(?i)\b(in)\s*\(\s*\?(?:\s*,\s*\?)*\s*\)`)

// MergeSQL normalizes sql so that statements differing only in literal
// values share one statistics entry: string and numeric literals become ?,
// comments are dropped, whitespace is collapsed and IN (?, ?, ...) lists
// collapse to IN (?).
func MergeSQL(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	space := false
	lex(sql, func(t token) {
		switch t.kind {
		case tokSpace:
			if b.Len() > 0 && !space {
				b.WriteByte(' ')
				space = true
			}
		case tokString, tokNumber:
			b.WriteByte('?')
			space = false
		case tokComment:
		default:
			b.WriteString(t.text)
			space = false
		}
	})
	merged := strings.TrimSpace(b.String())
	return inList.ReplaceAllString(merged, "$1 (?)")
}

// Scan reports how many statements sql holds and whether it carries comments.
func Scan(sql string) ScanResult {
	var res ScanResult
	pending := false
	lex(sql, func(t token) {
		switch t.kind {
		case tokComment:
			res.HasComment = true
		case tokSpace:
		case tokSemicolon:
			if pending {
				res.Statements++
				pending = false
			}
		default:
			pending = true
		}
	})
	if pending {
		res.Statements++
	}
	return res
}

type tokenKind int

const (
	tokText tokenKind = iota
	tokSpace
	tokString
	tokNumber
	tokComment
	tokSemicolon
)

type token struct {
	kind tokenKind
	text string
}

// lex splits sql into coarse tokens. It understands '...' strings with ''
// escapes, "..." and `...` quoted identifiers, -- and /* */ comments,
// numbers that are not part of an identifier or a $1 / :1 placeholder.
func lex(sql string, emit func(token)) {
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch {
		case isSpace(c):
			j := i
			for j < len(sql) && isSpace(sql[j]) {
				j++
			}
			emit(token{tokSpace, sql[i:j]})
			i = j
		case c == '\'':
			j := i + 1
			for j < len(sql) {
				if sql[j] == '\'' {
					if j+1 < len(sql) && sql[j+1] == '\'' {
						j += 2
						continue
					}
					j++
					break
				}
				j++
			}
			emit(token{tokString, sql[i:j]})
			i = j
		case c == '"' || c == '`':
			j := i + 1
			for j < len(sql) && sql[j] != c {
				j++
			}
			if j < len(sql) {
				j++
			}
			emit(token{tokText, sql[i:j]})
			i = j
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			j := i
			for j < len(sql) && sql[j] != '\n' {
				j++
			}
			emit(token{tokComment, sql[i:j]})
			i = j
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			j := len(sql)
			if end >= 0 {
				j = i + 2 + end + 2
			}
			emit(token{tokComment, sql[i:j]})
			i = j
		case c == ';':
			emit(token{tokSemicolon, ";"})
			i++
		case isDigit(c) && (i == 0 || !isIdentOrParam(sql[i-1])):
			j := i
			for j < len(sql) && (isDigit(sql[j]) || sql[j] == '.') {
				j++
			}
			emit(token{tokNumber, sql[i:j]})
			i = j
		default:
			j := i + 1
			if isIdent(c) {
				for j < len(sql) && isIdent(sql[j]) {
					j++
				}
			}
			emit(token{tokText, sql[i:j]})
			i = j
		}
	}
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdent(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentOrParam(c byte) bool { return isIdent(c) || c == '$' || c == ':' || c == '@' }
