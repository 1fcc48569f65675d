package adapter

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenKind discriminates lexical token classes.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNewline
	tokIndent
	tokDedent
	tokName
	tokNumber
	tokString
	tokOp
)

// token is one lexical token. offset/end are byte offsets into the source so
// the parser can recover exact raw slices for unmodeled constructs.
type token struct {
	kind   tokenKind
	text   string
	line   int
	offset int
	end    int
}

// multi-character operators, longest first so maximal munch works.
var multiOps = []string{
	"**=", "//=", ">>=", "<<=", "...",
	"==", "!=", "<=", ">=", "->", ":=", "**", "//", "<<", ">>",
	"+=", "-=", "*=", "/=", "%=", "@=", "&=", "|=", "^=",
}

// lexer produces an indentation-aware token stream. Newlines inside brackets
// are implicit joins; blank and comment-only lines never produce tokens.
type lexer struct {
	src     []byte
	pos     int
	line    int
	depth   int
	indents []int
	toks    []token
}

// lexSource tokenizes Python source. The lexer is tolerant: malformed input
// degrades to operator/name tokens the parser will route to raw statements.
func lexSource(src []byte) []token {
	lx := &lexer{src: src, line: 1, indents: []int{0}}

	for lx.pos < len(lx.src) {
		lx.lexLine()
	}

	lx.finish()

	return lx.toks
}

// lexLine handles one physical line starting at a line boundary.
func (lx *lexer) lexLine() {
	if lx.depth == 0 {
		if lx.skipBlankLine() {
			return
		}

		lx.handleIndent()
	}

	lx.lexLogical()
}

// skipBlankLine consumes a blank or comment-only line, reporting whether one
// was skipped.
func (lx *lexer) skipBlankLine() bool {
	i := lx.pos
	for i < len(lx.src) && (lx.src[i] == ' ' || lx.src[i] == '\t') {
		i++
	}

	if i >= len(lx.src) {
		lx.pos = i
		return true
	}

	if lx.src[i] == '\n' {
		lx.pos = i + 1
		lx.line++

		return true
	}

	if lx.src[i] == '#' {
		for i < len(lx.src) && lx.src[i] != '\n' {
			i++
		}

		if i < len(lx.src) {
			i++
			lx.line++
		}

		lx.pos = i

		return true
	}

	if lx.src[i] == '\r' {
		// Treat a lone CR before LF as part of the line ending.
		if i+1 < len(lx.src) && lx.src[i+1] == '\n' {
			lx.pos = i + 2
			lx.line++

			return true
		}
	}

	return false
}

// handleIndent measures the leading whitespace of a non-blank line and emits
// INDENT/DEDENT tokens against the indent stack. Tabs count as 8 columns.
func (lx *lexer) handleIndent() {
	col := 0
	i := lx.pos

	for i < len(lx.src) {
		switch lx.src[i] {
		case ' ':
			col++
		case '\t':
			col += 8 - col%8
		default:
			goto measured
		}

		i++
	}

measured:
	lx.pos = i

	top := lx.indents[len(lx.indents)-1]

	switch {
	case col > top:
		lx.indents = append(lx.indents, col)
		lx.emit(tokIndent, "", i, i)
	case col < top:
		for len(lx.indents) > 1 && lx.indents[len(lx.indents)-1] > col {
			lx.indents = lx.indents[:len(lx.indents)-1]
			lx.emit(tokDedent, "", i, i)
		}
	}
}

// lexLogical scans tokens until the logical line ends (a newline outside
// brackets) or the source is exhausted.
func (lx *lexer) lexLogical() {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]

		switch {
		case c == ' ' || c == '\t' || c == '\r':
			lx.pos++
		case c == '#':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		case c == '\\' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '\n':
			lx.pos += 2
			lx.line++
		case c == '\n':
			lx.line++
			lx.pos++

			if lx.depth == 0 {
				lx.emit(tokNewline, "\n", lx.pos-1, lx.pos)
				return
			}
		case isStringStart(lx.src, lx.pos):
			lx.lexString()
		case c >= '0' && c <= '9', c == '.' && lx.pos+1 < len(lx.src) && isDigit(lx.src[lx.pos+1]):
			lx.lexNumber()
		case isNameStart(lx.src, lx.pos):
			lx.lexName()
		default:
			lx.lexOp()
		}
	}
}

func (lx *lexer) finish() {
	// Close the final logical line and unwind the indent stack.
	if n := len(lx.toks); n > 0 && lx.toks[n-1].kind != tokNewline {
		lx.emit(tokNewline, "\n", lx.pos, lx.pos)
	}

	for len(lx.indents) > 1 {
		lx.indents = lx.indents[:len(lx.indents)-1]
		lx.emit(tokDedent, "", lx.pos, lx.pos)
	}

	lx.emit(tokEOF, "", lx.pos, lx.pos)
}

func (lx *lexer) emit(kind tokenKind, text string, offset, end int) {
	lx.toks = append(lx.toks, token{kind: kind, text: text, line: lx.line, offset: offset, end: end})
}

// emitAt records a token whose text spans [start, lx.pos) and which began on
// startLine (multiline strings advance lx.line while scanning).
func (lx *lexer) emitAt(kind tokenKind, start, startLine int) {
	lx.toks = append(lx.toks, token{
		kind:   kind,
		text:   string(lx.src[start:lx.pos]),
		line:   startLine,
		offset: start,
		end:    lx.pos,
	})
}

// isStringStart reports whether pos begins a (possibly prefixed) string
// literal: an optional run of r/b/f/u letters followed by a quote.
func isStringStart(src []byte, pos int) bool {
	i := pos
	for i < len(src) && i-pos < 3 && isStringPrefixByte(src[i]) {
		i++
	}

	return i < len(src) && (src[i] == '"' || src[i] == '\'')
}

func isStringPrefixByte(c byte) bool {
	switch c {
	case 'r', 'R', 'b', 'B', 'f', 'F', 'u', 'U':
		return true
	default:
		return false
	}
}

func (lx *lexer) lexString() {
	start := lx.pos
	startLine := lx.line

	for lx.pos < len(lx.src) && isStringPrefixByte(lx.src[lx.pos]) {
		lx.pos++
	}

	quote := lx.src[lx.pos]
	triple := false

	if lx.pos+2 < len(lx.src) && lx.src[lx.pos+1] == quote && lx.src[lx.pos+2] == quote {
		triple = true
		lx.pos += 3
	} else {
		lx.pos++
	}

	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]

		if c == '\\' && lx.pos+1 < len(lx.src) {
			if lx.src[lx.pos+1] == '\n' {
				lx.line++
			}

			lx.pos += 2

			continue
		}

		if c == '\n' {
			if !triple {
				break // unterminated; recover at the newline
			}

			lx.line++
			lx.pos++

			continue
		}

		if c == quote {
			if !triple {
				lx.pos++
				break
			}

			if lx.pos+2 < len(lx.src) && lx.src[lx.pos+1] == quote && lx.src[lx.pos+2] == quote {
				lx.pos += 3
				break
			}

			if lx.pos+2 == len(lx.src) && lx.src[lx.pos+1] == quote {
				lx.pos += 2
				break
			}
		}

		lx.pos++
	}

	lx.emitAt(tokString, start, startLine)
}

func (lx *lexer) lexNumber() {
	start := lx.pos

	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if isDigit(c) || c == '_' || c == '.' || c == 'x' || c == 'X' || c == 'o' || c == 'O' ||
			c == 'b' || c == 'B' || isHexLetter(c) || c == 'j' || c == 'J' {
			lx.pos++
			continue
		}

		// Exponent sign.
		if (c == '+' || c == '-') && lx.pos > start &&
			(lx.src[lx.pos-1] == 'e' || lx.src[lx.pos-1] == 'E') {
			lx.pos++
			continue
		}

		break
	}

	lx.emitAt(tokNumber, start, lx.line)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexLetter(c byte) bool {
	return (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isNameStart(src []byte, pos int) bool {
	r, _ := utf8.DecodeRune(src[pos:])

	return r == '_' || unicode.IsLetter(r)
}

func (lx *lexer) lexName() {
	start := lx.pos

	for lx.pos < len(lx.src) {
		r, size := utf8.DecodeRune(lx.src[lx.pos:])
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			lx.pos += size
			continue
		}

		break
	}

	lx.emitAt(tokName, start, lx.line)
}

func (lx *lexer) lexOp() {
	rest := lx.src[lx.pos:]

	for _, op := range multiOps {
		if strings.HasPrefix(string(rest[:min(len(rest), len(op))]), op) {
			start := lx.pos
			lx.pos += len(op)
			lx.emitAt(tokOp, start, lx.line)

			return
		}
	}

	switch rest[0] {
	case '(', '[', '{':
		lx.depth++
	case ')', ']', '}':
		if lx.depth > 0 {
			lx.depth--
		}
	}

	start := lx.pos
	lx.pos++
	lx.emitAt(tokOp, start, lx.line)
}
