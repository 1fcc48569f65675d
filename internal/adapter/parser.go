package adapter

import (
	"strings"

	m "github.com/mouse-blink/subshift/internal/model"
)

// parser builds the closed node set the engine understands from the token
// stream. It never fails on valid Python: statements and expressions outside
// the modeled subset degrade to RawStmt/RawExpr nodes carrying their exact
// source text, which the engine routes to the conservative strategies.
type parser struct {
	src  []byte
	toks []token
	pos  int
}

// statement keywords the parser deliberately does not model.
var rawKeywords = map[string]struct{}{
	"if": {}, "elif": {}, "else": {}, "while": {}, "try": {}, "except": {},
	"finally": {}, "return": {}, "raise": {}, "assert": {}, "pass": {},
	"break": {}, "continue": {}, "del": {}, "global": {}, "nonlocal": {},
	"yield": {}, "lambda": {},
}

var augOps = map[string]struct{}{
	"+=": {}, "-=": {}, "*=": {}, "/=": {}, "//=": {}, "%=": {}, "**=": {},
	"&=": {}, "|=": {}, "^=": {}, ">>=": {}, "<<=": {}, "@=": {},
}

// parseModule parses one source file into a Module node.
func parseModule(name string, src []byte) *m.Module {
	p := &parser{src: src, toks: lexSource(src)}

	var body []m.Stmt

	for p.cur().kind != tokEOF {
		if p.skipStructural() {
			continue
		}

		if stmts := p.parseStatement(); stmts != nil {
			body = append(body, stmts...)
		}
	}

	endLine := 1
	if len(body) > 0 {
		endLine = body[len(body)-1].EndLine()
	}

	return &m.Module{
		Span: m.Span{Start: 1, Stop: endLine},
		Name: name,
		Body: body,
	}
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) next() token { return p.toks[min(p.pos+1, len(p.toks)-1)] }

func (p *parser) advance() token {
	tok := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}

	return tok
}

func (p *parser) at(kind tokenKind, text string) bool {
	return p.cur().kind == kind && p.cur().text == text
}

func (p *parser) accept(kind tokenKind, text string) bool {
	if p.at(kind, text) {
		p.advance()
		return true
	}

	return false
}

// skipStructural drops stray structural tokens between statements so a
// parse slip never derails the whole file.
func (p *parser) skipStructural() bool {
	switch p.cur().kind {
	case tokNewline, tokIndent, tokDedent:
		p.advance()
		return true
	default:
		return false
	}
}

// parseStatement parses one logical line (which may hold several simple
// statements) or one block statement.
func (p *parser) parseStatement() []m.Stmt {
	tok := p.cur()

	if tok.kind == tokOp && tok.text == "@" {
		return []m.Stmt{p.parseDecorated()}
	}

	if tok.kind == tokName {
		switch tok.text {
		case "import":
			return []m.Stmt{p.parseImport()}
		case "from":
			return []m.Stmt{p.parseImportFrom()}
		case "class":
			return []m.Stmt{p.parseClass(nil, tok.line)}
		case "def":
			return []m.Stmt{p.parseFunc(nil, tok.line)}
		case "async":
			if p.next().kind == tokName && p.next().text == "def" {
				p.advance() // async
				return []m.Stmt{p.parseFunc(nil, tok.line)}
			}

			return []m.Stmt{p.rawStatement()}
		case "for":
			return []m.Stmt{p.parseFor()}
		case "with":
			return []m.Stmt{p.parseWith()}
		case "match", "case":
			// Soft keywords: only a block header ("match value:",
			// "case <pattern>:") starts a match construct. Everywhere else
			// they are ordinary names, and "case" is the idiomatic subTest
			// loop variable.
			if p.lineEndsWithColon() {
				return []m.Stmt{p.rawStatement()}
			}

			return p.parseSimpleLine()
		default:
			if _, raw := rawKeywords[tok.text]; raw {
				return []m.Stmt{p.rawStatement()}
			}

			return p.parseSimpleLine()
		}
	}

	if tok.kind == tokNumber || tok.kind == tokString ||
		(tok.kind == tokOp && (tok.text == "(" || tok.text == "[" || tok.text == "{")) {
		return p.parseSimpleLine()
	}

	return []m.Stmt{p.rawStatement()}
}

// lineEndsWithColon reports whether the current logical line's last token is
// a bare colon, the shape of a compound-statement header.
func (p *parser) lineEndsWithColon() bool {
	var last token

	for i := p.pos; i < len(p.toks); i++ {
		tok := p.toks[i]
		if tok.kind == tokNewline || tok.kind == tokEOF {
			break
		}

		last = tok
	}

	return last.kind == tokOp && last.text == ":"
}

// --- raw fallback ---

// rawStatement consumes the current logical line, and its indented block when
// it has one, into a RawStmt preserving the exact source text.
func (p *parser) rawStatement() m.Stmt {
	start := p.cur()
	endLine := start.line
	endOffset := start.end

	for p.cur().kind != tokNewline && p.cur().kind != tokEOF {
		tok := p.advance()
		endLine = tok.line
		endOffset = tok.end
	}

	p.accept(tokNewline, "\n")

	if p.cur().kind == tokIndent {
		depth := 0

		for {
			tok := p.cur()
			if tok.kind == tokEOF {
				break
			}

			if tok.kind == tokIndent {
				depth++
			}

			if tok.kind == tokDedent {
				depth--
				if depth == 0 {
					p.advance()
					break
				}
			}

			if tok.kind != tokNewline && tok.kind != tokDedent && tok.kind != tokIndent {
				endLine = tok.line
				endOffset = tok.end
			}

			p.advance()
		}
	}

	return &m.RawStmt{
		Span: m.Span{Start: start.line, Stop: endLine},
		Text: string(p.src[start.offset:endOffset]),
	}
}

// rawExprUntil consumes tokens, balancing brackets, until a depth-zero stop
// token or end of line, returning the exact source slice.
func (p *parser) rawExprUntil(stops map[string]struct{}) *m.RawExpr {
	start := p.cur()
	endLine := start.line
	endOffset := start.offset
	depth := 0

loop:
	for {
		tok := p.cur()

		if tok.kind == tokEOF || tok.kind == tokNewline {
			break
		}

		if tok.kind == tokOp {
			switch tok.text {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				if depth == 0 {
					break loop
				}

				depth--
			}
		}

		if depth == 0 && (tok.kind == tokOp || tok.kind == tokName) {
			if _, stop := stops[tok.text]; stop {
				break
			}
		}

		p.advance()

		endLine = tok.line
		endOffset = tok.end
	}

	return &m.RawExpr{
		Span: m.Span{Start: start.line, Stop: endLine},
		Text: strings.TrimSpace(string(p.src[start.offset:endOffset])),
	}
}

// --- imports ---

func (p *parser) parseImport() m.Stmt {
	start := p.advance() // import

	var names []string

	for p.cur().kind != tokNewline && p.cur().kind != tokEOF {
		name := p.dottedName()
		if name == "" {
			break
		}

		if p.accept(tokName, "as") {
			p.advance() // alias
		}

		names = append(names, name)

		if !p.accept(tokOp, ",") {
			break
		}
	}

	end := p.finishLine()

	return &m.Import{Span: m.Span{Start: start.line, Stop: end}, Names: names}
}

func (p *parser) parseImportFrom() m.Stmt {
	start := p.advance() // from

	module := p.dottedName()

	p.accept(tokName, "import")

	var names []string

	for p.cur().kind != tokNewline && p.cur().kind != tokEOF {
		tok := p.cur()

		if tok.kind == tokName {
			p.advance()

			if p.accept(tokName, "as") {
				p.advance()
			}

			names = append(names, tok.text)
		} else if tok.kind == tokOp && (tok.text == "*" || tok.text == "(" || tok.text == ")" || tok.text == ",") {
			p.advance()

			if tok.text == "*" {
				names = append(names, "*")
			}
		} else {
			break
		}
	}

	end := p.finishLine()

	return &m.ImportFrom{Span: m.Span{Start: start.line, Stop: end}, Module: module, Names: names}
}

func (p *parser) dottedName() string {
	if p.cur().kind != tokName {
		return ""
	}

	name := p.advance().text

	for p.at(tokOp, ".") && p.next().kind == tokName {
		p.advance()
		name += "." + p.advance().text
	}

	return name
}

// finishLine consumes up to and including the newline, returning the line of
// the last substantive token.
func (p *parser) finishLine() int {
	end := p.toks[max(p.pos-1, 0)].line

	for p.cur().kind != tokNewline && p.cur().kind != tokEOF {
		end = p.advance().line
	}

	p.accept(tokNewline, "\n")

	return end
}

// --- decorated / class / def ---

func (p *parser) parseDecorated() m.Stmt {
	startLine := p.cur().line

	var decorators []m.Expr

	for p.at(tokOp, "@") && p.cur().kind != tokEOF {
		p.advance()

		dec := p.parseItem(stopSet("\n"))
		decorators = append(decorators, dec)
		p.accept(tokNewline, "\n")
	}

	tok := p.cur()
	if tok.kind == tokName {
		switch tok.text {
		case "def":
			return p.parseFunc(decorators, startLine)
		case "class":
			return p.parseClass(decorators, startLine)
		case "async":
			if p.next().kind == tokName && p.next().text == "def" {
				p.advance()
				return p.parseFunc(decorators, startLine)
			}
		}
	}

	return p.rawStatement()
}

func (p *parser) parseClass(decorators []m.Expr, startLine int) m.Stmt {
	p.advance() // class

	name := ""
	if p.cur().kind == tokName {
		name = p.advance().text
	}

	var bases []m.Expr

	if p.accept(tokOp, "(") {
		for !p.at(tokOp, ")") && p.cur().kind != tokEOF {
			bases = append(bases, p.parseCallArg())

			if !p.accept(tokOp, ",") {
				break
			}
		}

		p.accept(tokOp, ")")
	}

	p.accept(tokOp, ":")

	body, endLine := p.parseBlock()

	return &m.ClassDef{
		Span:       m.Span{Start: startLine, Stop: endLine},
		Name:       name,
		Bases:      bases,
		Decorators: decorators,
		Body:       body,
	}
}

func (p *parser) parseFunc(decorators []m.Expr, startLine int) m.Stmt {
	defLine := p.cur().line
	p.advance() // def

	name := ""
	if p.cur().kind == tokName {
		name = p.advance().text
	}

	params := p.parseParams()

	if p.accept(tokOp, "->") {
		p.parseItem(stopSet(":"))
	}

	p.accept(tokOp, ":")

	body, endLine := p.parseBlock()

	return &m.FunctionDef{
		Span:       m.Span{Start: startLine, Stop: endLine},
		Name:       name,
		Params:     params,
		Decorators: decorators,
		Body:       body,
		DefLine:    defLine,
	}
}

// parseParams collects parameter names, skipping annotations, defaults and
// star markers; only the names matter downstream.
func (p *parser) parseParams() []string {
	var params []string

	if !p.accept(tokOp, "(") {
		return params
	}

	for !p.at(tokOp, ")") && p.cur().kind != tokEOF {
		mark := p.pos

		for p.at(tokOp, "*") || p.at(tokOp, "**") || p.at(tokOp, "/") {
			p.advance()
		}

		if p.cur().kind == tokName {
			params = append(params, p.advance().text)
		}

		if p.accept(tokOp, ":") {
			p.parseItem(stopSet(",", ")", "="))
		}

		if p.accept(tokOp, "=") {
			p.parseItem(stopSet(",", ")"))
		}

		if !p.accept(tokOp, ",") && !p.at(tokOp, ")") {
			// Unparseable parameter; bail out to the closing paren.
			p.rawExprUntil(stopSet(")"))
		}

		if p.pos == mark {
			// No progress on a malformed header; give up on the list.
			p.advance()
		}
	}

	p.accept(tokOp, ")")

	return params
}

// parseBlock parses `NEWLINE INDENT stmts DEDENT`, or an inline suite on the
// same line. It returns the statements and the last line of the block.
func (p *parser) parseBlock() ([]m.Stmt, int) {
	endLine := p.toks[max(p.pos-1, 0)].line

	if !p.accept(tokNewline, "\n") {
		// Inline suite: simple statements on the header line.
		stmts := p.parseSimpleLine()
		if len(stmts) > 0 {
			endLine = stmts[len(stmts)-1].EndLine()
		}

		return stmts, endLine
	}

	if p.cur().kind != tokIndent {
		return nil, endLine
	}

	p.advance() // INDENT

	var body []m.Stmt

	for p.cur().kind != tokDedent && p.cur().kind != tokEOF {
		if p.cur().kind == tokNewline || p.cur().kind == tokIndent {
			p.advance()
			continue
		}

		if stmts := p.parseStatement(); stmts != nil {
			body = append(body, stmts...)
		}
	}

	p.accept(tokDedent, "")

	if len(body) > 0 {
		endLine = body[len(body)-1].EndLine()
	}

	return body, endLine
}

// --- for / with ---

func (p *parser) parseFor() m.Stmt {
	save := p.pos
	start := p.advance() // for

	targets, ok := p.parseForTargets()
	if !ok || !p.accept(tokName, "in") {
		p.pos = save
		return p.rawStatement()
	}

	iter := p.parseExprList(stopSet(":"))

	if !p.accept(tokOp, ":") {
		p.pos = save
		return p.rawStatement()
	}

	body, endLine := p.parseBlock()

	return &m.For{
		Span:    m.Span{Start: start.line, Stop: endLine},
		Targets: targets,
		Iter:    iter,
		Body:    body,
	}
}

// parseForTargets parses the bound names of a for header, with or without
// parentheses. Non-name targets (subscripts, attributes, stars) reject the
// whole header so the statement falls back to raw.
func (p *parser) parseForTargets() ([]string, bool) {
	var names []string

	paren := p.accept(tokOp, "(")

	for {
		if p.cur().kind != tokName {
			return nil, false
		}

		if _, raw := rawKeywords[p.cur().text]; raw {
			return nil, false
		}

		if p.cur().text == "in" {
			return nil, false
		}

		names = append(names, p.advance().text)

		if p.accept(tokOp, ",") {
			if paren && p.at(tokOp, ")") {
				break
			}

			continue
		}

		break
	}

	if paren && !p.accept(tokOp, ")") {
		return nil, false
	}

	return names, len(names) > 0
}

func (p *parser) parseWith() m.Stmt {
	start := p.advance() // with

	var items []m.WithItem

	for {
		ctx := p.parseItem(stopSet(",", ":", "as"))

		item := m.WithItem{Context: ctx}
		if p.accept(tokName, "as") {
			if p.cur().kind == tokName {
				item.As = p.advance().text
			}
		}

		items = append(items, item)

		if !p.accept(tokOp, ",") {
			break
		}
	}

	if !p.accept(tokOp, ":") {
		// Malformed with header; drain the line.
		p.finishLine()
	}

	body, endLine := p.parseBlock()

	return &m.With{
		Span:  m.Span{Start: start.line, Stop: endLine},
		Items: items,
		Body:  body,
	}
}

// --- simple statements ---

// parseSimpleLine parses one physical line of semicolon-separated simple
// statements. When several share the line, each is marked so the resolver
// never nominates them for removal.
func (p *parser) parseSimpleLine() []m.Stmt {
	var stmts []m.Stmt

	for {
		stmt := p.parseSimpleStmt()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}

		if !p.accept(tokOp, ";") {
			break
		}

		if p.cur().kind == tokNewline || p.cur().kind == tokEOF {
			break
		}
	}

	p.accept(tokNewline, "\n")

	if len(stmts) > 1 {
		for _, stmt := range stmts {
			markSharesLine(stmt)
		}
	}

	return stmts
}

func markSharesLine(stmt m.Stmt) {
	switch s := stmt.(type) {
	case *m.Assign:
		s.SharesLine = true
	case *m.AnnAssign:
		s.SharesLine = true
	default:
	}
}

var simpleStops = stopSet(";", "=", ":", ",")

func (p *parser) parseSimpleStmt() m.Stmt {
	start := p.cur()

	first := p.parseItem(augStops(simpleStops))

	// Bare tuple target or value: a, b = ... / x = 1, 2
	if p.at(tokOp, ",") {
		first = p.continueTuple(first, augStops(stopSet(";", "=", ":")))
	}

	switch {
	case p.at(tokOp, "="):
		return p.parseAssign(start, first)
	case p.at(tokOp, ":"):
		return p.parseAnnAssign(start, first)
	case p.cur().kind == tokOp && isAugOp(p.cur().text):
		op := p.advance().text
		value := p.parseExprList(stopSet(";"))

		return &m.AugAssign{
			Span:   m.Span{Start: start.line, Stop: p.lastLine()},
			Target: first,
			Op:     op,
			Value:  value,
		}
	default:
		return &m.ExprStmt{
			Span:  m.Span{Start: start.line, Stop: p.lastLine()},
			Value: first,
		}
	}
}

func (p *parser) parseAssign(start token, first m.Expr) m.Stmt {
	targets := []m.Expr{first}

	var value m.Expr

	for p.accept(tokOp, "=") {
		value = p.parseExprList(augStops(stopSet(";", "=")))

		if p.at(tokOp, "=") {
			targets = append(targets, value)
		}
	}

	return &m.Assign{
		Span:    m.Span{Start: start.line, Stop: p.lastLine()},
		Targets: targets,
		Value:   value,
	}
}

func (p *parser) parseAnnAssign(start token, target m.Expr) m.Stmt {
	p.accept(tokOp, ":")

	annotation := p.parseItem(stopSet(";", "="))

	var value m.Expr
	if p.accept(tokOp, "=") {
		value = p.parseExprList(stopSet(";"))
	}

	return &m.AnnAssign{
		Span:       m.Span{Start: start.line, Stop: p.lastLine()},
		Target:     target,
		Annotation: annotation,
		Value:      value,
	}
}

func (p *parser) lastLine() int {
	return p.toks[max(p.pos-1, 0)].line
}

// parseExprList parses a comma-separated expression list, folding multiple
// items into a bare Tuple.
func (p *parser) parseExprList(stops map[string]struct{}) m.Expr {
	first := p.parseItem(withStop(stops, ","))

	if p.at(tokOp, ",") {
		return p.continueTuple(first, stops)
	}

	return first
}

func (p *parser) continueTuple(first m.Expr, stops map[string]struct{}) m.Expr {
	elts := []m.Expr{first}

	for p.accept(tokOp, ",") {
		if p.lineEnds() || p.stopsHere(stops) {
			break
		}

		elts = append(elts, p.parseItem(withStop(stops, ",")))
	}

	return &m.Tuple{
		Span: m.Span{Start: first.Line(), Stop: p.lastLine()},
		Elts: elts,
	}
}

func (p *parser) lineEnds() bool {
	return p.cur().kind == tokNewline || p.cur().kind == tokEOF
}

func (p *parser) stopsHere(stops map[string]struct{}) bool {
	tok := p.cur()
	if tok.kind != tokOp && tok.kind != tokName {
		return false
	}

	_, ok := stops[tok.text]

	return ok
}

// --- expression parsing with raw fallback ---

func stopSet(items ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}

	return set
}

func withStop(stops map[string]struct{}, extra ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(stops)+len(extra))
	for s := range stops {
		set[s] = struct{}{}
	}

	for _, s := range extra {
		set[s] = struct{}{}
	}

	return set
}

func augStops(stops map[string]struct{}) map[string]struct{} {
	set := withStop(stops)
	for op := range augOps {
		set[op] = struct{}{}
	}

	return set
}

func isAugOp(text string) bool {
	_, ok := augOps[text]
	return ok
}

// parseItem parses one expression that must end at a stop token (or end of
// line / closing bracket). When the structured parse cannot account for what
// follows, the whole span is re-consumed as a RawExpr.
func (p *parser) parseItem(stops map[string]struct{}) m.Expr {
	save := p.pos

	expr := p.parseOr()
	if expr != nil && p.itemTerminated(stops) {
		return expr
	}

	p.pos = save

	return p.rawExprUntil(stops)
}

// itemTerminated reports whether the current token may legally follow a
// completed item in the current context.
func (p *parser) itemTerminated(stops map[string]struct{}) bool {
	tok := p.cur()

	switch tok.kind {
	case tokNewline, tokEOF:
		return true
	case tokOp:
		if tok.text == ")" || tok.text == "]" || tok.text == "}" {
			return true
		}

		_, ok := stops[tok.text]

		return ok
	case tokName:
		_, ok := stops[tok.text]
		return ok
	default:
		return false
	}
}

// Binary precedence tiers, loosest first. Boolean and comparison operators
// fold into BinaryOp; name-shaped operators (and/or/in/is) are names in the
// token stream.
func (p *parser) parseOr() m.Expr {
	return p.parseBinaryName("or", p.parseAnd)
}

func (p *parser) parseAnd() m.Expr {
	return p.parseBinaryName("and", p.parseNot)
}

func (p *parser) parseNot() m.Expr {
	if p.at(tokName, "not") {
		start := p.advance()

		operand := p.parseNot()
		if operand == nil {
			return nil
		}

		return &m.UnaryOp{
			Span:    m.Span{Start: start.line, Stop: operand.EndLine()},
			Op:      "not",
			Operand: operand,
		}
	}

	return p.parseComparison()
}

func (p *parser) parseBinaryName(op string, sub func() m.Expr) m.Expr {
	left := sub()
	if left == nil {
		return nil
	}

	for p.at(tokName, op) {
		p.advance()

		right := sub()
		if right == nil {
			return nil
		}

		left = &m.BinaryOp{
			Span:  m.Span{Start: left.Line(), Stop: right.EndLine()},
			Left:  left,
			Op:    op,
			Right: right,
		}
	}

	return left
}

func (p *parser) parseComparison() m.Expr {
	left := p.parseBitOr()
	if left == nil {
		return nil
	}

	for {
		op, ok := p.comparisonOp()
		if !ok {
			return left
		}

		right := p.parseBitOr()
		if right == nil {
			return nil
		}

		left = &m.BinaryOp{
			Span:  m.Span{Start: left.Line(), Stop: right.EndLine()},
			Left:  left,
			Op:    op,
			Right: right,
		}
	}
}

func (p *parser) comparisonOp() (string, bool) {
	tok := p.cur()

	if tok.kind == tokOp {
		switch tok.text {
		case "==", "!=", "<", ">", "<=", ">=":
			p.advance()
			return tok.text, true
		}

		return "", false
	}

	if tok.kind != tokName {
		return "", false
	}

	switch tok.text {
	case "in":
		p.advance()
		return "in", true
	case "is":
		p.advance()

		if p.accept(tokName, "not") {
			return "is not", true
		}

		return "is", true
	case "not":
		if p.next().kind == tokName && p.next().text == "in" {
			p.advance()
			p.advance()

			return "not in", true
		}
	}

	return "", false
}

var binaryTiers = [][]string{
	{"|"},
	{"^"},
	{"&"},
	{"<<", ">>"},
	{"+", "-"},
	{"*", "/", "//", "%", "@"},
}

func (p *parser) parseBitOr() m.Expr {
	return p.parseBinaryTier(0)
}

func (p *parser) parseBinaryTier(tier int) m.Expr {
	if tier == len(binaryTiers) {
		return p.parseUnary()
	}

	left := p.parseBinaryTier(tier + 1)
	if left == nil {
		return nil
	}

	for p.cur().kind == tokOp && tierHas(binaryTiers[tier], p.cur().text) {
		op := p.advance().text

		right := p.parseBinaryTier(tier + 1)
		if right == nil {
			return nil
		}

		left = &m.BinaryOp{
			Span:  m.Span{Start: left.Line(), Stop: right.EndLine()},
			Left:  left,
			Op:    op,
			Right: right,
		}
	}

	return left
}

func tierHas(ops []string, text string) bool {
	for _, op := range ops {
		if op == text {
			return true
		}
	}

	return false
}

func (p *parser) parseUnary() m.Expr {
	tok := p.cur()

	if tok.kind == tokOp && (tok.text == "-" || tok.text == "+" || tok.text == "~") {
		p.advance()

		operand := p.parseUnary()
		if operand == nil {
			return nil
		}

		return &m.UnaryOp{
			Span:    m.Span{Start: tok.line, Stop: operand.EndLine()},
			Op:      tok.text,
			Operand: operand,
		}
	}

	return p.parsePower()
}

func (p *parser) parsePower() m.Expr {
	base := p.parsePostfix()
	if base == nil {
		return nil
	}

	if p.at(tokOp, "**") {
		p.advance()

		exp := p.parseUnary()
		if exp == nil {
			return nil
		}

		return &m.BinaryOp{
			Span:  m.Span{Start: base.Line(), Stop: exp.EndLine()},
			Left:  base,
			Op:    "**",
			Right: exp,
		}
	}

	return base
}

func (p *parser) parsePostfix() m.Expr {
	startTok := p.cur()

	expr := p.parsePrimary()
	if expr == nil {
		return nil
	}

	for {
		switch {
		case p.at(tokOp, "."):
			if p.next().kind != tokName {
				return nil
			}

			p.advance()
			attr := p.advance()
			expr = &m.Attribute{
				Span:  m.Span{Start: expr.Line(), Stop: attr.line},
				Value: expr,
				Attr:  attr.text,
			}
		case p.at(tokOp, "("):
			call := p.parseCall(expr)
			if call == nil {
				return nil
			}

			expr = call
		case p.at(tokOp, "["):
			// Subscripts are outside the modeled set; fold the whole chain
			// so far into a raw expression and keep going.
			raw := p.consumeBalanced(startTok, "[", "]")
			if raw == nil {
				return nil
			}

			expr = raw
		default:
			return expr
		}
	}
}

// consumeBalanced consumes the bracketed group at the cursor and returns a
// RawExpr spanning from startTok through the matching close bracket.
func (p *parser) consumeBalanced(startTok token, open, close string) *m.RawExpr {
	if !p.accept(tokOp, open) {
		return nil
	}

	depth := 1

	for depth > 0 {
		tok := p.cur()
		if tok.kind == tokEOF {
			return nil
		}

		if tok.kind == tokOp {
			switch tok.text {
			case open:
				depth++
			case close:
				depth--
			}
		}

		p.advance()
	}

	end := p.toks[p.pos-1]

	return &m.RawExpr{
		Span: m.Span{Start: startTok.line, Stop: end.line},
		Text: string(p.src[startTok.offset:end.end]),
	}
}

func (p *parser) parseCall(fn m.Expr) m.Expr {
	open := p.cur()
	openIdx := p.pos
	p.advance() // (

	call := &m.Call{Span: m.Span{Start: fn.Line()}, Func: fn}

	for !p.at(tokOp, ")") && p.cur().kind != tokEOF {
		// Generator argument: fold every argument into one raw blob.
		if p.at(tokName, "for") {
			p.pos = openIdx

			raw := p.consumeBalanced(open, "(", ")")
			if raw == nil {
				return nil
			}

			call.Args = []m.Expr{raw}
			call.Span.Stop = raw.EndLine()

			return call
		}

		if name, ok := p.keywordArgName(); ok {
			call.Keywords = append(call.Keywords, m.Keyword{
				Name:  name,
				Value: p.parseItem(stopSet(",", ")")),
			})
		} else {
			call.Args = append(call.Args, p.parseCallArg())
		}

		if !p.accept(tokOp, ",") {
			break
		}
	}

	if !p.accept(tokOp, ")") {
		return nil
	}

	call.Span.Stop = p.toks[p.pos-1].line

	return call
}

// keywordArgName consumes `name=` at the cursor when it introduces a keyword
// argument, returning the name. `name==` is a comparison, not a keyword.
func (p *parser) keywordArgName() (string, bool) {
	if p.cur().kind != tokName || p.next().kind != tokOp || p.next().text != "=" {
		return "", false
	}

	if _, kw := rawKeywords[p.cur().text]; kw {
		return "", false
	}

	name := p.advance().text
	p.advance() // =

	return name, true
}

// parseCallArg parses one positional call (or class-bases) argument. Starred
// arguments are outside the modeled set and become raw blobs.
func (p *parser) parseCallArg() m.Expr {
	if p.at(tokOp, "*") || p.at(tokOp, "**") {
		return p.rawExprUntil(stopSet(",", ")"))
	}

	return p.parseItem(stopSet(",", ")"))
}

func (p *parser) parsePrimary() m.Expr {
	tok := p.cur()

	switch tok.kind {
	case tokName:
		return p.parseNamePrimary()
	case tokNumber:
		p.advance()
		return numberExpr(tok)
	case tokString:
		return p.parseStringPrimary()
	case tokOp:
		switch tok.text {
		case "(":
			return p.parseParenPrimary()
		case "[":
			return p.parseListPrimary()
		case "{":
			return p.parseBracePrimary()
		}
	}

	return nil
}

func (p *parser) parseNamePrimary() m.Expr {
	tok := p.advance()
	span := m.Span{Start: tok.line, Stop: tok.line}

	switch tok.text {
	case "True":
		return &m.Bool{Span: span, Value: true}
	case "False":
		return &m.Bool{Span: span, Value: false}
	case "None":
		return &m.None{Span: span}
	case "lambda", "await", "yield", "not", "and", "or", "in", "is", "if", "else", "for":
		// Keywords are never primaries; reject so the caller falls back.
		p.pos--
		return nil
	default:
		return &m.Name{Span: span, ID: tok.text}
	}
}

func numberExpr(tok token) m.Expr {
	span := m.Span{Start: tok.line, Stop: tok.line}
	text := tok.text

	isFloat := false

	if !strings.HasPrefix(text, "0x") && !strings.HasPrefix(text, "0X") {
		isFloat = strings.ContainsAny(text, ".eEjJ")
	}

	if isFloat {
		return &m.Float{Span: span, Raw: text}
	}

	return &m.Int{Span: span, Raw: text}
}

func (p *parser) parseStringPrimary() m.Expr {
	tok := p.advance()

	if isFStringToken(tok.text) {
		return &m.RawExpr{Span: m.Span{Start: tok.line, Stop: p.toks[p.pos-1].line}, Text: tok.text}
	}

	raws := []string{tok.text}
	endLine := tok.line

	// Adjacent string literals concatenate implicitly.
	for p.cur().kind == tokString && !isFStringToken(p.cur().text) {
		next := p.advance()
		raws = append(raws, next.text)
		endLine = next.line
	}

	return &m.Str{
		Span: m.Span{Start: tok.line, Stop: endLine},
		Raw:  strings.Join(raws, " "),
	}
}

func isFStringToken(text string) bool {
	for i := 0; i < len(text) && i < 3; i++ {
		c := text[i]
		if c == '"' || c == '\'' {
			return false
		}

		if c == 'f' || c == 'F' {
			return true
		}
	}

	return false
}

func (p *parser) parseParenPrimary() m.Expr {
	open := p.cur()
	openIdx := p.pos
	p.advance() // (

	if p.accept(tokOp, ")") {
		return &m.Tuple{Span: m.Span{Start: open.line, Stop: open.line}}
	}

	var elts []m.Expr

	sawComma := false

	for {
		if p.at(tokName, "for") || p.at(tokName, "async") {
			p.pos = openIdx
			return p.consumeBalanced(open, "(", ")")
		}

		elts = append(elts, p.parseItem(stopSet(",", ")")))

		if p.accept(tokOp, ",") {
			sawComma = true

			if p.at(tokOp, ")") {
				break
			}

			continue
		}

		break
	}

	if !p.accept(tokOp, ")") {
		p.pos = openIdx
		return p.consumeBalanced(open, "(", ")")
	}

	end := p.toks[p.pos-1].line

	if len(elts) == 1 && !sawComma {
		return elts[0] // parenthesized expression
	}

	return &m.Tuple{Span: m.Span{Start: open.line, Stop: end}, Elts: elts}
}

func (p *parser) parseListPrimary() m.Expr {
	open := p.cur()
	openIdx := p.pos
	p.advance() // [

	if p.accept(tokOp, "]") {
		return &m.List{Span: m.Span{Start: open.line, Stop: open.line}}
	}

	var elts []m.Expr

	for {
		if p.at(tokName, "for") || p.at(tokName, "async") || p.at(tokOp, "*") {
			p.pos = openIdx
			return p.consumeBalanced(open, "[", "]")
		}

		elts = append(elts, p.parseItem(stopSet(",", "]")))

		if p.accept(tokOp, ",") {
			if p.at(tokOp, "]") {
				break
			}

			continue
		}

		break
	}

	if !p.accept(tokOp, "]") {
		p.pos = openIdx
		return p.consumeBalanced(open, "[", "]")
	}

	end := p.toks[p.pos-1].line

	return &m.List{Span: m.Span{Start: open.line, Stop: end}, Elts: elts}
}

func (p *parser) parseBracePrimary() m.Expr {
	open := p.cur()
	openIdx := p.pos
	p.advance() // {

	if p.accept(tokOp, "}") {
		return &m.Dict{Span: m.Span{Start: open.line, Stop: open.line}}
	}

	var (
		keys   []m.Expr
		values []m.Expr
		elts   []m.Expr
		isDict bool
		first  = true
	)

	for {
		if p.at(tokName, "for") || p.at(tokName, "async") || p.at(tokOp, "**") || p.at(tokOp, "*") {
			p.pos = openIdx
			return p.consumeBalanced(open, "{", "}")
		}

		item := p.parseItem(stopSet(",", ":", "}"))

		if first {
			isDict = p.at(tokOp, ":")
			first = false
		}

		if isDict {
			if !p.accept(tokOp, ":") {
				p.pos = openIdx
				return p.consumeBalanced(open, "{", "}")
			}

			keys = append(keys, item)
			values = append(values, p.parseItem(stopSet(",", "}")))
		} else {
			elts = append(elts, item)
		}

		if p.accept(tokOp, ",") {
			if p.at(tokOp, "}") {
				break
			}

			continue
		}

		break
	}

	if !p.accept(tokOp, "}") {
		p.pos = openIdx
		return p.consumeBalanced(open, "{", "}")
	}

	end := p.toks[p.pos-1].line
	span := m.Span{Start: open.line, Stop: end}

	if isDict {
		return &m.Dict{Span: span, Keys: keys, Values: values}
	}

	return &m.Set{Span: span, Elts: elts}
}
