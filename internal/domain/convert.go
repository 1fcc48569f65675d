package domain

import (
	"sort"
	"strings"

	m "github.com/mouse-blink/subshift/internal/model"
)

const evidenceTestCaseKept = "unittest.TestCase API could not be fully converted; loop kept"

// Markers of unittest.TestCase API usage that survives base stripping only
// through explicit conversion. A class line carrying one of these outside a
// planned rewrite blocks the conversion.
var unittestAPIMarks = []string{
	"self.subTest(",
	"self.assert",
	"self.fail",
	"self.skipTest(",
	"self.addCleanup(",
	"self.maxDiff",
	"self.longMessage",
	"self.shortDescription(",
	"super().",
}

// assertRewrite is one self.assert* statement scheduled to become a plain
// assert. consumed marks rewrites folded into a function body replacement so
// they are not emitted twice.
type assertRewrite struct {
	endLine  int
	text     string
	consumed bool
}

// classConversion carries the edits that move one class off
// unittest.TestCase: the stripped header plus every assert conversion.
type classConversion struct {
	headerLine int
	header     string
	asserts    map[int]*assertRewrite
}

// planTestCaseConversion decides whether a class inheriting
// unittest.TestCase can be moved off the unittest API entirely. pytest does
// not apply parametrize decorators or fixture parameters to TestCase
// methods, so rewrites are sound only when the base can be stripped and all
// self.assert* usage converted. blocked means the class must keep its loops;
// pytest still runs self.subTest natively there. A class without a TestCase
// base returns (nil, false) and needs no conversion.
func planTestCaseConversion(cls *m.ClassProposal, rewrites []*m.FunctionProposal, lines []string) (*classConversion, bool) {
	def := cls.ClassContext()
	if def == nil || !hasTestCaseBase(def) {
		return nil, false
	}

	if len(def.Bases) != 1 || len(cls.SetupMethods) > 0 {
		return nil, true
	}

	headerLine := classHeaderLine(def, lines)
	if headerLine == 0 || !strings.Contains(line(lines, headerLine), "):") {
		return nil, true
	}

	conv := &classConversion{
		headerLine: headerLine,
		header:     leadingWhitespace(lines, headerLine) + "class " + def.Name + ":",
		asserts:    make(map[int]*assertRewrite),
	}

	for _, stmt := range def.Body {
		if fn, ok := stmt.(*m.FunctionDef); ok {
			collectAssertRewrites(conv, fn.Body)
		}
	}

	if leftoverAPIUsage(def, rewrites, conv, lines) {
		return nil, true
	}

	return conv, false
}

func hasTestCaseBase(def *m.ClassDef) bool {
	for _, base := range def.Bases {
		switch b := base.(type) {
		case *m.Name:
			if b.ID == "TestCase" {
				return true
			}
		case *m.Attribute:
			if b.Attr == "TestCase" {
				return true
			}
		default:
		}
	}

	return false
}

// classHeaderLine finds the line holding the class keyword; the node span
// starts at the first decorator when the class is decorated.
func classHeaderLine(def *m.ClassDef, lines []string) int {
	for ln := def.Line(); ln <= def.EndLine(); ln++ {
		if strings.HasPrefix(strings.TrimSpace(line(lines, ln)), "class ") {
			return ln
		}
	}

	return 0
}

// leftoverAPIUsage scans the class source span for unittest API markers on
// lines no planned edit accounts for.
func leftoverAPIUsage(def *m.ClassDef, rewrites []*m.FunctionProposal, conv *classConversion, lines []string) bool {
	handled := make(map[int]bool)

	for ln, r := range conv.asserts {
		for i := ln; i <= r.endLine; i++ {
			handled[i] = true
		}
	}

	for _, fn := range rewrites {
		_, loop, _, ok := fn.LoopContext()
		if !ok {
			return true
		}

		switch fn.Strategy {
		case m.StrategyParametrize:
			if len(loop.Body) == 0 {
				return true
			}

			// The loop header and with wrapper are removed outright.
			with, ok := loop.Body[0].(*m.With)
			if !ok || len(with.Body) == 0 {
				return true
			}

			for i := loop.Line(); i < with.Body[0].Line(); i++ {
				handled[i] = true
			}
		case m.StrategySubtests:
			// Only the swapped subTest lines are accounted for.
			for i := loop.Line(); i <= loop.EndLine(); i++ {
				if strings.Contains(line(lines, i), "self.subTest(") {
					handled[i] = true
				}
			}
		default:
		}
	}

	for ln := def.Line(); ln <= def.EndLine(); ln++ {
		if handled[ln] {
			continue
		}

		text := line(lines, ln)
		for _, mark := range unittestAPIMarks {
			if strings.Contains(text, mark) {
				return true
			}
		}
	}

	return false
}

// collectAssertRewrites walks a statement list and schedules every
// convertible self.assert* call. Raw statements stay untouched here; the
// leftover scan decides whether they block the conversion.
func collectAssertRewrites(conv *classConversion, body []m.Stmt) {
	for _, stmt := range body {
		switch s := stmt.(type) {
		case *m.ExprStmt:
			if text, ok := convertAssertCall(s.Value); ok {
				conv.asserts[s.Line()] = &assertRewrite{endLine: s.EndLine(), text: text}
			}
		case *m.For:
			collectAssertRewrites(conv, s.Body)
		case *m.With:
			collectAssertRewrites(conv, s.Body)
		default:
		}
	}
}

// take claims the assert rewrite starting at line ln, if any.
func (c *classConversion) take(ln int) (*assertRewrite, bool) {
	if c == nil {
		return nil, false
	}

	r, ok := c.asserts[ln]
	if !ok || r.consumed {
		return nil, false
	}

	r.consumed = true

	return r, true
}

// remainingEdits returns the stripped class header plus a line edit for
// every assert rewrite not folded into a function body replacement.
func (c *classConversion) remainingEdits(lines []string) []m.LineEdit {
	edits := []m.LineEdit{{
		StartLine:   c.headerLine,
		EndLine:     c.headerLine,
		Replacement: []string{c.header},
	}}

	starts := make([]int, 0, len(c.asserts))
	for ln, r := range c.asserts {
		if !r.consumed {
			starts = append(starts, ln)
		}
	}

	sort.Ints(starts)

	for _, ln := range starts {
		r := c.asserts[ln]
		edits = append(edits, m.LineEdit{
			StartLine:   ln,
			EndLine:     r.endLine,
			Replacement: []string{leadingWhitespace(lines, ln) + r.text},
		})
	}

	return edits
}

// Two-operand assertion methods and the comparison operator each maps to.
var comparisonAsserts = map[string]string{
	"assertEqual":        "==",
	"assertNotEqual":     "!=",
	"assertIs":           "is",
	"assertIsNot":        "is not",
	"assertIn":           "in",
	"assertNotIn":        "not in",
	"assertGreater":      ">",
	"assertGreaterEqual": ">=",
	"assertLess":         "<",
	"assertLessEqual":    "<=",
}

// convertAssertCall renders a self.assert* call as a plain assert statement.
// An optional trailing message argument becomes the assert message. Methods
// outside the mapped set (assertRaises, assertAlmostEqual, keyword forms)
// are not convertible.
func convertAssertCall(e m.Expr) (string, bool) {
	call, ok := e.(*m.Call)
	if !ok || len(call.Keywords) > 0 {
		return "", false
	}

	attr, ok := call.Func.(*m.Attribute)
	if !ok {
		return "", false
	}

	if recv, ok := attr.Value.(*m.Name); !ok || recv.ID != "self" {
		return "", false
	}

	if op, ok := comparisonAsserts[attr.Attr]; ok {
		if len(call.Args) < 2 || len(call.Args) > 3 {
			return "", false
		}

		out := "assert " + assertOperand(call.Args[0]) + " " + op + " " + assertOperand(call.Args[1])
		if len(call.Args) == 3 {
			out += ", " + RenderExpr(call.Args[2])
		}

		return out, true
	}

	if len(call.Args) < 1 || len(call.Args) > 2 {
		return "", false
	}

	var out string

	switch attr.Attr {
	case "assertTrue":
		out = "assert " + RenderExpr(call.Args[0])
	case "assertFalse":
		out = "assert not " + assertOperand(call.Args[0])
	case "assertIsNone":
		out = "assert " + assertOperand(call.Args[0]) + " is None"
	case "assertIsNotNone":
		out = "assert " + assertOperand(call.Args[0]) + " is not None"
	default:
		return "", false
	}

	if len(call.Args) == 2 {
		out += ", " + RenderExpr(call.Args[1])
	}

	return out, true
}

// assertOperand parenthesizes operands whose rendering could rebind under an
// inserted comparison or not operator. Raw source slices without whitespace
// are necessarily postfix chains and stay bare.
func assertOperand(e m.Expr) string {
	switch v := e.(type) {
	case *m.BinaryOp, *m.UnaryOp:
		return "(" + RenderExpr(e) + ")"
	case *m.RawExpr:
		if strings.ContainsAny(v.Text, " \t") {
			return "(" + v.Text + ")"
		}

		return v.Text
	default:
		return RenderExpr(e)
	}
}
