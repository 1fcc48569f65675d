package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	m "github.com/mouse-blink/subshift/internal/model"
)

const fallbackEvidence = "resolution failed during rewrite; treated as subtests"

// BuildRewritePlan turns a reconciled module proposal into concrete line
// edits against the original source. Functions whose parametrize decision
// cannot be resolved fall back to subtests for that one function; the plan
// never fails a whole file over a single function. Rewritten classes
// inheriting unittest.TestCase are converted to plain pytest classes as part
// of the same plan.
func BuildRewritePlan(src m.SourceFile, content []byte, proposal *m.ModuleProposal) (*m.RewritePlan, error) {
	lines := splitLines(content)
	plan := &m.RewritePlan{Source: src}

	needsPytest := false
	needsSubtests := false

	for _, cls := range sortedClasses(proposal) {
		cp, err := planClass(cls, lines)
		if err != nil {
			return nil, err
		}

		plan.Edits = append(plan.Edits, cp.edits...)
		plan.Parametrized += cp.parametrized
		plan.Subtests += cp.subtests
		plan.Untouched += cp.untouched
		plan.Fallbacks += cp.fallbacks
		needsPytest = needsPytest || cp.needsPytest
		needsSubtests = needsSubtests || cp.needsSubtests
	}

	if len(plan.Edits) > 0 {
		plan.Edits = append(plan.Edits, importEdits(proposal, lines, needsPytest, needsSubtests)...)
	}

	if len(plan.Edits) == 0 {
		plan.Rewritten = content
		return plan, nil
	}

	rewritten, err := applyEdits(lines, plan.Edits)
	if err != nil {
		return nil, err
	}

	plan.Rewritten = rewritten

	diff, err := unifiedDiff(string(src.ShortPath), content, rewritten)
	if err != nil {
		return nil, err
	}

	plan.Diff = diff

	return plan, nil
}

type classPlan struct {
	edits         []m.LineEdit
	parametrized  int
	subtests      int
	untouched     int
	fallbacks     int
	needsPytest   bool
	needsSubtests bool
}

// planClass decides and emits the rewrite for every function of one class.
// For classes inheriting unittest.TestCase the function rewrites are only
// sound as part of a whole-class conversion: parametrize decorators and
// fixture parameters never reach TestCase methods, so the base gets stripped
// and self.assert* calls become plain asserts. A class that cannot be fully
// converted keeps its loops untouched.
func planClass(cls *m.ClassProposal, lines []string) (*classPlan, error) {
	cp := &classPlan{}

	// First pass: settle each function's strategy, resolving parametrize
	// fallbacks, before any class-level decision.
	var rewrites []*m.FunctionProposal

	for _, fn := range sortedFunctions(cls) {
		switch fn.Strategy {
		case m.StrategyParametrize:
			if _, err := parametrizeEdits(fn, lines, nil); err != nil {
				if !errors.Is(err, ErrCannotResolve) {
					return nil, err
				}

				// Rewrite consumer contract: fall back, never abort.
				fn.Strategy = m.StrategySubtests
				fn.AddEvidence(fallbackEvidence)
				cp.fallbacks++

				slog.Debug("parametrize fallback", "function", fn.Name, "class", cls.Name)

				if subtestsEdits(fn, lines) == nil {
					cp.untouched++
					continue
				}
			}

			rewrites = append(rewrites, fn)
		case m.StrategySubtests:
			if subtestsEdits(fn, lines) == nil {
				// No recognized loop shape to rewrite.
				cp.untouched++
				continue
			}

			rewrites = append(rewrites, fn)
		case m.StrategyKeepLoop:
			cp.untouched++
		}
	}

	if len(rewrites) == 0 {
		return cp, nil
	}

	conv, blocked := planTestCaseConversion(cls, rewrites, lines)
	if blocked {
		for _, fn := range rewrites {
			fn.AddEvidence(evidenceTestCaseKept)
		}

		slog.Debug("unittest.TestCase class kept", "class", cls.Name)

		return &classPlan{untouched: cp.untouched + len(rewrites)}, nil
	}

	for _, fn := range rewrites {
		switch fn.Strategy {
		case m.StrategyParametrize:
			edits, err := parametrizeEdits(fn, lines, conv)
			if err != nil {
				return nil, err
			}

			cp.edits = append(cp.edits, edits...)
			cp.parametrized++
			cp.needsPytest = true
		case m.StrategySubtests:
			cp.edits = append(cp.edits, subtestsEdits(fn, lines)...)
			cp.subtests++
			cp.needsSubtests = true
		default:
		}
	}

	if conv != nil {
		cp.edits = append(cp.edits, conv.remainingEdits(lines)...)
	}

	return cp, nil
}

// parametrizeEdits rewrites one function into parametrize form: a decorator
// carrying the argument rows, a widened signature, the loop header and the
// with wrapper gone, the with body dedented, and the consumed assignment
// removed when resolution produced a removal candidate. A non-nil conv folds
// scheduled assert conversions into the emitted body.
func parametrizeEdits(fn *m.FunctionProposal, lines []string, conv *classConversion) ([]m.LineEdit, error) {
	def, loop, loopIndex, ok := fn.LoopContext()
	if !ok {
		return nil, ErrCannotResolve
	}

	rows, removals, err := resolveRows(fn, def, loop, loopIndex)
	if err != nil {
		return nil, err
	}

	indent := leadingWhitespace(lines, def.DefLine)
	argNames := strings.Join(fn.LoopVars, ",")

	var edits []m.LineEdit

	// Decorator plus rebuilt signature replace the def header. The header
	// runs from the def keyword to the line before the first body statement.
	header := []string{indent + "@pytest.mark.parametrize(" + pyQuote(argNames) + ", ["}
	for _, row := range rows {
		header = append(header, indent+indentUnit(lines, def, loop)+row+",")
	}

	header = append(header,
		indent+"])",
		indent+signatureLine(def, fn.LoopVars...),
	)

	if len(def.Body) == 0 {
		return nil, ErrCannotResolve
	}

	edits = append(edits, m.LineEdit{
		StartLine:   def.DefLine,
		EndLine:     def.Body[0].Line() - 1,
		Replacement: header,
	})

	// Drop the consumed assignment statements outright.
	for _, rc := range removals {
		edits = append(edits, m.LineEdit{StartLine: rc.Line, EndLine: rc.EndLine})
	}

	// Replace the loop with its with-body, dedented to the loop's own level.
	with, ok := loop.Body[0].(*m.With)
	if !ok || len(with.Body) == 0 {
		return nil, ErrCannotResolve
	}

	bodyStart := with.Body[0].Line()
	loopIndent := leadingWhitespace(lines, loop.Line())
	bodyIndent := leadingWhitespace(lines, bodyStart)
	strip := len(bodyIndent) - len(loopIndent)

	var replaced []string
	for ln := bodyStart; ln <= loop.EndLine(); ln++ {
		if r, ok := conv.take(ln); ok {
			replaced = append(replaced, dedentLine(leadingWhitespace(lines, ln)+r.text, strip))
			ln = r.endLine

			continue
		}

		replaced = append(replaced, dedentLine(line(lines, ln), strip))
	}

	edits = append(edits, m.LineEdit{
		StartLine:   loop.Line(),
		EndLine:     loop.EndLine(),
		Replacement: replaced,
	})

	return edits, nil
}

// resolveRows extracts and renders the argument rows for a parametrize
// decorator, inlining simple constants for readability.
func resolveRows(fn *m.FunctionProposal, def *m.FunctionDef, loop *m.For, loopIndex int) ([]string, []m.RemovalCandidate, error) {
	iter, itemsCall := unwrapItemsCall(loop.Iter)

	// A range() source is already a valid pytest argvalues expression;
	// nothing to extract or remove.
	if fn.IterableOrigin == m.OriginCall {
		call, ok := iter.(*m.Call)
		if !ok || !isLiteralRangeCall(call) {
			return nil, nil, ErrCannotResolve
		}

		return []string{RenderExpr(call)}, nil, nil
	}

	var (
		seq *m.ResolvedSequence
		err error
	)

	if fn.MapSource() {
		seq, err = ResolveMappingArgument(iter, def.Body, loopIndex)
	} else {
		seq, err = ResolveSequenceArgument(iter, def.Body, loopIndex)
	}

	if err != nil {
		return nil, nil, err
	}

	constants := CollectConstantAssignments(def.Body, loopIndex)

	var rows []string

	switch {
	case seq.Pairs != nil && itemsCall:
		// for k, v in d.items(): each row is a (key, value) tuple.
		for _, pair := range seq.Pairs {
			key := RenderExpr(InlineConstants(pair.Key, constants))
			value := RenderExpr(InlineConstants(pair.Value, constants))
			rows = append(rows, "("+key+", "+value+")")
		}
	case seq.Pairs != nil:
		// Bare dict iteration yields its keys.
		for _, pair := range seq.Pairs {
			rows = append(rows, RenderExpr(InlineConstants(pair.Key, constants)))
		}
	default:
		for _, elt := range seq.Elements {
			rows = append(rows, RenderExpr(InlineConstants(elt, constants)))
		}
	}

	return rows, seq.Removals, nil
}

// subtestsEdits moves a function onto the pytest-subtests fixture: the
// signature gains a subtests parameter and each self.subTest call becomes
// subtests.test. Functions without a recognized loop shape return nil.
func subtestsEdits(fn *m.FunctionProposal, lines []string) []m.LineEdit {
	def, loop, _, ok := fn.LoopContext()
	if !ok {
		return nil
	}

	if len(def.Body) == 0 {
		return nil
	}

	edits := []m.LineEdit{{
		StartLine:   def.DefLine,
		EndLine:     def.Body[0].Line() - 1,
		Replacement: []string{leadingWhitespace(lines, def.DefLine) + signatureLine(def, "subtests")},
	}}

	for ln := loop.Line(); ln <= loop.EndLine(); ln++ {
		text := line(lines, ln)

		swapped := strings.ReplaceAll(text, "self.subTest(", "subtests.test(")
		swapped = strings.ReplaceAll(swapped, "with subTest(", "with subtests.test(")

		if swapped != text {
			edits = append(edits, m.LineEdit{
				StartLine:   ln,
				EndLine:     ln,
				Replacement: []string{swapped},
			})
		}
	}

	return edits
}

// importEdits inserts the imports the rewritten file now relies on, directly
// after the existing import block.
func importEdits(proposal *m.ModuleProposal, lines []string, needsPytest, needsSubtests bool) []m.LineEdit {
	_ = needsSubtests // the subtests fixture is plugin-provided, no import

	if !needsPytest || proposal.HasImport("pytest") {
		return nil
	}

	insertAt := 1
	for ln := 1; ln <= len(lines); ln++ {
		text := strings.TrimSpace(line(lines, ln))
		if strings.HasPrefix(text, "import ") || strings.HasPrefix(text, "from ") {
			insertAt = ln + 1
		}
	}

	// EndLine < StartLine marks a pure insertion before StartLine.
	return []m.LineEdit{{
		StartLine:   insertAt,
		EndLine:     insertAt - 1,
		Replacement: []string{"import pytest"},
	}}
}

// signatureLine rebuilds the def header with extra parameters appended.
func signatureLine(def *m.FunctionDef, extra ...string) string {
	params := make([]string, 0, len(def.Params)+len(extra))
	params = append(params, def.Params...)
	params = append(params, extra...)

	return "def " + def.Name + "(" + strings.Join(params, ", ") + "):"
}

// applyEdits splices the edits into the line slice, bottom up so earlier
// line numbers stay valid. Overlapping edits are a programming error.
func applyEdits(lines []string, edits []m.LineEdit) ([]byte, error) {
	sorted := make([]m.LineEdit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartLine > sorted[j].StartLine })

	out := make([]string, len(lines))
	copy(out, lines)

	prevStart := len(lines) + 1

	for _, edit := range sorted {
		if edit.StartLine < 1 || edit.StartLine > len(lines)+1 {
			return nil, fmt.Errorf("edit start line %d out of range", edit.StartLine)
		}

		if edit.EndLine >= prevStart {
			return nil, fmt.Errorf("overlapping edits at line %d", edit.StartLine)
		}

		prevStart = edit.StartLine

		if edit.EndLine < edit.StartLine {
			// Insertion before StartLine.
			out = append(out[:edit.StartLine-1], append(append([]string{}, edit.Replacement...), out[edit.StartLine-1:]...)...)
			continue
		}

		tail := append([]string{}, out[edit.EndLine:]...)
		out = append(out[:edit.StartLine-1], append(append([]string{}, edit.Replacement...), tail...)...)
	}

	return []byte(strings.Join(out, "\n") + "\n"), nil
}

func unifiedDiff(path string, before, after []byte) (string, error) {
	if string(before) == string(after) {
		return "", nil
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: path,
		ToFile:   path + " (migrated)",
		Context:  3,
	})
}

// --- line helpers ---

func splitLines(content []byte) []string {
	return strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
}

// line returns the 1-based line, or "" when out of range.
func line(lines []string, n int) string {
	if n < 1 || n > len(lines) {
		return ""
	}

	return lines[n-1]
}

func leadingWhitespace(lines []string, n int) string {
	text := line(lines, n)

	return text[:len(text)-len(strings.TrimLeft(text, " \t"))]
}

func dedentLine(text string, strip int) string {
	if strip <= 0 {
		return text
	}

	for i := 0; i < strip && len(text) > 0; i++ {
		if text[0] != ' ' && text[0] != '\t' {
			break
		}

		text = text[1:]
	}

	return text
}

// indentUnit derives one indentation step from the loop body so generated
// decorator rows match the file's style.
func indentUnit(lines []string, def *m.FunctionDef, loop *m.For) string {
	defIndent := leadingWhitespace(lines, def.DefLine)
	loopIndent := leadingWhitespace(lines, loop.Line())

	if len(loopIndent) > len(defIndent) {
		return loopIndent[len(defIndent):]
	}

	return "    "
}

func pyQuote(s string) string {
	return `"` + s + `"`
}

func sortedClasses(proposal *m.ModuleProposal) []*m.ClassProposal {
	classes := make([]*m.ClassProposal, 0, len(proposal.Classes))
	for _, cls := range proposal.Classes {
		classes = append(classes, cls)
	}

	sort.Slice(classes, func(i, j int) bool { return classes[i].Line < classes[j].Line })

	return classes
}

func sortedFunctions(cls *m.ClassProposal) []*m.FunctionProposal {
	functions := make([]*m.FunctionProposal, 0, len(cls.Functions))
	for _, fn := range cls.Functions {
		functions = append(functions, fn)
	}

	sort.Slice(functions, func(i, j int) bool { return functions[i].Line < functions[j].Line })

	return functions
}

// RewriteOutcome summarizes one plan for logging and UI.
func RewriteOutcome(plan *m.RewritePlan) string {
	return fmt.Sprintf("parametrized=%d subtests=%d untouched=%d fallbacks=%d",
		plan.Parametrized, plan.Subtests, plan.Untouched, plan.Fallbacks)
}
