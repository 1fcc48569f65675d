package domain

import (
	"log/slog"
	"strings"

	m "github.com/mouse-blink/subshift/internal/model"
)

// Evidence strings recorded by scanning and reconciliation. Tests and the
// reconciler match on these, so they are fixed.
const (
	evidenceNoLoop       = "No subTest loops detected"
	evidenceLiteral      = "literal list/tuple iterable"
	evidenceLiteralDict  = "literal dict iterable"
	evidenceNameResolved = "name reference; not mutated"
	evidenceMutated      = "variable is mutated"
	evidenceRangeCall    = "range() call"
	evidenceUnknown      = "unknown iterable type, conservative fallback"
	evidenceConsensus    = "Aligned to class consensus"
	evidenceAccumulator  = "Changed to subtests due to accumulator pattern"
	evidenceConservative = "Changed to subtests, conservative approach"
)

// setup method names recorded as class facts.
var setupMethodNames = map[string]struct{}{
	"setUp":         {},
	"tearDown":      {},
	"setUpClass":    {},
	"tearDownClass": {},
	"setUpModule":   {},
}

// ScanModule traverses a parsed module once, top down, and builds the layered
// fact records: module facts, class facts and per-function proposals. The
// returned proposal is not yet reconciled.
func ScanModule(mod *m.Module, path m.Path) *m.ModuleProposal {
	proposal := &m.ModuleProposal{
		Name:    mod.Name,
		Path:    path,
		Classes: make(map[string]*m.ClassProposal),
	}

	for _, stmt := range mod.Body {
		switch s := stmt.(type) {
		case *m.Import:
			proposal.Imports = append(proposal.Imports, s.Names...)
		case *m.ImportFrom:
			proposal.Imports = append(proposal.Imports, s.Module)
		case *m.Assign:
			// Module-level literal-producing assignments are visible as
			// opaque facts only; they never feed function decisions.
			recordLiteralAssignment(proposal, s)
		case *m.ClassDef:
			proposal.AddClass(scanClass(s))
		case *m.FunctionDef:
			if isFixture(s) {
				proposal.Fixtures = append(proposal.Fixtures, s.Name)
			}
		default:
		}
	}

	slog.Debug("scanned module",
		"module", mod.Name,
		"classes", len(proposal.Classes),
		"imports", len(proposal.Imports))

	return proposal
}

func recordLiteralAssignment(proposal *m.ModuleProposal, s *m.Assign) {
	if len(s.Targets) != 1 {
		return
	}

	n, ok := s.Targets[0].(*m.Name)
	if !ok {
		return
	}

	if _, isSeq := LiteralElements(s.Value); isSeq {
		proposal.Assignments = append(proposal.Assignments, n.ID)
		return
	}

	if _, isMap := DictPairs(s.Value); isMap {
		proposal.Assignments = append(proposal.Assignments, n.ID)
	}
}

// scanClass records setup-method and fixture facts and scans every
// test-prefixed method. Facts are observations, not decisions.
func scanClass(cls *m.ClassDef) *m.ClassProposal {
	proposal := &m.ClassProposal{
		Name:      cls.Name,
		Functions: make(map[string]*m.FunctionProposal),
		Line:      cls.Line(),
	}
	proposal.SetClassContext(cls)

	for _, stmt := range cls.Body {
		fn, ok := stmt.(*m.FunctionDef)
		if !ok {
			continue
		}

		if _, setup := setupMethodNames[fn.Name]; setup {
			proposal.SetupMethods = append(proposal.SetupMethods, fn.Name)
			continue
		}

		if isFixture(fn) {
			proposal.Fixtures = append(proposal.Fixtures, fn.Name)
		}

		if strings.HasPrefix(fn.Name, "test") {
			proposal.AddFunction(ScanFunction(fn, cls.Name))
		}
	}

	return proposal
}

// ScanFunction analyzes one test function body for the subTest loop shape
// and classifies its iterable. The body must contain a for loop whose entire
// body is a single with statement wrapping a subTest call; anything else is
// terminal KeepLoop.
func ScanFunction(fn *m.FunctionDef, className string) *m.FunctionProposal {
	proposal := &m.FunctionProposal{
		Name:           fn.Name,
		Class:          className,
		Strategy:       m.StrategyKeepLoop,
		IterableOrigin: m.OriginNone,
		Line:           fn.Line(),
	}

	loop, loopIndex := findSubTestLoop(fn.Body)
	if loop == nil {
		proposal.AddEvidence(evidenceNoLoop)
		return proposal
	}

	if len(loop.Targets) > 0 {
		proposal.LoopVar = loop.Targets[0]
		proposal.LoopVars = loop.Targets
	}

	iter, itemsCall := unwrapItemsCall(loop.Iter)
	_, isDict := iter.(*m.Dict)
	proposal.SetLoopContext(fn, loop, loopIndex, itemsCall || isDict)

	classifyIterable(proposal, fn, iter, loopIndex)

	return proposal
}

// classifyIterable applies the iterable classification table in order; the
// first matching rule wins. iter is the loop source with any trailing
// .items() call already unwrapped.
func classifyIterable(proposal *m.FunctionProposal, fn *m.FunctionDef, iterExpr m.Expr, loopIndex int) {
	switch iter := iterExpr.(type) {
	case *m.List, *m.Tuple:
		proposal.Strategy = m.StrategyParametrize
		proposal.IterableOrigin = m.OriginLiteral
		proposal.AddEvidence(evidenceLiteral)
	case *m.Dict:
		proposal.Strategy = m.StrategyParametrize
		proposal.IterableOrigin = m.OriginLiteral
		proposal.AddEvidence(evidenceLiteralDict)
	case *m.Name:
		classifyNameIterable(proposal, iter, fn.Body, loopIndex)
	case *m.Call:
		if isLiteralRangeCall(iter) {
			proposal.Strategy = m.StrategyParametrize
			proposal.IterableOrigin = m.OriginCall
			proposal.AddEvidence(evidenceRangeCall)

			return
		}

		proposal.Strategy = m.StrategySubtests
		proposal.IterableOrigin = m.OriginCall
		proposal.AddEvidence(evidenceUnknown)
	default:
		// Attribute access, comprehensions and every unmodeled shape.
		proposal.Strategy = m.StrategySubtests
		proposal.IterableOrigin = m.OriginNone
		proposal.AddEvidence(evidenceUnknown)
	}
}

// classifyNameIterable resolves a bare-name iterable through a backward scan
// over the same function body. The scope boundary is explicit: enclosing
// scopes are never consulted.
func classifyNameIterable(proposal *m.FunctionProposal, iter *m.Name, stmts []m.Stmt, loopIndex int) {
	proposal.IterableOrigin = m.OriginName

	for i := loopIndex - 1; i >= 0; i-- {
		binding, value, _ := simpleBinding(stmts[i], iter.ID)
		if !binding {
			continue
		}

		if !isLiteralContainer(value) {
			proposal.Strategy = m.StrategySubtests
			proposal.AddEvidence(evidenceUnknown)

			return
		}

		if IsMutated(iter.ID, stmts, i, loopIndex) {
			proposal.Strategy = m.StrategySubtests
			proposal.AccumulatorMutated = true
			proposal.AddEvidence(evidenceMutated)

			return
		}

		proposal.Strategy = m.StrategyParametrize
		proposal.AddEvidence(evidenceNameResolved)

		return
	}

	// No binding in scope (parameter, closure, module-level name).
	proposal.Strategy = m.StrategySubtests
	proposal.AddEvidence(evidenceUnknown)
}

// unwrapItemsCall strips a trailing argument-free .items() call so that
// `for k, v in cases.items():` classifies and resolves against the dict
// expression itself.
func unwrapItemsCall(e m.Expr) (m.Expr, bool) {
	call, ok := e.(*m.Call)
	if !ok || len(call.Args) > 0 || len(call.Keywords) > 0 {
		return e, false
	}

	attr, ok := call.Func.(*m.Attribute)
	if !ok || attr.Attr != "items" {
		return e, false
	}

	return attr.Value, true
}

func isLiteralContainer(e m.Expr) bool {
	if _, ok := LiteralElements(e); ok {
		return true
	}

	_, ok := DictPairs(e)

	return ok
}

func isLiteralRangeCall(call *m.Call) bool {
	n, ok := call.Func.(*m.Name)
	if !ok || n.ID != "range" {
		return false
	}

	if len(call.Args) == 0 || len(call.Keywords) > 0 {
		return false
	}

	return allConstant(call.Args)
}

// findSubTestLoop returns the first for loop whose entire body is one with
// statement carrying exactly one context manager that is a subTest call.
// A for body with extra statements or a with carrying several managers is
// not an error, just not the recognized shape.
func findSubTestLoop(body []m.Stmt) (*m.For, int) {
	for i, stmt := range body {
		loop, ok := stmt.(*m.For)
		if !ok {
			continue
		}

		if len(loop.Body) != 1 {
			continue
		}

		with, ok := loop.Body[0].(*m.With)
		if !ok || len(with.Items) != 1 {
			continue
		}

		if isSubTestCall(with.Items[0].Context) {
			return loop, i
		}
	}

	return nil, -1
}

// isSubTestCall recognizes the scoped-assertion context manager:
// self.subTest(...) or a bare subTest(...).
func isSubTestCall(e m.Expr) bool {
	call, ok := e.(*m.Call)
	if !ok {
		return false
	}

	switch f := call.Func.(type) {
	case *m.Attribute:
		return f.Attr == "subTest"
	case *m.Name:
		return f.ID == "subTest"
	default:
		return false
	}
}

func isFixture(fn *m.FunctionDef) bool {
	for _, dec := range fn.Decorators {
		switch d := dec.(type) {
		case *m.Name:
			if d.ID == "fixture" {
				return true
			}
		case *m.Attribute:
			if d.Attr == "fixture" {
				return true
			}
		case *m.Call:
			if isFixtureRef(d.Func) {
				return true
			}
		default:
		}
	}

	return false
}

func isFixtureRef(e m.Expr) bool {
	switch d := e.(type) {
	case *m.Name:
		return d.ID == "fixture"
	case *m.Attribute:
		return d.Attr == "fixture"
	default:
		return false
	}
}
