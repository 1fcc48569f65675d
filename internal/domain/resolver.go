package domain

import (
	"errors"

	m "github.com/mouse-blink/subshift/internal/model"
)

// ErrCannotResolve is the sole expected failure of the reference resolver:
// neither literal extraction nor name-based resolution succeeded, or a
// mutation invalidated the candidate binding. Callers match it with errors.Is
// and fall back to the subtests strategy; it never aborts a file.
var ErrCannotResolve = errors.New("iterable reference cannot be resolved")

// ResolveSequenceArgument resolves a loop source expression to its ordered
// literal elements. The expression resolves directly when it is a list or
// tuple literal. A bare name resolves through a backward scan over stmts
// (the enclosing function body, passed explicitly as the scope boundary)
// starting at loopIndex-1, looking for the nearest simple assignment to that
// name; the binding only qualifies when its right-hand side is itself a
// list/tuple literal and the name is not mutated between binding and loop.
// Any other shape fails with ErrCannotResolve.
func ResolveSequenceArgument(expr m.Expr, stmts []m.Stmt, loopIndex int) (*m.ResolvedSequence, error) {
	if elts, ok := LiteralElements(expr); ok {
		return &m.ResolvedSequence{Elements: cloneAll(elts)}, nil
	}

	return resolveByName(expr, stmts, loopIndex, func(value m.Expr) (*m.ResolvedSequence, bool) {
		elts, ok := LiteralElements(value)
		if !ok {
			return nil, false
		}

		return &m.ResolvedSequence{Elements: cloneAll(elts)}, true
	})
}

// ResolveMappingArgument is the dict analogue of ResolveSequenceArgument:
// the literal form is a dict literal and the result preserves declaration
// order of the key/value pairs exactly.
func ResolveMappingArgument(expr m.Expr, stmts []m.Stmt, loopIndex int) (*m.ResolvedSequence, error) {
	if pairs, ok := DictPairs(expr); ok {
		return &m.ResolvedSequence{Pairs: clonePairs(pairs)}, nil
	}

	return resolveByName(expr, stmts, loopIndex, func(value m.Expr) (*m.ResolvedSequence, bool) {
		pairs, ok := DictPairs(value)
		if !ok {
			return nil, false
		}

		return &m.ResolvedSequence{Pairs: clonePairs(pairs)}, true
	})
}

// resolveByName implements the shared backward-scan path. extract converts a
// qualifying right-hand side into a resolved sequence, or reports that the
// bound value has the wrong shape.
func resolveByName(expr m.Expr, stmts []m.Stmt, loopIndex int, extract func(m.Expr) (*m.ResolvedSequence, bool)) (*m.ResolvedSequence, error) {
	name, ok := expr.(*m.Name)
	if !ok {
		return nil, ErrCannotResolve
	}

	if loopIndex > len(stmts) {
		loopIndex = len(stmts)
	}

	for i := loopIndex - 1; i >= 0; i-- {
		binding, value, shares := simpleBinding(stmts[i], name.ID)
		if !binding {
			continue
		}

		// Sequential semantics: the nearest binding governs. If its value
		// does not extract, the reference stays unresolved rather than
		// skipping to a stale earlier binding.
		seq, ok := extract(value)
		if !ok {
			return nil, ErrCannotResolve
		}

		if IsMutated(name.ID, stmts, i, loopIndex) {
			return nil, ErrCannotResolve
		}

		if !shares {
			seq.Removals = append(seq.Removals, m.RemovalCandidate{
				StatementIndex: i,
				BoundName:      name.ID,
				Line:           stmts[i].Line(),
				EndLine:        stmts[i].EndLine(),
			})
		}

		return seq, nil
	}

	return nil, ErrCannotResolve
}

// simpleBinding reports whether stmt is a simple (or annotated) assignment
// binding exactly the given name, returning its value and whether the
// statement shares a physical line with another logical statement.
func simpleBinding(stmt m.Stmt, name string) (isBinding bool, value m.Expr, sharesLine bool) {
	switch s := stmt.(type) {
	case *m.Assign:
		if len(s.Targets) == 1 && exprIsName(s.Targets[0], name) {
			return true, s.Value, s.SharesLine
		}
	case *m.AnnAssign:
		if s.Value != nil && exprIsName(s.Target, name) {
			return true, s.Value, s.SharesLine
		}
	default:
	}

	return false, nil, false
}

// CollectConstantAssignments gathers every simple or annotated assignment
// before loopIndex whose right-hand side is constant. Later assignments to
// the same name overwrite earlier ones, consistent with sequential execution.
// Only the explicitly passed statement list is scanned; enclosing scopes are
// deliberately invisible.
func CollectConstantAssignments(stmts []m.Stmt, loopIndex int) map[string]m.Expr {
	if loopIndex > len(stmts) {
		loopIndex = len(stmts)
	}

	constants := make(map[string]m.Expr)

	for i := 0; i < loopIndex; i++ {
		switch s := stmts[i].(type) {
		case *m.Assign:
			if len(s.Targets) != 1 || !IsConstant(s.Value) {
				continue
			}

			if n, ok := s.Targets[0].(*m.Name); ok {
				constants[n.ID] = s.Value
			}
		case *m.AnnAssign:
			if s.Value == nil || !IsConstant(s.Value) {
				continue
			}

			if n, ok := s.Target.(*m.Name); ok {
				constants[n.ID] = s.Value
			}
		default:
		}
	}

	return constants
}

// InlineConstants returns a structural clone of expr with every bare name
// bound in constants replaced by a deep clone of its constant value. Unknown
// names stay untouched. This only prettifies rewrite output; it plays no part
// in strategy decisions.
func InlineConstants(expr m.Expr, constants map[string]m.Expr) m.Expr {
	switch v := expr.(type) {
	case nil:
		return nil
	case *m.Name:
		if value, ok := constants[v.ID]; ok {
			return m.CloneExpr(value)
		}

		return m.CloneExpr(v)
	case *m.Attribute:
		c := &m.Attribute{Span: v.Span, Attr: v.Attr}
		c.Value = InlineConstants(v.Value, constants)

		return c
	case *m.Call:
		c := &m.Call{Span: v.Span}
		c.Func = InlineConstants(v.Func, constants)
		c.Args = inlineAll(v.Args, constants)
		c.Keywords = make([]m.Keyword, len(v.Keywords))

		for i, kw := range v.Keywords {
			c.Keywords[i] = m.Keyword{Name: kw.Name, Value: InlineConstants(kw.Value, constants)}
		}

		return c
	case *m.List:
		return &m.List{Span: v.Span, Elts: inlineAll(v.Elts, constants)}
	case *m.Tuple:
		return &m.Tuple{Span: v.Span, Elts: inlineAll(v.Elts, constants)}
	case *m.Set:
		return &m.Set{Span: v.Span, Elts: inlineAll(v.Elts, constants)}
	case *m.Dict:
		return &m.Dict{
			Span:   v.Span,
			Keys:   inlineAll(v.Keys, constants),
			Values: inlineAll(v.Values, constants),
		}
	case *m.UnaryOp:
		return &m.UnaryOp{Span: v.Span, Op: v.Op, Operand: InlineConstants(v.Operand, constants)}
	case *m.BinaryOp:
		return &m.BinaryOp{
			Span:  v.Span,
			Op:    v.Op,
			Left:  InlineConstants(v.Left, constants),
			Right: InlineConstants(v.Right, constants),
		}
	default:
		return m.CloneExpr(expr)
	}
}

func inlineAll(es []m.Expr, constants map[string]m.Expr) []m.Expr {
	if es == nil {
		return nil
	}

	out := make([]m.Expr, len(es))
	for i, e := range es {
		out[i] = InlineConstants(e, constants)
	}

	return out
}

func cloneAll(es []m.Expr) []m.Expr {
	out := make([]m.Expr, len(es))
	for i, e := range es {
		out[i] = m.CloneExpr(e)
	}

	return out
}

func clonePairs(pairs []m.DictPair) []m.DictPair {
	out := make([]m.DictPair, len(pairs))
	for i, p := range pairs {
		out[i] = m.DictPair{Key: m.CloneExpr(p.Key), Value: m.CloneExpr(p.Value)}
	}

	return out
}
