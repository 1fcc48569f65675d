// Package domain contains the decision analysis and parametrization engine:
// expression classification, mutation detection, reference resolution,
// pattern scanning, reconciliation and the rewrite planner.
package domain

import (
	m "github.com/mouse-blink/subshift/internal/model"
)

// IsConstant reports whether an expression is a compile-time constant:
// numeric/string literals, True/False/None, unary and binary operations over
// constants, container literals whose every element (and for dicts, every key
// and value) is constant, and attribute access on a constant. Recursive,
// total and side-effect free.
func IsConstant(e m.Expr) bool {
	switch v := e.(type) {
	case *m.Int, *m.Float, *m.Str, *m.Bool, *m.None:
		return true
	case *m.UnaryOp:
		return IsConstant(v.Operand)
	case *m.BinaryOp:
		return IsConstant(v.Left) && IsConstant(v.Right)
	case *m.List:
		return allConstant(v.Elts)
	case *m.Tuple:
		return allConstant(v.Elts)
	case *m.Set:
		return allConstant(v.Elts)
	case *m.Dict:
		return allConstant(v.Keys) && allConstant(v.Values)
	case *m.Attribute:
		return IsConstant(v.Value)
	default:
		// Name, Call, RawExpr and anything unmodeled.
		return false
	}
}

func allConstant(es []m.Expr) bool {
	for _, e := range es {
		if !IsConstant(e) {
			return false
		}
	}

	return true
}

// LiteralElements returns the element expressions of a list or tuple literal
// in source order. It never partially succeeds: any other shape returns
// ok=false.
func LiteralElements(e m.Expr) ([]m.Expr, bool) {
	switch v := e.(type) {
	case *m.List:
		return v.Elts, true
	case *m.Tuple:
		return v.Elts, true
	default:
		return nil, false
	}
}

// DictPairs returns the key/value pairs of a dict literal in declaration
// order, never reordered.
func DictPairs(e m.Expr) ([]m.DictPair, bool) {
	d, ok := e.(*m.Dict)
	if !ok {
		return nil, false
	}

	pairs := make([]m.DictPair, len(d.Keys))
	for i := range d.Keys {
		pairs[i] = m.DictPair{Key: d.Keys[i], Value: d.Values[i]}
	}

	return pairs, true
}

// FreeNames collects every identifier referenced in an expression. True,
// False and None are literal nodes, not names, so they never appear. The
// result tells an inlining step which bindings it must have available.
func FreeNames(e m.Expr) map[string]struct{} {
	names := make(map[string]struct{})
	collectFreeNames(e, names)

	return names
}

func collectFreeNames(e m.Expr, names map[string]struct{}) {
	switch v := e.(type) {
	case nil:
		return
	case *m.Name:
		names[v.ID] = struct{}{}
	case *m.Attribute:
		collectFreeNames(v.Value, names)
	case *m.Call:
		collectFreeNames(v.Func, names)

		for _, a := range v.Args {
			collectFreeNames(a, names)
		}

		for _, kw := range v.Keywords {
			collectFreeNames(kw.Value, names)
		}
	case *m.List:
		collectFreeNamesAll(v.Elts, names)
	case *m.Tuple:
		collectFreeNamesAll(v.Elts, names)
	case *m.Set:
		collectFreeNamesAll(v.Elts, names)
	case *m.Dict:
		collectFreeNamesAll(v.Keys, names)
		collectFreeNamesAll(v.Values, names)
	case *m.UnaryOp:
		collectFreeNames(v.Operand, names)
	case *m.BinaryOp:
		collectFreeNames(v.Left, names)
		collectFreeNames(v.Right, names)
	case *m.Int, *m.Float, *m.Str, *m.Bool, *m.None, *m.RawExpr:
		// Literals carry no names; RawExpr is opaque by construction.
	}
}

func collectFreeNamesAll(es []m.Expr, names map[string]struct{}) {
	for _, e := range es {
		collectFreeNames(e, names)
	}
}
