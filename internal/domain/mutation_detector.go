package domain

import (
	m "github.com/mouse-blink/subshift/internal/model"
)

// mutatingMethods are the container methods treated as in-place mutation when
// called on the tracked name.
var mutatingMethods = map[string]struct{}{
	"append":     {},
	"extend":     {},
	"insert":     {},
	"pop":        {},
	"clear":      {},
	"remove":     {},
	"appendleft": {},
}

// IsMutated reports whether name is re-bound or mutated anywhere in stmts
// strictly between bindIndex (exclusive) and uptoIndex (exclusive). A match
// is any of: a `name.<method>(...)` call with a mutating method, a plain
// re-assignment targeting name, or an augmented assignment targeting name.
//
// The check is syntactic, not semantic: aliasing through another binding
// (`other = name; other.append(x)`) goes undetected. This matches the
// original design and is a documented limitation, not a bug fix target.
func IsMutated(name string, stmts []m.Stmt, bindIndex, uptoIndex int) bool {
	if uptoIndex > len(stmts) {
		uptoIndex = len(stmts)
	}

	for i := bindIndex + 1; i < uptoIndex; i++ {
		if stmtMutates(name, stmts[i]) {
			return true
		}
	}

	return false
}

func stmtMutates(name string, stmt m.Stmt) bool {
	switch s := stmt.(type) {
	case *m.ExprStmt:
		return isMutatingCall(name, s.Value)
	case *m.Assign:
		return assignsToName(s.Targets, name)
	case *m.AnnAssign:
		return exprIsName(s.Target, name)
	case *m.AugAssign:
		return exprIsName(s.Target, name)
	case *m.For:
		// The accumulator pattern usually appends inside a loop; recurse
		// into block statements that stay within the same binding scope.
		return anyStmtMutates(name, s.Body)
	case *m.With:
		return anyStmtMutates(name, s.Body)
	default:
		// ClassDef/FunctionDef open a new scope; Import and RawStmt cannot
		// be matched syntactically.
		return false
	}
}

func anyStmtMutates(name string, stmts []m.Stmt) bool {
	for _, s := range stmts {
		if stmtMutates(name, s) {
			return true
		}
	}

	return false
}

func isMutatingCall(name string, e m.Expr) bool {
	call, ok := e.(*m.Call)
	if !ok {
		return false
	}

	attr, ok := call.Func.(*m.Attribute)
	if !ok {
		return false
	}

	if !exprIsName(attr.Value, name) {
		return false
	}

	_, mutating := mutatingMethods[attr.Attr]

	return mutating
}

func assignsToName(targets []m.Expr, name string) bool {
	for _, t := range targets {
		if exprIsName(t, name) {
			return true
		}
	}

	return false
}

func exprIsName(e m.Expr, name string) bool {
	n, ok := e.(*m.Name)

	return ok && n.ID == name
}
