package domain

import (
	"strings"

	m "github.com/mouse-blink/subshift/internal/model"
)

// RenderExpr prints an expression back to Python source text. Literal raws
// keep their original spelling (hex ints, underscores, quote style); RawExpr
// nodes reproduce their exact source slice.
func RenderExpr(e m.Expr) string {
	switch v := e.(type) {
	case nil:
		return ""
	case *m.Name:
		return v.ID
	case *m.Attribute:
		return RenderExpr(v.Value) + "." + v.Attr
	case *m.Call:
		return renderCall(v)
	case *m.List:
		return "[" + renderJoined(v.Elts) + "]"
	case *m.Tuple:
		if len(v.Elts) == 1 {
			return "(" + RenderExpr(v.Elts[0]) + ",)"
		}

		return "(" + renderJoined(v.Elts) + ")"
	case *m.Set:
		if len(v.Elts) == 0 {
			return "set()"
		}

		return "{" + renderJoined(v.Elts) + "}"
	case *m.Dict:
		return renderDict(v)
	case *m.Int:
		return v.Raw
	case *m.Float:
		return v.Raw
	case *m.Str:
		return v.Raw
	case *m.Bool:
		if v.Value {
			return "True"
		}

		return "False"
	case *m.None:
		return "None"
	case *m.UnaryOp:
		return renderUnary(v)
	case *m.BinaryOp:
		return renderOperand(v.Left) + " " + v.Op + " " + renderOperand(v.Right)
	case *m.RawExpr:
		return v.Text
	default:
		return ""
	}
}

func renderJoined(elts []m.Expr) string {
	parts := make([]string, len(elts))
	for i, e := range elts {
		parts[i] = RenderExpr(e)
	}

	return strings.Join(parts, ", ")
}

func renderCall(c *m.Call) string {
	parts := make([]string, 0, len(c.Args)+len(c.Keywords))

	for _, a := range c.Args {
		parts = append(parts, RenderExpr(a))
	}

	for _, kw := range c.Keywords {
		parts = append(parts, kw.Name+"="+RenderExpr(kw.Value))
	}

	return RenderExpr(c.Func) + "(" + strings.Join(parts, ", ") + ")"
}

func renderDict(d *m.Dict) string {
	parts := make([]string, len(d.Keys))
	for i := range d.Keys {
		parts[i] = RenderExpr(d.Keys[i]) + ": " + RenderExpr(d.Values[i])
	}

	return "{" + strings.Join(parts, ", ") + "}"
}

func renderUnary(u *m.UnaryOp) string {
	op := u.Op
	if op == "not" {
		op += " "
	}

	return op + renderOperand(u.Operand)
}

// renderOperand parenthesizes nested operations so rendered operator
// precedence never depends on the reader.
func renderOperand(e m.Expr) string {
	switch e.(type) {
	case *m.BinaryOp, *m.UnaryOp:
		return "(" + RenderExpr(e) + ")"
	default:
		return RenderExpr(e)
	}
}
