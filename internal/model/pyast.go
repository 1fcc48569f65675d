package model

// NodeKind discriminates every syntax node the analysis engine understands.
// Shapes outside this closed set parse into KindRawStmt/KindRawExpr so that
// unknown constructs route to the conservative strategies instead of being
// silently skipped.
type NodeKind int

// Node kinds. Statements first, then expressions.
const (
	KindModule NodeKind = iota
	KindClassDef
	KindFunctionDef
	KindFor
	KindWith
	KindAssign
	KindAugAssign
	KindAnnAssign
	KindExprStmt
	KindImport
	KindImportFrom
	KindRawStmt

	KindName
	KindAttribute
	KindCall
	KindList
	KindTuple
	KindSet
	KindDict
	KindInt
	KindFloat
	KindStr
	KindBool
	KindNone
	KindUnaryOp
	KindBinaryOp
	KindRawExpr
)

var nodeKindNames = map[NodeKind]string{
	KindModule:      "Module",
	KindClassDef:    "ClassDef",
	KindFunctionDef: "FunctionDef",
	KindFor:         "For",
	KindWith:        "With",
	KindAssign:      "Assign",
	KindAugAssign:   "AugAssign",
	KindAnnAssign:   "AnnAssign",
	KindExprStmt:    "ExprStmt",
	KindImport:      "Import",
	KindImportFrom:  "ImportFrom",
	KindRawStmt:     "RawStmt",
	KindName:        "Name",
	KindAttribute:   "Attribute",
	KindCall:        "Call",
	KindList:        "List",
	KindTuple:       "Tuple",
	KindSet:         "Set",
	KindDict:        "Dict",
	KindInt:         "Int",
	KindFloat:       "Float",
	KindStr:         "Str",
	KindBool:        "Bool",
	KindNone:        "None",
	KindUnaryOp:     "UnaryOp",
	KindBinaryOp:    "BinaryOp",
	KindRawExpr:     "RawExpr",
}

func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}

	return "Unknown"
}

// Node is the common interface of all syntax nodes. Line numbers are 1-based
// and refer to the original source file; EndLine is inclusive.
type Node interface {
	Kind() NodeKind
	Line() int
	EndLine() int
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Span carries the source position shared by all nodes and is embedded in
// every node struct.
type Span struct {
	Start int
	Stop  int
}

func (s Span) Line() int    { return s.Start }
func (s Span) EndLine() int { return s.Stop }

// --- statements ---

// Module is the root node of one parsed source file.
type Module struct {
	Span
	Name string
	Body []Stmt
}

// ClassDef is a class definition with its decorators and body.
type ClassDef struct {
	Span
	Name       string
	Bases      []Expr
	Decorators []Expr
	Body       []Stmt
}

// FunctionDef is a function or method definition. Only parameter names are
// retained; defaults and annotations are not needed by the engine. The node
// span starts at the first decorator when decorators are present; DefLine is
// the line of the def keyword itself.
type FunctionDef struct {
	Span
	Name       string
	Params     []string
	Decorators []Expr
	Body       []Stmt
	DefLine    int
}

// For is a for loop. Targets holds the bound names in source order; a
// tuple-unpacking header like `for a, b in ...` yields two targets.
type For struct {
	Span
	Targets []string
	Iter    Expr
	Body    []Stmt
}

// WithItem is one `expr as name` entry of a with statement.
type WithItem struct {
	Context Expr
	As      string
}

// With is a with statement.
type With struct {
	Span
	Items []WithItem
	Body  []Stmt
}

// Assign is a plain assignment. SharesLine is true when another logical
// statement occupies the same physical line (semicolon-separated), which
// disqualifies the statement from removal during rewriting.
type Assign struct {
	Span
	Targets    []Expr
	Value      Expr
	SharesLine bool
}

// AugAssign is a compound assignment such as `x += 1`.
type AugAssign struct {
	Span
	Target Expr
	Op     string
	Value  Expr
}

// AnnAssign is an annotated assignment such as `x: List[int] = []`.
type AnnAssign struct {
	Span
	Target     Expr
	Annotation Expr
	Value      Expr
	SharesLine bool
}

// ExprStmt is a bare expression used as a statement, typically a call.
type ExprStmt struct {
	Span
	Value Expr
}

// Import is an `import a, b.c` statement; Names holds the dotted module paths.
type Import struct {
	Span
	Names []string
}

// ImportFrom is a `from mod import x, y` statement.
type ImportFrom struct {
	Span
	Module string
	Names  []string
}

// RawStmt wraps any statement the parser does not model, including its
// indented block when it has one. Text preserves the exact source slice.
type RawStmt struct {
	Span
	Text string
}

func (*Module) Kind() NodeKind      { return KindModule }
func (*ClassDef) Kind() NodeKind    { return KindClassDef }
func (*FunctionDef) Kind() NodeKind { return KindFunctionDef }
func (*For) Kind() NodeKind         { return KindFor }
func (*With) Kind() NodeKind        { return KindWith }
func (*Assign) Kind() NodeKind      { return KindAssign }
func (*AugAssign) Kind() NodeKind   { return KindAugAssign }
func (*AnnAssign) Kind() NodeKind   { return KindAnnAssign }
func (*ExprStmt) Kind() NodeKind    { return KindExprStmt }
func (*Import) Kind() NodeKind      { return KindImport }
func (*ImportFrom) Kind() NodeKind  { return KindImportFrom }
func (*RawStmt) Kind() NodeKind     { return KindRawStmt }

func (*Module) stmtNode()      {}
func (*ClassDef) stmtNode()    {}
func (*FunctionDef) stmtNode() {}
func (*For) stmtNode()         {}
func (*With) stmtNode()        {}
func (*Assign) stmtNode()      {}
func (*AugAssign) stmtNode()   {}
func (*AnnAssign) stmtNode()   {}
func (*ExprStmt) stmtNode()    {}
func (*Import) stmtNode()      {}
func (*ImportFrom) stmtNode()  {}
func (*RawStmt) stmtNode()     {}

// --- expressions ---

// Name is an identifier reference.
type Name struct {
	Span
	ID string
}

// Attribute is `Value.Attr`.
type Attribute struct {
	Span
	Value Expr
	Attr  string
}

// Keyword is a `name=value` call argument.
type Keyword struct {
	Name  string
	Value Expr
}

// Call is a function or method call.
type Call struct {
	Span
	Func     Expr
	Args     []Expr
	Keywords []Keyword
}

// List is a list literal.
type List struct {
	Span
	Elts []Expr
}

// Tuple is a tuple literal, parenthesized or bare.
type Tuple struct {
	Span
	Elts []Expr
}

// Set is a set literal.
type Set struct {
	Span
	Elts []Expr
}

// Dict is a dict literal; Keys and Values are parallel, in declaration order.
type Dict struct {
	Span
	Keys   []Expr
	Values []Expr
}

// Int is an integer literal. Raw preserves the source spelling so rewrites
// keep hex/underscored forms intact.
type Int struct {
	Span
	Raw string
}

// Float is a floating-point literal.
type Float struct {
	Span
	Raw string
}

// Str is a plain string literal. Raw includes the quotes and any prefix;
// f-strings are not Str nodes, they parse as RawExpr.
type Str struct {
	Span
	Raw string
}

// Bool is True or False.
type Bool struct {
	Span
	Value bool
}

// None is the None literal.
type None struct {
	Span
}

// UnaryOp is a unary operation such as `-1` or `not x`.
type UnaryOp struct {
	Span
	Op      string
	Operand Expr
}

// BinaryOp covers arithmetic, bitwise, comparison and boolean operators.
type BinaryOp struct {
	Span
	Left  Expr
	Op    string
	Right Expr
}

// RawExpr wraps any expression the parser does not model (comprehensions,
// subscripts, lambdas, f-strings, starred args). Text is the exact source.
type RawExpr struct {
	Span
	Text string
}

func (*Name) Kind() NodeKind      { return KindName }
func (*Attribute) Kind() NodeKind { return KindAttribute }
func (*Call) Kind() NodeKind      { return KindCall }
func (*List) Kind() NodeKind      { return KindList }
func (*Tuple) Kind() NodeKind     { return KindTuple }
func (*Set) Kind() NodeKind       { return KindSet }
func (*Dict) Kind() NodeKind      { return KindDict }
func (*Int) Kind() NodeKind       { return KindInt }
func (*Float) Kind() NodeKind     { return KindFloat }
func (*Str) Kind() NodeKind       { return KindStr }
func (*Bool) Kind() NodeKind      { return KindBool }
func (*None) Kind() NodeKind      { return KindNone }
func (*UnaryOp) Kind() NodeKind   { return KindUnaryOp }
func (*BinaryOp) Kind() NodeKind  { return KindBinaryOp }
func (*RawExpr) Kind() NodeKind   { return KindRawExpr }

func (*Name) exprNode()      {}
func (*Attribute) exprNode() {}
func (*Call) exprNode()      {}
func (*List) exprNode()      {}
func (*Tuple) exprNode()     {}
func (*Set) exprNode()       {}
func (*Dict) exprNode()      {}
func (*Int) exprNode()       {}
func (*Float) exprNode()     {}
func (*Str) exprNode()       {}
func (*Bool) exprNode()      {}
func (*None) exprNode()      {}
func (*UnaryOp) exprNode()   {}
func (*BinaryOp) exprNode()  {}
func (*RawExpr) exprNode()   {}

// CloneExpr deep-copies an expression tree. Resolver outputs are always
// freshly allocated so rewrites never alias nodes of the input tree.
func CloneExpr(e Expr) Expr {
	switch v := e.(type) {
	case nil:
		return nil
	case *Name:
		c := *v
		return &c
	case *Attribute:
		c := *v
		c.Value = CloneExpr(v.Value)

		return &c
	case *Call:
		c := *v
		c.Func = CloneExpr(v.Func)
		c.Args = cloneExprs(v.Args)
		c.Keywords = make([]Keyword, len(v.Keywords))

		for i, kw := range v.Keywords {
			c.Keywords[i] = Keyword{Name: kw.Name, Value: CloneExpr(kw.Value)}
		}

		return &c
	case *List:
		c := *v
		c.Elts = cloneExprs(v.Elts)

		return &c
	case *Tuple:
		c := *v
		c.Elts = cloneExprs(v.Elts)

		return &c
	case *Set:
		c := *v
		c.Elts = cloneExprs(v.Elts)

		return &c
	case *Dict:
		c := *v
		c.Keys = cloneExprs(v.Keys)
		c.Values = cloneExprs(v.Values)

		return &c
	case *Int:
		c := *v
		return &c
	case *Float:
		c := *v
		return &c
	case *Str:
		c := *v
		return &c
	case *Bool:
		c := *v
		return &c
	case *None:
		c := *v
		return &c
	case *UnaryOp:
		c := *v
		c.Operand = CloneExpr(v.Operand)

		return &c
	case *BinaryOp:
		c := *v
		c.Left = CloneExpr(v.Left)
		c.Right = CloneExpr(v.Right)

		return &c
	case *RawExpr:
		c := *v
		return &c
	default:
		return e
	}
}

func cloneExprs(es []Expr) []Expr {
	if es == nil {
		return nil
	}

	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = CloneExpr(e)
	}

	return out
}
