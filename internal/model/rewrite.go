package model

// DictPair is one key/value pair of a resolved dict source, in declaration
// order.
type DictPair struct {
	Key   Expr
	Value Expr
}

// RemovalCandidate marks an assignment statement that resolution fully
// consumed and the rewrite step may therefore delete. It is only produced
// when the originating statement is the sole logical statement on its line.
type RemovalCandidate struct {
	StatementIndex int
	BoundName      string
	Line           int
	EndLine        int
}

// ResolvedSequence is the transient result of resolving a loop's source
// expression. Exactly one of Elements or Pairs is populated: Elements for
// list/tuple sources, Pairs for dict sources. All expressions are deep clones
// owned by the caller.
type ResolvedSequence struct {
	Elements []Expr
	Pairs    []DictPair
	Removals []RemovalCandidate
}

// LineEdit replaces the inclusive line range [StartLine, EndLine] of the
// original source with Replacement. An empty Replacement deletes the range.
type LineEdit struct {
	StartLine   int
	EndLine     int
	Replacement []string
}

// RewritePlan is the set of edits produced for one file, plus the rendered
// result and a unified diff for dry runs.
type RewritePlan struct {
	Source    SourceFile
	Edits     []LineEdit
	Rewritten []byte
	Diff      string
	// Parametrized / Subtests / Untouched count the functions per outcome.
	Parametrized int
	Subtests     int
	Untouched    int
	// Fallbacks counts parametrize decisions that failed resolution during
	// rewriting and were downgraded to subtests.
	Fallbacks int
}

// Changed reports whether applying the plan would modify the file.
func (p *RewritePlan) Changed() bool {
	return len(p.Edits) > 0
}
