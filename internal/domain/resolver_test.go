package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "github.com/mouse-blink/subshift/internal/model"
)

// loopAt returns the for statement at the given body index.
func loopAt(t *testing.T, body []m.Stmt, index int) *m.For {
	t.Helper()

	loop, ok := body[index].(*m.For)
	require.True(t, ok, "statement %d is %T, want *For", index, body[index])

	return loop
}

func TestResolveSequenceArgumentLiteral(t *testing.T) {
	body := bodyOf(t, `def test_x(self):
    for c in [1, 2, 3]:
        pass
`)
	loop := loopAt(t, body, 0)

	seq, err := ResolveSequenceArgument(loop.Iter, body, 0)
	require.NoError(t, err)
	assert.Len(t, seq.Elements, 3)
	assert.Empty(t, seq.Removals)
}

func TestResolveSequenceArgumentByName(t *testing.T) {
	body := bodyOf(t, `def test_x(self):
    cases = [1, 2]
    for c in cases:
        pass
`)
	loop := loopAt(t, body, 1)

	seq, err := ResolveSequenceArgument(loop.Iter, body, 1)
	require.NoError(t, err)
	assert.Len(t, seq.Elements, 2)

	require.Len(t, seq.Removals, 1)
	removal := seq.Removals[0]
	assert.Equal(t, 0, removal.StatementIndex)
	assert.Equal(t, "cases", removal.BoundName)
	assert.Equal(t, 2, removal.Line)
	assert.Equal(t, 2, removal.EndLine)
}

func TestResolveSequenceArgumentMultilineBindingSpan(t *testing.T) {
	body := bodyOf(t, `def test_x(self):
    cases = [
        (1, "one"),
        (2, "two"),
    ]
    for c in cases:
        pass
`)
	loop := loopAt(t, body, 1)

	seq, err := ResolveSequenceArgument(loop.Iter, body, 1)
	require.NoError(t, err)

	require.Len(t, seq.Removals, 1)
	assert.Equal(t, 2, seq.Removals[0].Line)
	assert.Equal(t, 5, seq.Removals[0].EndLine)
}

func TestResolveSequenceArgumentSharedLineBinding(t *testing.T) {
	body := bodyOf(t, `def test_x(self):
    x = 0; cases = [1, 2]
    for c in cases:
        pass
`)

	// The shared-line statements parse to two entries; the loop follows them.
	loop := loopAt(t, body, 2)

	seq, err := ResolveSequenceArgument(loop.Iter, body, 2)
	require.NoError(t, err)
	assert.Len(t, seq.Elements, 2)
	assert.Empty(t, seq.Removals, "shared-line bindings must never be removal candidates")
}

func TestResolveSequenceArgumentNearestBindingGoverns(t *testing.T) {
	body := bodyOf(t, `def test_x(self):
    cases = [1, 2]
    cases = load_cases()
    for c in cases:
        pass
`)
	loop := loopAt(t, body, 2)

	_, err := ResolveSequenceArgument(loop.Iter, body, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCannotResolve))
}

func TestResolveSequenceArgumentMutatedBinding(t *testing.T) {
	body := bodyOf(t, `def test_x(self):
    cases = [1, 2]
    cases.append(3)
    for c in cases:
        pass
`)
	loop := loopAt(t, body, 2)

	_, err := ResolveSequenceArgument(loop.Iter, body, 2)
	assert.True(t, errors.Is(err, ErrCannotResolve))
}

func TestResolveSequenceArgumentUnresolvableShapes(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "call iterable",
			src: `def test_x(self):
    for c in load_cases():
        pass
`,
		},
		{
			name: "unbound name",
			src: `def test_x(self):
    for c in cases:
        pass
`,
		},
		{
			name: "name bound to call",
			src: `def test_x(self):
    cases = load_cases()
    for c in cases:
        pass
`,
		},
		{
			name: "name bound to dict",
			src: `def test_x(self):
    cases = {"a": 1}
    for c in cases:
        pass
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := bodyOf(t, tt.src)

			var loop *m.For
			loopIndex := -1

			for i, stmt := range body {
				if fl, ok := stmt.(*m.For); ok {
					loop, loopIndex = fl, i
				}
			}

			require.NotNil(t, loop)

			_, err := ResolveSequenceArgument(loop.Iter, body, loopIndex)
			assert.True(t, errors.Is(err, ErrCannotResolve))
		})
	}
}

func TestResolveMappingArgument(t *testing.T) {
	t.Run("literal dict preserves order", func(t *testing.T) {
		body := bodyOf(t, `def test_x(self):
    for k in {"z": 1, "a": 2}:
        pass
`)
		loop := loopAt(t, body, 0)

		seq, err := ResolveMappingArgument(loop.Iter, body, 0)
		require.NoError(t, err)
		require.Len(t, seq.Pairs, 2)

		first, ok := seq.Pairs[0].Key.(*m.Str)
		require.True(t, ok)
		assert.Equal(t, `"z"`, first.Raw)
	})

	t.Run("named dict resolves with removal", func(t *testing.T) {
		body := bodyOf(t, `def test_x(self):
    table = {"a": 1, "b": 2}
    for k in table:
        pass
`)
		loop := loopAt(t, body, 1)

		seq, err := ResolveMappingArgument(loop.Iter, body, 1)
		require.NoError(t, err)
		assert.Len(t, seq.Pairs, 2)
		require.Len(t, seq.Removals, 1)
		assert.Equal(t, "table", seq.Removals[0].BoundName)
	})

	t.Run("name bound to list fails", func(t *testing.T) {
		body := bodyOf(t, `def test_x(self):
    table = [1, 2]
    for k in table:
        pass
`)
		loop := loopAt(t, body, 1)

		_, err := ResolveMappingArgument(loop.Iter, body, 1)
		assert.True(t, errors.Is(err, ErrCannotResolve))
	})
}

func TestResolutionClonesElements(t *testing.T) {
	body := bodyOf(t, `def test_x(self):
    cases = [1, 2]
    for c in cases:
        pass
`)
	loop := loopAt(t, body, 1)

	seq, err := ResolveSequenceArgument(loop.Iter, body, 1)
	require.NoError(t, err)

	assign := body[0].(*m.Assign)
	original := assign.Value.(*m.List)

	// The resolved elements are clones, not aliases into the tree.
	assert.NotSame(t, original.Elts[0], seq.Elements[0])
}

func TestCollectConstantAssignments(t *testing.T) {
	body := bodyOf(t, `def test_x(self):
    base = 10
    name = "x"
    base = 20
    derived = compute()
    for c in cases:
        pass
`)

	constants := CollectConstantAssignments(body, 4)

	require.Contains(t, constants, "base")
	require.Contains(t, constants, "name")
	assert.NotContains(t, constants, "derived")

	// The later assignment wins.
	latest, ok := constants["base"].(*m.Int)
	require.True(t, ok)
	assert.Equal(t, "20", latest.Raw)
}

func TestCollectConstantAssignmentsRespectsLoopIndex(t *testing.T) {
	body := bodyOf(t, `def test_x(self):
    early = 1
    for c in cases:
        pass
    late = 2
`)

	constants := CollectConstantAssignments(body, 1)

	assert.Contains(t, constants, "early")
	assert.NotContains(t, constants, "late")
}

func TestInlineConstants(t *testing.T) {
	expr := exprOf(t, "[(base, name), (other, 3)]")

	constants := map[string]m.Expr{
		"base": exprOf(t, "10"),
		"name": exprOf(t, `"x"`),
	}

	inlined := InlineConstants(expr, constants)

	list, ok := inlined.(*m.List)
	require.True(t, ok)

	first, ok := list.Elts[0].(*m.Tuple)
	require.True(t, ok)
	assert.IsType(t, &m.Int{}, first.Elts[0])
	assert.IsType(t, &m.Str{}, first.Elts[1])

	second, ok := list.Elts[1].(*m.Tuple)
	require.True(t, ok)

	// Unknown names stay untouched.
	name, ok := second.Elts[0].(*m.Name)
	require.True(t, ok)
	assert.Equal(t, "other", name.ID)

	// The original expression is never modified.
	origFirst := expr.(*m.List).Elts[0].(*m.Tuple)
	assert.IsType(t, &m.Name{}, origFirst.Elts[0])
}
