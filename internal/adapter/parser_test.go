package adapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "github.com/mouse-blink/subshift/internal/model"
)

func parseSnippet(t *testing.T, src string) *m.Module {
	t.Helper()

	mod := parseModule("snippet", []byte(src))
	require.NotNil(t, mod)

	return mod
}

func TestParseModuleImports(t *testing.T) {
	mod := parseSnippet(t, "import os\nimport numpy as np\nfrom unittest import TestCase, mock\n")

	require.Len(t, mod.Body, 3)

	imp, ok := mod.Body[0].(*m.Import)
	require.True(t, ok)
	assert.Equal(t, []string{"os"}, imp.Names)

	aliased, ok := mod.Body[1].(*m.Import)
	require.True(t, ok)
	assert.Equal(t, []string{"numpy"}, aliased.Names)

	from, ok := mod.Body[2].(*m.ImportFrom)
	require.True(t, ok)
	assert.Equal(t, "unittest", from.Module)
	assert.Equal(t, []string{"TestCase", "mock"}, from.Names)
}

func TestParseModuleClassAndMethod(t *testing.T) {
	src := `class TestMath(unittest.TestCase):
    def test_add(self):
        pass
`
	mod := parseSnippet(t, src)

	require.Len(t, mod.Body, 1)

	cls, ok := mod.Body[0].(*m.ClassDef)
	require.True(t, ok)
	assert.Equal(t, "TestMath", cls.Name)
	require.Len(t, cls.Bases, 1)

	base, ok := cls.Bases[0].(*m.Attribute)
	require.True(t, ok)
	assert.Equal(t, "TestCase", base.Attr)

	require.Len(t, cls.Body, 1)

	fn, ok := cls.Body[0].(*m.FunctionDef)
	require.True(t, ok)
	assert.Equal(t, "test_add", fn.Name)
	assert.Equal(t, []string{"self"}, fn.Params)
	assert.Equal(t, 2, fn.DefLine)
	require.Len(t, fn.Body, 1)
	assert.IsType(t, &m.RawStmt{}, fn.Body[0])
}

func TestParseModuleSubTestLoop(t *testing.T) {
	src := `for case in [1, 2, 3]:
    with self.subTest(case=case):
        self.assertTrue(case)
`
	mod := parseSnippet(t, src)

	require.Len(t, mod.Body, 1)

	loop, ok := mod.Body[0].(*m.For)
	require.True(t, ok)
	assert.Equal(t, []string{"case"}, loop.Targets)

	iter, ok := loop.Iter.(*m.List)
	require.True(t, ok)
	require.Len(t, iter.Elts, 3)
	assert.IsType(t, &m.Int{}, iter.Elts[0])

	require.Len(t, loop.Body, 1)

	with, ok := loop.Body[0].(*m.With)
	require.True(t, ok)
	require.Len(t, with.Items, 1)

	call, ok := with.Items[0].Context.(*m.Call)
	require.True(t, ok)

	attr, ok := call.Func.(*m.Attribute)
	require.True(t, ok)
	assert.Equal(t, "subTest", attr.Attr)
	require.Len(t, call.Keywords, 1)
	assert.Equal(t, "case", call.Keywords[0].Name)
}

func TestParseSoftKeywords(t *testing.T) {
	t.Run("case as assignment target", func(t *testing.T) {
		mod := parseSnippet(t, "case = [(1, 2), (3, 4)]\n")

		require.Len(t, mod.Body, 1)

		assign, ok := mod.Body[0].(*m.Assign)
		require.True(t, ok)
		require.Len(t, assign.Targets, 1)

		target, ok := assign.Targets[0].(*m.Name)
		require.True(t, ok)
		assert.Equal(t, "case", target.ID)
		assert.IsType(t, &m.List{}, assign.Value)
	})

	t.Run("match as ordinary name", func(t *testing.T) {
		mod := parseSnippet(t, "match = 5\n")

		assign, ok := mod.Body[0].(*m.Assign)
		require.True(t, ok)
		require.Len(t, assign.Targets, 1)

		target, ok := assign.Targets[0].(*m.Name)
		require.True(t, ok)
		assert.Equal(t, "match", target.ID)
	})

	t.Run("match as loop target", func(t *testing.T) {
		mod := parseSnippet(t, "for match in results:\n    pass\n")

		loop, ok := mod.Body[0].(*m.For)
		require.True(t, ok)
		assert.Equal(t, []string{"match"}, loop.Targets)
	})

	t.Run("match statement stays raw", func(t *testing.T) {
		src := `match command:
    case "start":
        pass
    case _:
        pass
`
		mod := parseSnippet(t, src)

		require.Len(t, mod.Body, 1)

		raw, ok := mod.Body[0].(*m.RawStmt)
		require.True(t, ok)
		assert.Contains(t, raw.Text, "match command:")
		assert.Contains(t, raw.Text, `case "start":`)
	})

	t.Run("case call argument", func(t *testing.T) {
		mod := parseSnippet(t, "check(case=case)\n")

		stmt, ok := mod.Body[0].(*m.ExprStmt)
		require.True(t, ok)

		call, ok := stmt.Value.(*m.Call)
		require.True(t, ok)
		require.Len(t, call.Keywords, 1)
		assert.Equal(t, "case", call.Keywords[0].Name)
	})
}

func TestParseForTargets(t *testing.T) {
	t.Run("tuple targets", func(t *testing.T) {
		mod := parseSnippet(t, "for k, v in items:\n    pass\n")

		loop, ok := mod.Body[0].(*m.For)
		require.True(t, ok)
		assert.Equal(t, []string{"k", "v"}, loop.Targets)
	})

	t.Run("parenthesized targets", func(t *testing.T) {
		mod := parseSnippet(t, "for (a, b) in pairs:\n    pass\n")

		loop, ok := mod.Body[0].(*m.For)
		require.True(t, ok)
		assert.Equal(t, []string{"a", "b"}, loop.Targets)
	})

	t.Run("subscript target falls back to raw", func(t *testing.T) {
		mod := parseSnippet(t, "for d[0] in xs:\n    pass\n")

		raw, ok := mod.Body[0].(*m.RawStmt)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(raw.Text, "for d[0]"))
	})
}

func TestParseAssignments(t *testing.T) {
	t.Run("simple assign", func(t *testing.T) {
		mod := parseSnippet(t, "x = 1\n")

		assign, ok := mod.Body[0].(*m.Assign)
		require.True(t, ok)
		require.Len(t, assign.Targets, 1)
		assert.False(t, assign.SharesLine)
		assert.IsType(t, &m.Int{}, assign.Value)
	})

	t.Run("tuple value", func(t *testing.T) {
		mod := parseSnippet(t, "x = 1, 2\n")

		assign, ok := mod.Body[0].(*m.Assign)
		require.True(t, ok)

		tup, ok := assign.Value.(*m.Tuple)
		require.True(t, ok)
		assert.Len(t, tup.Elts, 2)
	})

	t.Run("chained assign", func(t *testing.T) {
		mod := parseSnippet(t, "a = b = 1\n")

		assign, ok := mod.Body[0].(*m.Assign)
		require.True(t, ok)
		assert.Len(t, assign.Targets, 2)
	})

	t.Run("annotated assign", func(t *testing.T) {
		mod := parseSnippet(t, "count: int = 0\n")

		ann, ok := mod.Body[0].(*m.AnnAssign)
		require.True(t, ok)

		target, ok := ann.Target.(*m.Name)
		require.True(t, ok)
		assert.Equal(t, "count", target.ID)
		assert.IsType(t, &m.Int{}, ann.Value)
	})

	t.Run("augmented assign", func(t *testing.T) {
		mod := parseSnippet(t, "total += 5\n")

		aug, ok := mod.Body[0].(*m.AugAssign)
		require.True(t, ok)
		assert.Equal(t, "+=", aug.Op)
	})

	t.Run("semicolon statements share a line", func(t *testing.T) {
		mod := parseSnippet(t, "a = 1; b = 2\n")

		require.Len(t, mod.Body, 2)
		for _, stmt := range mod.Body {
			assign, ok := stmt.(*m.Assign)
			require.True(t, ok)
			assert.True(t, assign.SharesLine)
		}
	})
}

func TestParseMultilineLiteral(t *testing.T) {
	src := `cases = [
    (1, "one"),
    (2, "two"),
]
`
	mod := parseSnippet(t, src)

	assign, ok := mod.Body[0].(*m.Assign)
	require.True(t, ok)
	assert.Equal(t, 1, assign.Line())
	assert.Equal(t, 4, assign.EndLine())

	list, ok := assign.Value.(*m.List)
	require.True(t, ok)
	require.Len(t, list.Elts, 2)

	pair, ok := list.Elts[0].(*m.Tuple)
	require.True(t, ok)
	require.Len(t, pair.Elts, 2)
	assert.IsType(t, &m.Int{}, pair.Elts[0])
	assert.IsType(t, &m.Str{}, pair.Elts[1])
}

func TestParseLiterals(t *testing.T) {
	t.Run("dict", func(t *testing.T) {
		mod := parseSnippet(t, `d = {"a": 1, "b": 2}`+"\n")

		assign := mod.Body[0].(*m.Assign)
		dict, ok := assign.Value.(*m.Dict)
		require.True(t, ok)
		assert.Len(t, dict.Keys, 2)
		assert.Len(t, dict.Values, 2)
	})

	t.Run("set", func(t *testing.T) {
		mod := parseSnippet(t, "s = {1, 2, 3}\n")

		assign := mod.Body[0].(*m.Assign)
		set, ok := assign.Value.(*m.Set)
		require.True(t, ok)
		assert.Len(t, set.Elts, 3)
	})

	t.Run("booleans and none", func(t *testing.T) {
		mod := parseSnippet(t, "flags = [True, False, None]\n")

		assign := mod.Body[0].(*m.Assign)
		list := assign.Value.(*m.List)
		require.Len(t, list.Elts, 3)
		assert.IsType(t, &m.Bool{}, list.Elts[0])
		assert.IsType(t, &m.Bool{}, list.Elts[1])
		assert.IsType(t, &m.None{}, list.Elts[2])
	})

	t.Run("implicit string concatenation", func(t *testing.T) {
		mod := parseSnippet(t, `s = "a" "b"`+"\n")

		assign := mod.Body[0].(*m.Assign)
		str, ok := assign.Value.(*m.Str)
		require.True(t, ok)
		assert.Equal(t, `"a" "b"`, str.Raw)
	})

	t.Run("float and int classification", func(t *testing.T) {
		mod := parseSnippet(t, "values = [1, 2.5, 0xFF, 1e3]\n")

		assign := mod.Body[0].(*m.Assign)
		list := assign.Value.(*m.List)
		require.Len(t, list.Elts, 4)
		assert.IsType(t, &m.Int{}, list.Elts[0])
		assert.IsType(t, &m.Float{}, list.Elts[1])
		assert.IsType(t, &m.Int{}, list.Elts[2])
		assert.IsType(t, &m.Float{}, list.Elts[3])
	})
}

func TestParseRawFallbacks(t *testing.T) {
	t.Run("f-string", func(t *testing.T) {
		mod := parseSnippet(t, `s = f"{x}"`+"\n")

		assign := mod.Body[0].(*m.Assign)
		raw, ok := assign.Value.(*m.RawExpr)
		require.True(t, ok)
		assert.Equal(t, `f"{x}"`, raw.Text)
	})

	t.Run("subscript folds the chain", func(t *testing.T) {
		mod := parseSnippet(t, "y = d[0]\n")

		assign := mod.Body[0].(*m.Assign)
		raw, ok := assign.Value.(*m.RawExpr)
		require.True(t, ok)
		assert.Equal(t, "d[0]", raw.Text)
	})

	t.Run("generator call argument", func(t *testing.T) {
		mod := parseSnippet(t, "total = sum(x for x in xs)\n")

		assign := mod.Body[0].(*m.Assign)
		call, ok := assign.Value.(*m.Call)
		require.True(t, ok)
		require.Len(t, call.Args, 1)
		assert.IsType(t, &m.RawExpr{}, call.Args[0])
	})

	t.Run("starred list element", func(t *testing.T) {
		mod := parseSnippet(t, "xs = [*a, 1]\n")

		assign := mod.Body[0].(*m.Assign)
		raw, ok := assign.Value.(*m.RawExpr)
		require.True(t, ok)
		assert.Equal(t, "[*a, 1]", raw.Text)
	})

	t.Run("if block becomes one raw statement", func(t *testing.T) {
		src := `if cond:
    y = 1
z = 2
`
		mod := parseSnippet(t, src)

		require.Len(t, mod.Body, 2)

		raw, ok := mod.Body[0].(*m.RawStmt)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(raw.Text, "if cond:"))
		assert.Contains(t, raw.Text, "y = 1")
		assert.Equal(t, 1, raw.Line())
		assert.Equal(t, 2, raw.EndLine())

		assert.IsType(t, &m.Assign{}, mod.Body[1])
	})

	t.Run("return statement", func(t *testing.T) {
		mod := parseSnippet(t, "def f():\n    return 1 + 2\n")

		fn := mod.Body[0].(*m.FunctionDef)
		require.Len(t, fn.Body, 1)

		raw, ok := fn.Body[0].(*m.RawStmt)
		require.True(t, ok)
		assert.Equal(t, "return 1 + 2", raw.Text)
	})
}

func TestParseExpressions(t *testing.T) {
	t.Run("binary precedence", func(t *testing.T) {
		mod := parseSnippet(t, "x = 1 + 2 * 3\n")

		assign := mod.Body[0].(*m.Assign)
		add, ok := assign.Value.(*m.BinaryOp)
		require.True(t, ok)
		assert.Equal(t, "+", add.Op)

		mul, ok := add.Right.(*m.BinaryOp)
		require.True(t, ok)
		assert.Equal(t, "*", mul.Op)
	})

	t.Run("unary minus", func(t *testing.T) {
		mod := parseSnippet(t, "x = -1\n")

		assign := mod.Body[0].(*m.Assign)
		neg, ok := assign.Value.(*m.UnaryOp)
		require.True(t, ok)
		assert.Equal(t, "-", neg.Op)
		assert.IsType(t, &m.Int{}, neg.Operand)
	})

	t.Run("comparison keywords", func(t *testing.T) {
		mod := parseSnippet(t, "ok = a is not None\n")

		assign := mod.Body[0].(*m.Assign)
		cmp, ok := assign.Value.(*m.BinaryOp)
		require.True(t, ok)
		assert.Equal(t, "is not", cmp.Op)
	})

	t.Run("nested call with keywords", func(t *testing.T) {
		mod := parseSnippet(t, "r = compute(a, b, scale=2)\n")

		assign := mod.Body[0].(*m.Assign)
		call, ok := assign.Value.(*m.Call)
		require.True(t, ok)
		assert.Len(t, call.Args, 2)
		require.Len(t, call.Keywords, 1)
		assert.Equal(t, "scale", call.Keywords[0].Name)
	})

	t.Run("attribute chain", func(t *testing.T) {
		mod := parseSnippet(t, "v = obj.field.method()\n")

		assign := mod.Body[0].(*m.Assign)
		call, ok := assign.Value.(*m.Call)
		require.True(t, ok)

		attr, ok := call.Func.(*m.Attribute)
		require.True(t, ok)
		assert.Equal(t, "method", attr.Attr)
	})
}

func TestParseDecoratedFunction(t *testing.T) {
	src := `@staticmethod
@pytest.mark.slow
def helper():
    pass
`
	mod := parseSnippet(t, src)

	fn, ok := mod.Body[0].(*m.FunctionDef)
	require.True(t, ok)
	assert.Len(t, fn.Decorators, 2)
	assert.Equal(t, 1, fn.Line())
	assert.Equal(t, 3, fn.DefLine)
}

func TestParseAsyncDef(t *testing.T) {
	mod := parseSnippet(t, "async def fetch(url):\n    pass\n")

	fn, ok := mod.Body[0].(*m.FunctionDef)
	require.True(t, ok)
	assert.Equal(t, "fetch", fn.Name)
	assert.Equal(t, []string{"url"}, fn.Params)
}

func TestParseParamsSkipAnnotationsAndDefaults(t *testing.T) {
	mod := parseSnippet(t, "def f(self, x: int = 3, *args, **kwargs):\n    pass\n")

	fn, ok := mod.Body[0].(*m.FunctionDef)
	require.True(t, ok)
	assert.Equal(t, []string{"self", "x", "args", "kwargs"}, fn.Params)
}

func TestParseRangeIterable(t *testing.T) {
	mod := parseSnippet(t, "for i in range(5):\n    pass\n")

	loop := mod.Body[0].(*m.For)
	call, ok := loop.Iter.(*m.Call)
	require.True(t, ok)

	fn, ok := call.Func.(*m.Name)
	require.True(t, ok)
	assert.Equal(t, "range", fn.ID)
	require.Len(t, call.Args, 1)
}

func TestParseDictItemsIterable(t *testing.T) {
	mod := parseSnippet(t, "for key, value in cases.items():\n    pass\n")

	loop := mod.Body[0].(*m.For)
	assert.Equal(t, []string{"key", "value"}, loop.Targets)

	call, ok := loop.Iter.(*m.Call)
	require.True(t, ok)

	attr, ok := call.Func.(*m.Attribute)
	require.True(t, ok)
	assert.Equal(t, "items", attr.Attr)
}

func TestParseModuleNeverFails(t *testing.T) {
	// Garbled input degrades to raw statements instead of panicking.
	sources := []string{
		"def (:\n",
		"for in in in:\n",
		"x = = 1\n",
		"@@@\n",
		"))) (((\n",
		"class : pass\n",
	}

	for _, src := range sources {
		mod := parseModule("garbled", []byte(src))
		require.NotNil(t, mod)
	}
}

func TestParseModuleSpans(t *testing.T) {
	src := `import unittest


class TestThings(unittest.TestCase):

    def test_one(self):
        for n in (1, 2):
            with self.subTest(n=n):
                self.assertEqual(n, n)
`
	mod := parseSnippet(t, src)

	require.Len(t, mod.Body, 2)

	cls := mod.Body[1].(*m.ClassDef)
	assert.Equal(t, 4, cls.Line())
	assert.Equal(t, 9, cls.EndLine())

	fn := cls.Body[0].(*m.FunctionDef)
	assert.Equal(t, 6, fn.DefLine)

	loop := fn.Body[0].(*m.For)
	assert.Equal(t, 7, loop.Line())
	assert.Equal(t, 9, loop.EndLine())

	tup, ok := loop.Iter.(*m.Tuple)
	require.True(t, ok)
	assert.Len(t, tup.Elts, 2)
}
