package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildModel(fns ...*FunctionProposal) *DecisionModel {
	cls := &ClassProposal{Name: "TestThings"}
	for _, fn := range fns {
		cls.AddFunction(fn)
	}

	mod := &ModuleProposal{Name: "test_things", Path: "test_things.py"}
	mod.AddClass(cls)

	model := NewDecisionModel()
	model.AddModule(mod)

	return model
}

func TestAddEvidenceDeduplicates(t *testing.T) {
	fn := &FunctionProposal{Name: "test_a"}

	fn.AddEvidence("literal list/tuple iterable")
	fn.AddEvidence("literal list/tuple iterable")
	fn.AddEvidence("Aligned to class consensus")

	assert.Equal(t, []string{"literal list/tuple iterable", "Aligned to class consensus"}, fn.Evidence)
}

func TestHasEvidenceContaining(t *testing.T) {
	fn := &FunctionProposal{Name: "test_a"}
	fn.AddEvidence("variable is mutated")

	assert.True(t, fn.HasEvidenceContaining("mutated"))
	assert.False(t, fn.HasEvidenceContaining("literal"))
}

func TestLoopContext(t *testing.T) {
	fn := &FunctionProposal{Name: "test_a"}

	_, _, _, ok := fn.LoopContext()
	assert.False(t, ok)

	def := &FunctionDef{Name: "test_a"}
	loop := &For{Targets: []string{"case"}}
	fn.SetLoopContext(def, loop, 2, true)

	gotFn, gotLoop, idx, ok := fn.LoopContext()
	require.True(t, ok)
	assert.Same(t, def, gotFn)
	assert.Same(t, loop, gotLoop)
	assert.Equal(t, 2, idx)
	assert.True(t, fn.MapSource())
}

func TestClassContext(t *testing.T) {
	cls := &ClassProposal{Name: "TestThings"}
	assert.Nil(t, cls.ClassContext())

	def := &ClassDef{Name: "TestThings"}
	cls.SetClassContext(def)

	assert.Same(t, def, cls.ClassContext())
}

func TestStats(t *testing.T) {
	model := buildModel(
		&FunctionProposal{Name: "test_a", Strategy: StrategyParametrize},
		&FunctionProposal{Name: "test_b", Strategy: StrategySubtests},
		&FunctionProposal{Name: "test_c", Strategy: StrategyKeepLoop},
		&FunctionProposal{Name: "test_d", Strategy: StrategyKeepLoop},
	)

	stats := model.Stats()

	assert.Equal(t, 1, stats.Modules)
	assert.Equal(t, 1, stats.Classes)
	assert.Equal(t, 4, stats.Functions)
	assert.Equal(t, 1, stats.Parametrize)
	assert.Equal(t, 1, stats.Subtests)
	assert.Equal(t, 2, stats.KeepLoop)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		fn   *FunctionProposal
		want string
	}{
		{
			name: "accumulator with non subtests strategy",
			fn: &FunctionProposal{
				Name:               "test_acc",
				Strategy:           StrategyParametrize,
				LoopVar:            "case",
				AccumulatorMutated: true,
				Evidence:           []string{"x"},
			},
			want: "accumulator_mutated=true",
		},
		{
			name: "parametrize without loop variable",
			fn: &FunctionProposal{
				Name:     "test_noloopvar",
				Strategy: StrategyParametrize,
				Evidence: []string{"x"},
			},
			want: "without a loop variable",
		},
		{
			name: "missing evidence",
			fn: &FunctionProposal{
				Name:     "test_bare",
				Strategy: StrategyKeepLoop,
			},
			want: "no evidence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := buildModel(tt.fn).Validate()

			require.Len(t, warnings, 1)
			assert.Contains(t, warnings[0], tt.want)
		})
	}

	t.Run("clean model has no warnings", func(t *testing.T) {
		model := buildModel(&FunctionProposal{
			Name:     "test_ok",
			Strategy: StrategySubtests,
			Evidence: []string{"variable is mutated"},
		})

		assert.Empty(t, model.Validate())
	})
}

func TestDetectConflicts(t *testing.T) {
	t.Run("accumulator beside parametrize", func(t *testing.T) {
		model := buildModel(
			&FunctionProposal{Name: "test_a", Strategy: StrategyParametrize, Evidence: []string{"x"}},
			&FunctionProposal{Name: "test_b", Strategy: StrategySubtests, AccumulatorMutated: true, Evidence: []string{"x"}},
		)

		conflicts := model.DetectConflicts()
		require.Len(t, conflicts, 1)
		assert.Contains(t, conflicts[0], "accumulator pattern coexists")
	})

	t.Run("no conflict when class is uniform", func(t *testing.T) {
		model := buildModel(
			&FunctionProposal{Name: "test_a", Strategy: StrategySubtests, AccumulatorMutated: true, Evidence: []string{"x"}},
			&FunctionProposal{Name: "test_b", Strategy: StrategySubtests, Evidence: []string{"x"}},
		)

		assert.Empty(t, model.DetectConflicts())
	})
}

func TestModuleHasImport(t *testing.T) {
	mod := &ModuleProposal{Name: "test_things", Imports: []string{"unittest", "pytest"}}

	assert.True(t, mod.HasImport("pytest"))
	assert.False(t, mod.HasImport("os"))
}
