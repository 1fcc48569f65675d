package model

import (
	"fmt"
	"strings"
)

// Strategy is the rewrite recommendation for one test function.
type Strategy string

const (
	// StrategyParametrize rewrites the subTest loop into a
	// pytest.mark.parametrize declaration.
	StrategyParametrize Strategy = "parametrize"
	// StrategySubtests keeps the loop but moves each iteration onto the
	// pytest-subtests fixture.
	StrategySubtests Strategy = "subtests"
	// StrategyKeepLoop leaves the function untouched.
	StrategyKeepLoop Strategy = "keep-loop"
)

// IterableOrigin records where a parametrizable loop found its data.
type IterableOrigin string

const (
	// OriginLiteral means the loop header holds the container literal itself.
	OriginLiteral IterableOrigin = "literal"
	// OriginName means the loop iterates a name bound earlier in the function.
	OriginName IterableOrigin = "name"
	// OriginCall means the loop iterates a recognized constructor call (range).
	OriginCall IterableOrigin = "call"
	// OriginNone means no iterable was classified.
	OriginNone IterableOrigin = "none"
)

// FunctionProposal is the per-function decision record. It is created during
// function scanning and may be mutated in place by reconciliation, which only
// ever changes Strategy and appends Evidence.
type FunctionProposal struct {
	Name               string         `json:"name" yaml:"name"`
	Class              string         `json:"class,omitempty" yaml:"class,omitempty"`
	Strategy           Strategy       `json:"recommended_strategy" yaml:"recommended_strategy"`
	LoopVar            string         `json:"loop_var_name,omitempty" yaml:"loop_var_name,omitempty"`
	LoopVars           []string       `json:"loop_var_names,omitempty" yaml:"loop_var_names,omitempty"`
	IterableOrigin     IterableOrigin `json:"iterable_origin" yaml:"iterable_origin"`
	AccumulatorMutated bool           `json:"accumulator_mutated" yaml:"accumulator_mutated"`
	Evidence           []string       `json:"evidence" yaml:"evidence"`
	Line               int            `json:"line" yaml:"line"`

	// Loop context for the rewrite step. Unexported so serialized dumps and
	// gob-spilled records stay a plain structural snapshot.
	fn        *FunctionDef
	loop      *For
	loopIndex int
	mapSource bool
}

// AddEvidence appends a justification string, suppressing exact duplicates.
// The evidence list is append-only for the lifetime of the proposal.
func (p *FunctionProposal) AddEvidence(reason string) {
	for _, e := range p.Evidence {
		if e == reason {
			return
		}
	}

	p.Evidence = append(p.Evidence, reason)
}

// HasEvidenceContaining reports whether any evidence entry contains substr.
func (p *FunctionProposal) HasEvidenceContaining(substr string) bool {
	for _, e := range p.Evidence {
		if strings.Contains(e, substr) {
			return true
		}
	}

	return false
}

// SetLoopContext attaches the scanned loop shape used later by the rewriter.
func (p *FunctionProposal) SetLoopContext(fn *FunctionDef, loop *For, loopIndex int, mapSource bool) {
	p.fn = fn
	p.loop = loop
	p.loopIndex = loopIndex
	p.mapSource = mapSource
}

// LoopContext returns the scanned loop shape, or ok=false when the function
// had no recognized subTest loop.
func (p *FunctionProposal) LoopContext() (fn *FunctionDef, loop *For, loopIndex int, ok bool) {
	return p.fn, p.loop, p.loopIndex, p.fn != nil && p.loop != nil
}

// MapSource reports whether the loop iterates a dict-shaped expression.
func (p *FunctionProposal) MapSource() bool { return p.mapSource }

// ClassProposal owns the proposals of one class plus scanning facts about it.
// SetupMethods and Fixtures are facts, not decisions.
type ClassProposal struct {
	Name         string                       `json:"name" yaml:"name"`
	Functions    map[string]*FunctionProposal `json:"functions" yaml:"functions"`
	SetupMethods []string                     `json:"setup_methods,omitempty" yaml:"setup_methods,omitempty"`
	Fixtures     []string                     `json:"fixtures,omitempty" yaml:"fixtures,omitempty"`
	Line         int                          `json:"line" yaml:"line"`

	// Parsed class definition for the rewrite step, unexported for the same
	// reason as the function loop context.
	def *ClassDef
}

// SetClassContext attaches the parsed class definition used later by the
// rewriter to inspect bases and the class source span.
func (c *ClassProposal) SetClassContext(def *ClassDef) {
	c.def = def
}

// ClassContext returns the parsed class definition, or nil when the proposal
// was built without one.
func (c *ClassProposal) ClassContext() *ClassDef {
	return c.def
}

// AddFunction registers a function proposal under its name.
func (c *ClassProposal) AddFunction(p *FunctionProposal) {
	if c.Functions == nil {
		c.Functions = make(map[string]*FunctionProposal)
	}

	c.Functions[p.Name] = p
}

// ModuleProposal owns the class proposals of one module plus module-level
// facts (imports, literal-producing assignments, fixtures). The facts are
// context only; they never feed the per-function decision logic.
type ModuleProposal struct {
	Name        string                    `json:"name" yaml:"name"`
	Path        Path                      `json:"path" yaml:"path"`
	Classes     map[string]*ClassProposal `json:"classes" yaml:"classes"`
	Imports     []string                  `json:"imports,omitempty" yaml:"imports,omitempty"`
	Assignments []string                  `json:"assignments,omitempty" yaml:"assignments,omitempty"`
	Fixtures    []string                  `json:"fixtures,omitempty" yaml:"fixtures,omitempty"`
}

// AddClass registers a class proposal under its name.
func (m *ModuleProposal) AddClass(c *ClassProposal) {
	if m.Classes == nil {
		m.Classes = make(map[string]*ClassProposal)
	}

	m.Classes[c.Name] = c
}

// HasImport reports whether the module imports the given top-level module.
func (m *ModuleProposal) HasImport(name string) bool {
	for _, imp := range m.Imports {
		if imp == name {
			return true
		}
	}

	return false
}

// DecisionModel is the top-level serializable artifact: module name to class
// name to function name to proposal.
type DecisionModel struct {
	Modules map[string]*ModuleProposal `json:"modules" yaml:"modules"`
}

// NewDecisionModel creates an empty decision model.
func NewDecisionModel() *DecisionModel {
	return &DecisionModel{Modules: make(map[string]*ModuleProposal)}
}

// AddModule registers a module proposal under its name.
func (d *DecisionModel) AddModule(m *ModuleProposal) {
	if d.Modules == nil {
		d.Modules = make(map[string]*ModuleProposal)
	}

	d.Modules[m.Name] = m
}

// DecisionStats aggregates strategy counts across the model.
type DecisionStats struct {
	Modules     int
	Classes     int
	Functions   int
	Parametrize int
	Subtests    int
	KeepLoop    int
}

// Stats tallies the model for summary output.
func (d *DecisionModel) Stats() DecisionStats {
	stats := DecisionStats{Modules: len(d.Modules)}

	for _, mod := range d.Modules {
		stats.Classes += len(mod.Classes)

		for _, cls := range mod.Classes {
			stats.Functions += len(cls.Functions)

			for _, fn := range cls.Functions {
				switch fn.Strategy {
				case StrategyParametrize:
					stats.Parametrize++
				case StrategySubtests:
					stats.Subtests++
				case StrategyKeepLoop:
					stats.KeepLoop++
				}
			}
		}
	}

	return stats
}

// Validate returns human-readable warnings for invariant violations. It never
// repairs anything; repair is the reconciler's job, which runs earlier.
func (d *DecisionModel) Validate() []string {
	var warnings []string

	d.eachFunction(func(mod *ModuleProposal, cls *ClassProposal, fn *FunctionProposal) {
		if fn.AccumulatorMutated && fn.Strategy != StrategySubtests {
			warnings = append(warnings, fmt.Sprintf(
				"%s.%s.%s: accumulator_mutated=true but strategy is %s",
				mod.Name, cls.Name, fn.Name, fn.Strategy))
		}

		if fn.Strategy == StrategyParametrize && fn.LoopVar == "" {
			warnings = append(warnings, fmt.Sprintf(
				"%s.%s.%s: parametrize strategy without a loop variable",
				mod.Name, cls.Name, fn.Name))
		}

		if len(fn.Evidence) == 0 {
			warnings = append(warnings, fmt.Sprintf(
				"%s.%s.%s: proposal carries no evidence",
				mod.Name, cls.Name, fn.Name))
		}
	})

	return warnings
}

// DetectConflicts surfaces class-level inconsistencies that reconciliation
// should have resolved: a class mixing an accumulator-mutated function with
// parametrize siblings.
func (d *DecisionModel) DetectConflicts() []string {
	var conflicts []string

	for _, mod := range d.Modules {
		for _, cls := range mod.Classes {
			mutated := false
			parametrized := false

			for _, fn := range cls.Functions {
				if fn.AccumulatorMutated || fn.HasEvidenceContaining("mutated") {
					mutated = true
				}

				if fn.Strategy == StrategyParametrize {
					parametrized = true
				}
			}

			if mutated && parametrized {
				conflicts = append(conflicts, fmt.Sprintf(
					"%s.%s: accumulator pattern coexists with parametrize decisions",
					mod.Name, cls.Name))
			}
		}
	}

	return conflicts
}

func (d *DecisionModel) eachFunction(visit func(*ModuleProposal, *ClassProposal, *FunctionProposal)) {
	for _, mod := range d.Modules {
		for _, cls := range mod.Classes {
			for _, fn := range cls.Functions {
				visit(mod, cls, fn)
			}
		}
	}
}
