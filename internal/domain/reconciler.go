package domain

import (
	"log/slog"

	m "github.com/mouse-blink/subshift/internal/model"
)

// Reconcile applies the class-scoped consistency rules to every class in the
// model. It must run only after all sibling proposals of a class exist; it
// changes strategies in place and appends evidence, never removing any.
func Reconcile(model *m.DecisionModel) {
	for _, mod := range model.Modules {
		for _, cls := range mod.Classes {
			ReconcileClass(cls)
		}
	}
}

// ReconcileClass applies the reconciliation rules to one class. Rule order,
// first applicable rule wins:
//
//  1. All functions already share one strategy: nothing to change.
//  2. Accumulator safety: any function with accumulator_mutated (or
//     "mutated" evidence) forces every non-subtests sibling to subtests.
//     This dominates rule 3.
//  3. A pure {parametrize, subtests} mix is left alone: a class may hold
//     both simple and accumulator-driven tests.
//  4. Any remaining class where some function concluded subtests pulls the
//     rest of the parametrize functions down to subtests as a safety net.
func ReconcileClass(cls *m.ClassProposal) {
	if len(cls.Functions) == 0 {
		return
	}

	strategies := strategySet(cls)

	if len(strategies) == 1 {
		alignOutliers(cls)
		return
	}

	if hasAccumulator(cls) {
		forceSubtests(cls, evidenceAccumulator)

		slog.Debug("reconciled class to subtests", "class", cls.Name, "reason", "accumulator")

		return
	}

	if len(strategies) == 2 && strategies[m.StrategyParametrize] && strategies[m.StrategySubtests] {
		// Deliberate: mixed simple/accumulator-free classes keep their
		// individual decisions.
		return
	}

	if strategies[m.StrategySubtests] {
		forceParametrizeToSubtests(cls, evidenceConservative)

		slog.Debug("reconciled class to subtests", "class", cls.Name, "reason", "conservative")
	}
}

func strategySet(cls *m.ClassProposal) map[m.Strategy]bool {
	set := make(map[m.Strategy]bool)
	for _, fn := range cls.Functions {
		set[fn.Strategy] = true
	}

	return set
}

func hasAccumulator(cls *m.ClassProposal) bool {
	for _, fn := range cls.Functions {
		if fn.AccumulatorMutated || fn.HasEvidenceContaining("mutated") {
			return true
		}
	}

	return false
}

// alignOutliers is defensive normalization for the all-same case: any
// function that somehow differs from the consensus is pulled in and tagged.
func alignOutliers(cls *m.ClassProposal) {
	var consensus m.Strategy
	for _, fn := range cls.Functions {
		consensus = fn.Strategy
		break
	}

	for _, fn := range cls.Functions {
		if fn.Strategy != consensus {
			fn.Strategy = consensus
			fn.AddEvidence(evidenceConsensus)
		}
	}
}

func forceSubtests(cls *m.ClassProposal, reason string) {
	for _, fn := range cls.Functions {
		if fn.Strategy != m.StrategySubtests {
			fn.Strategy = m.StrategySubtests
			fn.AddEvidence(reason)
		}
	}
}

func forceParametrizeToSubtests(cls *m.ClassProposal, reason string) {
	for _, fn := range cls.Functions {
		if fn.Strategy == m.StrategyParametrize {
			fn.Strategy = m.StrategySubtests
			fn.AddEvidence(reason)
		}
	}
}
