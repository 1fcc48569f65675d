// Package controller provides output adapters for displaying analysis and
// migration results.
package controller

import (
	"context"

	m "github.com/mouse-blink/subshift/internal/model"
)

// MigrationSummary aggregates the outcome of a migrate run.
type MigrationSummary struct {
	Files        int
	Changed      int
	Parametrized int
	Subtests     int
	Untouched    int
	Fallbacks    int
	DryRun       bool
}

// UI defines the interface for displaying analysis output. Implementations
// can use different output methods (plain text, tables, machine formats).
type UI interface {
	// DisplayFiles lists the discovered test files.
	DisplayFiles(ctx context.Context, files []m.SourceFile)

	// DisplayDecisions renders the per-function strategy table along with
	// any validation warnings.
	DisplayDecisions(ctx context.Context, model *m.DecisionModel, warnings []string) error

	// DisplayStats prints the aggregate strategy counts.
	DisplayStats(ctx context.Context, stats m.DecisionStats)

	// DisplayRewrite reports the outcome of rewriting one file, including
	// the diff when the run is a dry run.
	DisplayRewrite(ctx context.Context, plan *m.RewritePlan, dryRun bool)

	// DisplayMigrationSummary prints the final migrate tallies.
	DisplayMigrationSummary(ctx context.Context, summary MigrationSummary)
}
