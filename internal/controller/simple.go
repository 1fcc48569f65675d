package controller

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "github.com/mouse-blink/subshift/internal/model"
)

// SimpleUI implements UI using cobra Command's output stream.
type SimpleUI struct {
	cmd *cobra.Command
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

var (
	parametrizeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	subtestsStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	keepLoopStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warningStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func styleStrategy(strategy m.Strategy) string {
	switch strategy {
	case m.StrategyParametrize:
		return parametrizeStyle.Render(string(strategy))
	case m.StrategySubtests:
		return subtestsStyle.Render(string(strategy))
	case m.StrategyKeepLoop:
		return keepLoopStyle.Render(string(strategy))
	default:
		return string(strategy)
	}
}

// DisplayFiles lists the discovered test files.
func (s *SimpleUI) DisplayFiles(ctx context.Context, files []m.SourceFile) {
	if err := ctx.Err(); err != nil {
		return
	}

	for _, file := range files {
		s.printf("%s\n", file.ShortPath)
	}

	s.printf("Total test files: %d\n", len(files))
}

// DisplayDecisions renders the per-function strategy table along with any
// validation warnings.
func (s *SimpleUI) DisplayDecisions(ctx context.Context, model *m.DecisionModel, warnings []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rows := buildDecisionRows(model)
	s.printf("\n%s", renderDecisionTable(rows))

	for _, warning := range warnings {
		s.printf("%s\n", warningStyle.Render("warning: "+warning))
	}

	return nil
}

type decisionRow struct {
	module   string
	class    string
	function string
	strategy m.Strategy
	evidence string
}

func buildDecisionRows(model *m.DecisionModel) []decisionRow {
	var rows []decisionRow

	for _, mod := range model.Modules {
		for _, cls := range mod.Classes {
			for _, fn := range cls.Functions {
				rows = append(rows, decisionRow{
					module:   mod.Name,
					class:    cls.Name,
					function: fn.Name,
					strategy: fn.Strategy,
					evidence: strings.Join(fn.Evidence, "; "),
				})
			}
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].module != rows[j].module {
			return rows[i].module < rows[j].module
		}

		if rows[i].class != rows[j].class {
			return rows[i].class < rows[j].class
		}

		return rows[i].function < rows[j].function
	})

	return rows
}

func renderDecisionTable(rows []decisionRow) string {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Module", "Class", "Function", "Strategy", "Evidence"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_LEFT,
	})

	for _, row := range rows {
		table.Append([]string{
			row.module,
			row.class,
			row.function,
			styleStrategy(row.strategy),
			row.evidence,
		})
	}

	table.Render()

	return buf.String()
}

// DisplayStats prints the aggregate strategy counts.
func (s *SimpleUI) DisplayStats(ctx context.Context, stats m.DecisionStats) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf("\nModules: %d  Classes: %d  Functions: %d\n",
		stats.Modules, stats.Classes, stats.Functions)
	s.printf("%s: %d  %s: %d  %s: %d\n",
		styleStrategy(m.StrategyParametrize), stats.Parametrize,
		styleStrategy(m.StrategySubtests), stats.Subtests,
		styleStrategy(m.StrategyKeepLoop), stats.KeepLoop)
}

// DisplayRewrite reports the outcome of rewriting one file. Dry runs include
// the diff so the change can be reviewed without touching the tree.
func (s *SimpleUI) DisplayRewrite(ctx context.Context, plan *m.RewritePlan, dryRun bool) {
	if err := ctx.Err(); err != nil {
		return
	}

	if !plan.Changed() {
		s.printf("unchanged %s\n", plan.Source.ShortPath)
		return
	}

	verb := "rewrote"
	if dryRun {
		verb = "would rewrite"
	}

	s.printf("%s %s (parametrize %d, subtests %d, fallbacks %d)\n",
		verb, plan.Source.ShortPath, plan.Parametrized, plan.Subtests, plan.Fallbacks)

	if dryRun && plan.Diff != "" {
		s.printf("%s\n", plan.Diff)
	}
}

// DisplayMigrationSummary prints the final migrate tallies.
func (s *SimpleUI) DisplayMigrationSummary(ctx context.Context, summary MigrationSummary) {
	if err := ctx.Err(); err != nil {
		return
	}

	label := "Migrated"
	if summary.DryRun {
		label = "Would migrate"
	}

	s.printf("\n%s %d of %d file(s): parametrize %d, subtests %d, untouched %d",
		label, summary.Changed, summary.Files,
		summary.Parametrized, summary.Subtests, summary.Untouched)

	if summary.Fallbacks > 0 {
		s.printf(", %s", warningStyle.Render(fmt.Sprintf("fallbacks %d", summary.Fallbacks)))
	}

	s.printf("\n")
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}
