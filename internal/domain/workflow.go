package domain

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mouse-blink/subshift/internal/adapter"
	"github.com/mouse-blink/subshift/internal/controller"
	m "github.com/mouse-blink/subshift/internal/model"
	"github.com/mouse-blink/subshift/pkg"
)

// AnalyzeArgs contains the arguments for an analysis run.
type AnalyzeArgs struct {
	Paths     []m.Path
	Recursive bool
	Exclude   []string
	Report    m.Path
	Threads   uint
}

// MigrateArgs contains the arguments for a migration run.
type MigrateArgs struct {
	AnalyzeArgs
	DryRun bool
	Backup bool
}

// ListArgs contains the arguments for listing discovered test files.
type ListArgs struct {
	Paths     []m.Path
	Recursive bool
	Exclude   []string
}

// ViewArgs contains the arguments for viewing a saved report.
type ViewArgs struct {
	Report m.Path
}

// Workflow defines the interface for the analysis and migration workflows.
type Workflow interface {
	Analyze(ctx context.Context, args AnalyzeArgs) error
	Migrate(ctx context.Context, args MigrateArgs) error
	List(ctx context.Context, args ListArgs) error
	View(ctx context.Context, args ViewArgs) error
}

type workflow struct {
	adapter.SourceFSAdapter
	adapter.ReportStore
	controller.UI
	Engine
}

// NewWorkflow creates a new Workflow instance with the provided dependencies.
func NewWorkflow(
	fsAdapter adapter.SourceFSAdapter,
	reportStore adapter.ReportStore,
	ui controller.UI,
	engine Engine,
) Workflow {
	return &workflow{
		SourceFSAdapter: fsAdapter,
		ReportStore:     reportStore,
		UI:              ui,
		Engine:          engine,
	}
}

// Analyze scans the requested paths, builds the decision model and renders
// it. When a report path is configured the model is persisted for later
// migrate or list runs.
func (w *workflow) Analyze(ctx context.Context, args AnalyzeArgs) error {
	files, err := w.discoverAll(args.Paths, args.Recursive, args.Exclude)
	if err != nil {
		return fmt.Errorf("discover test files: %w", err)
	}

	model, err := w.collectDecisions(ctx, files, int(args.Threads))
	if err != nil {
		return fmt.Errorf("analyze sources: %w", err)
	}

	warnings := model.Validate()

	if err := w.DisplayDecisions(ctx, model, warnings); err != nil {
		return fmt.Errorf("display decisions: %w", err)
	}

	w.DisplayStats(ctx, model.Stats())

	if args.Report != "" {
		if err := w.Save(args.Report, model); err != nil {
			return fmt.Errorf("save report: %w", err)
		}

		slog.Info("saved decision report", "path", args.Report)
	}

	return nil
}

// Migrate rewrites the discovered files according to their reconciled
// strategies. Analysis runs in-process per file so the rewrite step keeps
// the parsed loop context the serialized model deliberately drops.
func (w *workflow) Migrate(ctx context.Context, args MigrateArgs) error {
	files, err := w.discoverAll(args.Paths, args.Recursive, args.Exclude)
	if err != nil {
		return fmt.Errorf("discover test files: %w", err)
	}

	plans, err := w.buildPlans(ctx, files, int(args.Threads))
	if err != nil {
		return fmt.Errorf("plan rewrites: %w", err)
	}

	summary := controller.MigrationSummary{Files: len(files), DryRun: args.DryRun}

	for _, plan := range plans {
		summary.Parametrized += plan.Parametrized
		summary.Subtests += plan.Subtests
		summary.Untouched += plan.Untouched
		summary.Fallbacks += plan.Fallbacks

		if !plan.Changed() {
			w.DisplayRewrite(ctx, plan, args.DryRun)
			continue
		}

		summary.Changed++

		if !args.DryRun {
			if err := w.applyPlan(plan, args.Backup); err != nil {
				return err
			}
		}

		w.DisplayRewrite(ctx, plan, args.DryRun)
	}

	w.DisplayMigrationSummary(ctx, summary)

	return nil
}

// List prints the test files discovery would feed into analysis.
func (w *workflow) List(ctx context.Context, args ListArgs) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	files, err := w.discoverAll(args.Paths, args.Recursive, args.Exclude)
	if err != nil {
		return fmt.Errorf("discover test files: %w", err)
	}

	w.DisplayFiles(ctx, files)

	return nil
}

// View reloads a saved decision report and renders it without re-analyzing
// any source.
func (w *workflow) View(ctx context.Context, args ViewArgs) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	model, err := w.Load(args.Report)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}

	if err := w.DisplayDecisions(ctx, model, model.Validate()); err != nil {
		return fmt.Errorf("display decisions: %w", err)
	}

	w.DisplayStats(ctx, model.Stats())

	return nil
}

func (w *workflow) discoverAll(paths []m.Path, recursive bool, exclude []string) ([]m.SourceFile, error) {
	excludes, err := compileExcludes(exclude)
	if err != nil {
		return nil, err
	}

	var (
		files []m.SourceFile
		seen  = map[m.Path]struct{}{}
	)

	for _, path := range paths {
		found, err := w.DiscoverTestFiles(path, recursive, excludes)
		if err != nil {
			return nil, err
		}

		for _, file := range found {
			if _, dup := seen[file.FullPath]; dup {
				continue
			}

			seen[file.FullPath] = struct{}{}
			files = append(files, file)
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].FullPath < files[j].FullPath
	})

	return files, nil
}

func compileExcludes(patterns []string) ([]*regexp.Regexp, error) {
	excludes := make([]*regexp.Regexp, 0, len(patterns))

	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}

		excludes = append(excludes, re)
	}

	return excludes, nil
}

// collectDecisions streams analysis over the files and assembles the model.
// Decisions are spilled to disk while streaming so very large trees do not
// hold every parsed module in memory at once.
func (w *workflow) collectDecisions(ctx context.Context, files []m.SourceFile, threads int) (*m.DecisionModel, error) {
	if threads <= 0 {
		threads = 1
	}

	spill, err := pkg.NewFileSpill[m.FileDecision]()
	if err != nil {
		return nil, fmt.Errorf("create decision spill: %w", err)
	}

	defer func() {
		_ = spill.Close()
	}()

	fileCh := make(chan m.SourceFile, threads)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer close(fileCh)

		for _, file := range files {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case fileCh <- file:
			}
		}

		return nil
	})

	decisionCh, errCh := w.StreamDecisions(groupCtx, fileCh, threads)

	group.Go(func() error {
		for {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case decision, ok := <-decisionCh:
				if !ok {
					return nil
				}

				if err := spill.Append(decision); err != nil {
					return err
				}
			}
		}
	})

	group.Go(func() error {
		select {
		case <-groupCtx.Done():
			return groupCtx.Err()
		case err, ok := <-errCh:
			if !ok || err == nil {
				return nil
			}

			return err
		}
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	model := m.NewDecisionModel()

	err = spill.Range(func(_ uint64, decision m.FileDecision) error {
		if decision.Module == nil {
			return nil
		}

		// Same module name in two directories: fall back to the path so
		// neither entry is lost.
		if _, exists := model.Modules[decision.Module.Name]; exists {
			decision.Module.Name = string(decision.Source.ShortPath)
		}

		model.AddModule(decision.Module)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return model, nil
}

// buildPlans analyzes and plans the rewrite for every file, bounded by the
// worker limit. Plans come back sorted by path for stable output.
func (w *workflow) buildPlans(ctx context.Context, files []m.SourceFile, threads int) ([]*m.RewritePlan, error) {
	if threads <= 0 {
		threads = 1
	}

	var (
		plans   []*m.RewritePlan
		plansMu sync.Mutex
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(threads)

	for _, file := range files {
		file := file
		group.Go(func() error {
			decision, err := w.AnalyzeFile(groupCtx, file)
			if err != nil {
				return err
			}

			content, err := w.ReadFile(file.FullPath)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file.FullPath, err)
			}

			plan, err := BuildRewritePlan(file, content, decision.Module)
			if err != nil {
				return fmt.Errorf("plan rewrite for %s: %w", file.ShortPath, err)
			}

			plansMu.Lock()
			plans = append(plans, plan)
			plansMu.Unlock()

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(plans, func(i, j int) bool {
		return plans[i].Source.FullPath < plans[j].Source.FullPath
	})

	return plans, nil
}

func (w *workflow) applyPlan(plan *m.RewritePlan, backup bool) error {
	if backup {
		if _, err := w.BackupFile(plan.Source.FullPath); err != nil {
			return fmt.Errorf("backup %s: %w", plan.Source.ShortPath, err)
		}
	}

	info, err := w.FileInfo(plan.Source.FullPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", plan.Source.ShortPath, err)
	}

	if err := w.WriteFile(plan.Source.FullPath, plan.Rewritten, info.Mode()); err != nil {
		return fmt.Errorf("write %s: %w", plan.Source.ShortPath, err)
	}

	return nil
}
