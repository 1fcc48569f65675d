package domain

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouse-blink/subshift/internal/adapter"
	"github.com/mouse-blink/subshift/internal/controller"
	m "github.com/mouse-blink/subshift/internal/model"
)

// captureUI records every display call so workflow tests can assert on what
// reached the presentation layer.
type captureUI struct {
	mu        sync.Mutex
	files     [][]m.SourceFile
	models    []*m.DecisionModel
	warnings  [][]string
	stats     []m.DecisionStats
	rewrites  []*m.RewritePlan
	summaries []controller.MigrationSummary
}

func (u *captureUI) DisplayFiles(_ context.Context, files []m.SourceFile) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.files = append(u.files, files)
}

func (u *captureUI) DisplayDecisions(_ context.Context, model *m.DecisionModel, warnings []string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.models = append(u.models, model)
	u.warnings = append(u.warnings, warnings)

	return nil
}

func (u *captureUI) DisplayStats(_ context.Context, stats m.DecisionStats) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stats = append(u.stats, stats)
}

func (u *captureUI) DisplayRewrite(_ context.Context, plan *m.RewritePlan, _ bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rewrites = append(u.rewrites, plan)
}

func (u *captureUI) DisplayMigrationSummary(_ context.Context, summary controller.MigrationSummary) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.summaries = append(u.summaries, summary)
}

const workflowParametrizable = `import unittest


class TestValues(unittest.TestCase):
    def test_values(self):
        for v in [1, 2]:
            with self.subTest(v=v):
                self.assertTrue(v)
`

const workflowPlain = `import unittest


class TestPlain(unittest.TestCase):
    def test_plain(self):
        self.assertTrue(True)
`

func newTestWorkflow() (Workflow, *captureUI) {
	files := adapter.NewLocalPythonFileAdapter()
	fsAdapter := adapter.NewLocalSourceFSAdapter(files)
	ui := &captureUI{}

	return NewWorkflow(fsAdapter, adapter.NewReportStore(), ui, NewEngine(files, fsAdapter)), ui
}

func writeWorkflowTree(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "test_values.py"), []byte(workflowParametrizable), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "test_plain.py"), []byte(workflowPlain), 0o644))

	return root
}

func TestWorkflowAnalyze(t *testing.T) {
	wf, ui := newTestWorkflow()
	root := writeWorkflowTree(t)
	report := filepath.Join(t.TempDir(), "report.json")

	err := wf.Analyze(context.Background(), AnalyzeArgs{
		Paths:     []m.Path{m.Path(root)},
		Recursive: true,
		Report:    m.Path(report),
		Threads:   2,
	})
	require.NoError(t, err)

	require.Len(t, ui.models, 1)
	assert.Len(t, ui.models[0].Modules, 2)

	require.Len(t, ui.stats, 1)
	assert.Equal(t, 1, ui.stats[0].Parametrize)
	assert.Equal(t, 1, ui.stats[0].KeepLoop)

	// The saved report must round trip.
	loaded, err := adapter.NewReportStore().Load(m.Path(report))
	require.NoError(t, err)
	assert.Len(t, loaded.Modules, 2)
}

func TestWorkflowAnalyzeWithoutReport(t *testing.T) {
	wf, ui := newTestWorkflow()
	root := writeWorkflowTree(t)

	err := wf.Analyze(context.Background(), AnalyzeArgs{
		Paths:     []m.Path{m.Path(root)},
		Recursive: true,
	})
	require.NoError(t, err)
	require.Len(t, ui.models, 1)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no report file should appear")
}

func TestWorkflowAnalyzeInvalidExclude(t *testing.T) {
	wf, _ := newTestWorkflow()

	err := wf.Analyze(context.Background(), AnalyzeArgs{
		Paths:   []m.Path{m.Path(t.TempDir())},
		Exclude: []string{"[unclosed"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid exclude pattern")
}

func TestWorkflowMigrateDryRun(t *testing.T) {
	wf, ui := newTestWorkflow()
	root := writeWorkflowTree(t)
	target := filepath.Join(root, "test_values.py")

	err := wf.Migrate(context.Background(), MigrateArgs{
		AnalyzeArgs: AnalyzeArgs{
			Paths:     []m.Path{m.Path(root)},
			Recursive: true,
			Threads:   1,
		},
		DryRun: true,
	})
	require.NoError(t, err)

	// Nothing was written.
	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, workflowParametrizable, string(content))

	require.Len(t, ui.summaries, 1)
	summary := ui.summaries[0]
	assert.True(t, summary.DryRun)
	assert.Equal(t, 2, summary.Files)
	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 1, summary.Parametrized)
	assert.Equal(t, 1, summary.Untouched)

	// Both plans reach the UI, changed or not.
	assert.Len(t, ui.rewrites, 2)
}

func TestWorkflowMigrateRewritesWithBackup(t *testing.T) {
	wf, ui := newTestWorkflow()
	root := writeWorkflowTree(t)
	target := filepath.Join(root, "test_values.py")

	err := wf.Migrate(context.Background(), MigrateArgs{
		AnalyzeArgs: AnalyzeArgs{
			Paths:     []m.Path{m.Path(root)},
			Recursive: true,
			Threads:   1,
		},
		Backup: true,
	})
	require.NoError(t, err)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(content), `@pytest.mark.parametrize("v", [`)
	assert.Contains(t, string(content), "class TestValues:")
	assert.Contains(t, string(content), "assert v")
	assert.NotContains(t, string(content), "self.subTest")
	assert.NotContains(t, string(content), "unittest.TestCase")

	backup, err := os.ReadFile(target + ".bak")
	require.NoError(t, err)
	assert.Equal(t, workflowParametrizable, string(backup))

	// The untouched file got no backup.
	_, err = os.Stat(filepath.Join(root, "test_plain.py.bak"))
	assert.True(t, os.IsNotExist(err))

	require.Len(t, ui.summaries, 1)
	assert.False(t, ui.summaries[0].DryRun)
	assert.Equal(t, 1, ui.summaries[0].Changed)
}

func TestWorkflowMigrateWithoutBackup(t *testing.T) {
	wf, _ := newTestWorkflow()
	root := writeWorkflowTree(t)
	target := filepath.Join(root, "test_values.py")

	err := wf.Migrate(context.Background(), MigrateArgs{
		AnalyzeArgs: AnalyzeArgs{
			Paths:     []m.Path{m.Path(root)},
			Recursive: true,
		},
	})
	require.NoError(t, err)

	_, err = os.Stat(target + ".bak")
	assert.True(t, os.IsNotExist(err))
}

func TestWorkflowMigrateIsIdempotent(t *testing.T) {
	wf, _ := newTestWorkflow()
	root := writeWorkflowTree(t)
	target := filepath.Join(root, "test_values.py")

	args := MigrateArgs{
		AnalyzeArgs: AnalyzeArgs{
			Paths:     []m.Path{m.Path(root)},
			Recursive: true,
		},
	}

	require.NoError(t, wf.Migrate(context.Background(), args))

	first, err := os.ReadFile(target)
	require.NoError(t, err)

	require.NoError(t, wf.Migrate(context.Background(), args))

	second, err := os.ReadFile(target)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second),
		"a migrated file holds no subTest loops and must not change again")
}

func TestWorkflowList(t *testing.T) {
	wf, ui := newTestWorkflow()
	root := writeWorkflowTree(t)

	err := wf.List(context.Background(), ListArgs{
		Paths:     []m.Path{m.Path(root), m.Path(root)},
		Recursive: true,
	})
	require.NoError(t, err)

	require.Len(t, ui.files, 1)

	// The duplicate path contributes no duplicate files.
	assert.Len(t, ui.files[0], 2)
}

func TestWorkflowListWithExcludes(t *testing.T) {
	wf, ui := newTestWorkflow()
	root := writeWorkflowTree(t)

	err := wf.List(context.Background(), ListArgs{
		Paths:     []m.Path{m.Path(root)},
		Recursive: true,
		Exclude:   []string{"test_plain"},
	})
	require.NoError(t, err)

	require.Len(t, ui.files, 1)
	require.Len(t, ui.files[0], 1)
	assert.True(t, strings.HasSuffix(string(ui.files[0][0].FullPath), "test_values.py"))
}

func TestWorkflowListCancelled(t *testing.T) {
	wf, ui := newTestWorkflow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := wf.List(ctx, ListArgs{Paths: []m.Path{m.Path(t.TempDir())}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ui.files)
}

func TestWorkflowView(t *testing.T) {
	wf, ui := newTestWorkflow()
	root := writeWorkflowTree(t)
	report := filepath.Join(t.TempDir(), "report.yaml")

	require.NoError(t, wf.Analyze(context.Background(), AnalyzeArgs{
		Paths:     []m.Path{m.Path(root)},
		Recursive: true,
		Report:    m.Path(report),
	}))

	require.NoError(t, wf.View(context.Background(), ViewArgs{Report: m.Path(report)}))

	// One model from analyze, one from view, both with the same shape.
	require.Len(t, ui.models, 2)
	assert.Len(t, ui.models[1].Modules, 2)
	assert.Len(t, ui.stats, 2)
}

func TestWorkflowViewMissingReport(t *testing.T) {
	wf, _ := newTestWorkflow()

	err := wf.View(context.Background(), ViewArgs{
		Report: m.Path(filepath.Join(t.TempDir(), "missing.json")),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load report")
}
