// Package domain contains the core subTest analysis workflow and logic.
package domain

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mouse-blink/subshift/internal/adapter"
	m "github.com/mouse-blink/subshift/internal/model"
)

// Engine defines the interface for decision analysis.
type Engine interface {
	// AnalyzeFile parses one test file and builds its reconciled module
	// proposal.
	AnalyzeFile(ctx context.Context, file m.SourceFile) (m.FileDecision, error)

	// StreamDecisions analyzes files received from a channel with the given
	// number of workers. It returns a channel of decisions and a channel for
	// errors; both close when the input drains or the context is cancelled.
	StreamDecisions(ctx context.Context, files <-chan m.SourceFile, threads int) (<-chan m.FileDecision, <-chan error)
}

// engine handles pure analysis logic over parsed modules.
type engine struct {
	adapter.PythonFileAdapter
	adapter.SourceFSAdapter
}

// NewEngine creates a new Engine instance.
func NewEngine(fileAdapter adapter.PythonFileAdapter, fsAdapter adapter.SourceFSAdapter) Engine {
	return &engine{
		PythonFileAdapter: fileAdapter,
		SourceFSAdapter:   fsAdapter,
	}
}

func (e *engine) AnalyzeFile(ctx context.Context, file m.SourceFile) (m.FileDecision, error) {
	if err := validateFile(file); err != nil {
		return m.FileDecision{}, err
	}

	if err := validateAdapters(e); err != nil {
		return m.FileDecision{}, err
	}

	if err := ctx.Err(); err != nil {
		return m.FileDecision{}, err
	}

	content, err := e.ReadFile(file.FullPath)
	if err != nil {
		return m.FileDecision{}, fmt.Errorf("failed to read %s: %w", file.FullPath, err)
	}

	mod := e.Parse(string(file.FullPath), content)
	proposal := ScanModule(mod, file.FullPath)

	for _, cls := range proposal.Classes {
		ReconcileClass(cls)
	}

	slog.Debug("analyzed file",
		"path", file.ShortPath,
		"classes", len(proposal.Classes),
	)

	return m.FileDecision{Source: file, Module: proposal}, nil
}

func validateFile(file m.SourceFile) error {
	if file.FullPath == "" {
		return fmt.Errorf("missing source path")
	}

	return nil
}

func validateAdapters(e *engine) error {
	if e.PythonFileAdapter == nil || e.SourceFSAdapter == nil {
		return fmt.Errorf("missing adapters")
	}

	return nil
}

// StreamDecisions fans analysis out over a worker group. Worker count below
// one is treated as one.
func (e *engine) StreamDecisions(
	ctx context.Context, files <-chan m.SourceFile, threads int,
) (<-chan m.FileDecision, <-chan error) {
	if threads <= 0 {
		threads = 1
	}

	decisionCh := make(chan m.FileDecision, threads)
	errCh := make(chan error, 1)

	go func() {
		defer close(decisionCh)
		defer close(errCh)

		if err := validateAdapters(e); err != nil {
			errCh <- err
			return
		}

		group, groupCtx := errgroup.WithContext(ctx)

		for i := 0; i < threads; i++ {
			group.Go(func() error {
				return e.analyzeWorker(groupCtx, files, decisionCh)
			})
		}

		if err := group.Wait(); err != nil {
			errCh <- err
		}
	}()

	return decisionCh, errCh
}

func (e *engine) analyzeWorker(ctx context.Context, files <-chan m.SourceFile, out chan<- m.FileDecision) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case file, ok := <-files:
			if !ok {
				return nil
			}

			decision, err := e.AnalyzeFile(ctx, file)
			if err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- decision:
			}
		}
	}
}
