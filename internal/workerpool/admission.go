package workerpool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// SpawnFunc allocates a worker directory, creates its git worktree, writes
// the initial PRD, and returns the spawned process's PID. It is supplied by
// the caller so this package stays free of a direct git/board dependency.
type SpawnFunc func(ctx context.Context, taskID string) (pid int, err error)

// Admit runs the spawn protocol for taskID (spec.md §4.E): verify capacity,
// spawn, register in the pool, all while holding no lock across the
// (potentially slow) spawn call itself.
func (p *Pool) Admit(ctx context.Context, taskID string, kind Kind, cap int, spawn SpawnFunc) (int, error) {
	if !p.HasCapacity(kind, cap) {
		return 0, fmt.Errorf("workerpool: no capacity for kind %q (cap=%d)", kind, cap)
	}
	pid, err := spawn(ctx, taskID)
	if err != nil {
		return 0, fmt.Errorf("workerpool: spawning worker for %s: %w", taskID, err)
	}
	if err := p.Add(pid, kind, taskID); err != nil {
		return 0, err
	}
	return pid, nil
}

// AdmitBatch admits every task in taskIDs concurrently, bounded by cap
// (fewer goroutines run at once than len(taskIDs) if cap is smaller). It
// uses fail-fast errgroup semantics: the first spawn failure cancels the
// remaining ones, mirroring the corpus's N-identical-workers fan-out
// pattern for a single step's concurrent agents.
func (p *Pool) AdmitBatch(ctx context.Context, taskIDs []string, kind Kind, cap int, spawn SpawnFunc) ([]int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cap))

	pids := make([]int, len(taskIDs))
	for i, taskID := range taskIDs {
		i, taskID := i, taskID
		g.Go(func() error {
			pid, err := p.Admit(gctx, taskID, kind, cap, spawn)
			if err != nil {
				return err
			}
			pids[i] = pid
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pids, nil
}
