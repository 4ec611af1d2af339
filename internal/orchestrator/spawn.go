package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ralphorchestrator/ralph/internal/board"
	"github.com/ralphorchestrator/ralph/internal/lifecycle"
)

// syntheticPIDBase separates this orchestrator's own worker-slot bookkeeping
// IDs from real OS process IDs (which on Linux never exceed ~4.2M), so a
// synthetic ID can never be mistaken for, or collide with, a live process
// the pool's isAlive liveness probe might independently observe.
const syntheticPIDBase = 1 << 30

// nextSyntheticPID hands out a monotonically increasing, process-unique
// worker-slot identifier. Workers in this architecture are driven by the
// orchestrator's own goroutines (spec.md §5: a single cooperative
// orchestrator process; only per-step *agent* invocations are separate
// child processes), so there is no real worker-level PID to track — this
// is bookkeeping for workerpool.Pool's admission-capacity accounting only.
var nextSyntheticPID int64

func newSyntheticPID() int {
	return syntheticPIDBase + int(atomic.AddInt64(&nextSyntheticPID, 1))
}

// defaultSpawnMainWorker runs the spec.md §4.E spawn protocol for taskID:
// allocate the worker directory, create its isolated git worktree on branch
// task/<task-id>-<epoch>, write the initial PRD from the kanban board, mark
// the task in-progress, and seed a fresh lifecycle-state at the spec's
// initial state. New and NewFromOptions wire this into the orchestrator's
// spawnMainWorker field, the production SpawnFunc workerpool.Pool.AdmitBatch
// calls from admitReady.
func (o *Orchestrator) defaultSpawnMainWorker(ctx context.Context, taskID string) (int, error) {
	workerID := o.workerIDFor(taskID)
	workerDir := o.workerDir(taskID)
	epoch := time.Now().Unix()
	branch := fmt.Sprintf("task/%s-%d", taskID, epoch)
	worktreePath := filepath.Join(workerDir, "workspace")

	if err := os.MkdirAll(workerDir, 0o755); err != nil {
		return 0, fmt.Errorf("orchestrator: creating worker dir for %s: %w", taskID, err)
	}

	if o.git != nil {
		if err := o.git.AddWorktree(ctx, worktreePath, branch, ""); err != nil {
			return 0, fmt.Errorf("orchestrator: spawning worktree for %s: %w", taskID, err)
		}
	}

	prd, err := board.ExtractFullTask(o.cfg.KanbanFile, taskID)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: extracting PRD for %s: %w", taskID, err)
	}
	if err := os.WriteFile(filepath.Join(workerDir, "prd.md"), []byte(prd), 0o644); err != nil {
		return 0, fmt.Errorf("orchestrator: writing PRD for %s: %w", taskID, err)
	}

	if err := board.SetStatus(o.cfg.KanbanFile, taskID, board.StatusInProgress); err != nil {
		return 0, fmt.Errorf("orchestrator: marking %s in-progress: %w", taskID, err)
	}

	statePath := filepath.Join(workerDir, "lifecycle-state.json")
	ws := lifecycle.NewWorkerState(workerID, o.initialStateName())
	if err := lifecycle.SaveWorkerState(statePath, ws); err != nil {
		return 0, fmt.Errorf("orchestrator: seeding lifecycle state for %s: %w", taskID, err)
	}

	return newSyntheticPID(), nil
}

// initialStateName returns the lifecycle spec's sole state of type
// "initial", which every freshly-spawned worker's lifecycle-state starts
// in (spec.md §3: "States keyed by name, each with a type ∈ {initial, ...}").
func (o *Orchestrator) initialStateName() string {
	for name, st := range o.lifeSpec.States {
		if st.Type == lifecycle.StateInitial {
			return name
		}
	}
	return "none"
}
