package lifecycle

import (
	"github.com/ralphorchestrator/ralph/internal/board"
)

// ConflictRegistrar is the narrow slice of the conflict queue (§4.F) the
// add_conflict_queue/rm_conflict_queue effects need. Defined here rather
// than importing internal/conflict's concrete type so this package stays
// free to be loaded before the conflict queue is constructed.
type ConflictRegistrar interface {
	Add(taskID, workerDir string, prNumber int, changedFiles []string) error
	Remove(taskID string) error
}

// BuiltinDeps wires the reference guard/effect catalog from spec.md §4.C to
// its concrete collaborators.
type BuiltinDeps struct {
	BoardPath          string
	Conflict           ConflictRegistrar
	CleanupWorktree    func(workerID string) error
	CleanupBatch       func(workerID string) error
	ReleaseClaim       func(workerID string) error
	SyncGitHub         func(ws *WorkerState) error
	MaxMergeAttempts   int
	MaxRecoveryAttempts int
}

func (d BuiltinDeps) resolve() BuiltinDeps {
	if d.MaxMergeAttempts == 0 {
		d.MaxMergeAttempts = DefaultMaxMergeAttempts
	}
	if d.MaxRecoveryAttempts == 0 {
		d.MaxRecoveryAttempts = DefaultMaxRecoveryAttempts
	}
	noop := func(string) error { return nil }
	if d.CleanupWorktree == nil {
		d.CleanupWorktree = noop
	}
	if d.CleanupBatch == nil {
		d.CleanupBatch = noop
	}
	if d.ReleaseClaim == nil {
		d.ReleaseClaim = noop
	}
	if d.SyncGitHub == nil {
		d.SyncGitHub = func(*WorkerState) error { return nil }
	}
	return d
}

// NewBuiltinRegistry constructs a Registry populated with the reference
// guard and effect catalog spec.md §4.C names: counter mutation, conflict
// queue mutation, resource cleanup, GitHub sync, error recording, and the
// permanent-failure check.
func NewBuiltinRegistry(deps BuiltinDeps) *Registry {
	deps = deps.resolve()
	r := NewRegistry()

	r.RegisterEffect("inc_merge_attempts", func(ws *WorkerState, _ Payload) error {
		ws.MergeAttempts++
		return nil
	})
	r.RegisterEffect("reset_merge", func(ws *WorkerState, _ Payload) error {
		ws.MergeAttempts = 0
		return nil
	})
	r.RegisterEffect("inc_recovery", func(ws *WorkerState, _ Payload) error {
		ws.RecoveryAttempts++
		return nil
	})

	r.RegisterEffect("add_conflict_queue", func(ws *WorkerState, payload Payload) error {
		if deps.Conflict == nil {
			return nil
		}
		prNumber, _ := payload["pr_number"].(int)
		files, _ := payload["changed_files"].([]string)
		workerDir, _ := payload["worker_dir"].(string)
		return deps.Conflict.Add(taskIDOf(ws), workerDir, prNumber, files)
	})
	r.RegisterEffect("rm_conflict_queue", func(ws *WorkerState, _ Payload) error {
		if deps.Conflict == nil {
			return nil
		}
		return deps.Conflict.Remove(taskIDOf(ws))
	})

	r.RegisterEffect("cleanup_worktree", func(ws *WorkerState, _ Payload) error {
		return deps.CleanupWorktree(ws.WorkerID)
	})
	r.RegisterEffect("cleanup_batch", func(ws *WorkerState, _ Payload) error {
		return deps.CleanupBatch(ws.WorkerID)
	})
	r.RegisterEffect("release_claim", func(ws *WorkerState, _ Payload) error {
		return deps.ReleaseClaim(ws.WorkerID)
	})

	r.RegisterEffect("sync_github", func(ws *WorkerState, _ Payload) error {
		return deps.SyncGitHub(ws)
	})

	r.RegisterEffect("set_error", func(ws *WorkerState, payload Payload) error {
		if msg, ok := payload["error"].(string); ok {
			ws.LastError = msg
		}
		return nil
	})
	r.RegisterEffect("clear_error", func(ws *WorkerState, _ Payload) error {
		ws.LastError = ""
		return nil
	})

	r.RegisterEffect("check_permanent", func(ws *WorkerState, payload Payload) error {
		if ws.RecoveryAttempts >= deps.MaxRecoveryAttempts {
			taskID, _ := payload["task_id"].(string)
			if taskID != "" && deps.BoardPath != "" {
				return board.SetStatus(deps.BoardPath, taskID, board.StatusFailed)
			}
		}
		return nil
	})

	r.RegisterGuard("merge_attempts_lt_max", func(ws *WorkerState, _ Payload) bool {
		return ws.MergeAttempts < deps.MaxMergeAttempts
	})
	r.RegisterGuard("recovery_attempts_lt_max", func(ws *WorkerState, _ Payload) bool {
		return ws.RecoveryAttempts < deps.MaxRecoveryAttempts
	})
	r.RegisterGuard("rebase_succeeded", func(ws *WorkerState, _ Payload) bool {
		return ws.RebaseSucceeded
	})

	return r
}

// taskIDOf extracts the task ID portion of a worker ID of the shape
// "worker-<task-id>-<epoch>".
func taskIDOf(ws *WorkerState) string {
	id := ws.WorkerID
	const prefix = "worker-"
	if len(id) > len(prefix) && id[:len(prefix)] == prefix {
		id = id[len(prefix):]
	}
	// Trim the trailing "-<epoch>" suffix.
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '-' {
			return id[:i]
		}
	}
	return id
}
