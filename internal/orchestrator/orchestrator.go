// Package orchestrator ties the board, scheduler, lifecycle engine,
// worker pool, conflict queue, resume controller, and event bus together
// into the single per-project driver loop described in spec.md §2 and §5:
// each tick reads ready tasks off the board, admits new workers up to the
// configured concurrency caps, drives every live worker's pipeline one
// step at a time, and feeds pipeline/resume outcomes back into the
// lifecycle engine.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/ralphorchestrator/ralph/internal/agent"
	"github.com/ralphorchestrator/ralph/internal/board"
	"github.com/ralphorchestrator/ralph/internal/conflict"
	"github.com/ralphorchestrator/ralph/internal/config"
	"github.com/ralphorchestrator/ralph/internal/eventbus"
	"github.com/ralphorchestrator/ralph/internal/git"
	"github.com/ralphorchestrator/ralph/internal/lifecycle"
	"github.com/ralphorchestrator/ralph/internal/pipeline"
	"github.com/ralphorchestrator/ralph/internal/resume"
	"github.com/ralphorchestrator/ralph/internal/scheduler"
	"github.com/ralphorchestrator/ralph/internal/workerpool"
)

// runningStateResetEvents maps a lifecycle running state's name to the
// synthetic crash-recovery event it receives at startup (spec.md §4.C).
var runningStateResetEvents = map[string]string{
	"fixing":    "startup.reset",
	"merging":   "startup.reset",
	"resolving": "resolve.startup_reset",
}

// Orchestrator holds every collaborator a tick needs: the ready-task
// scheduler, the worker pool, the lifecycle engine, the conflict queue, the
// resume controller, and the event bus, plus the git/agent runtime used to
// spawn and drive workers.
type Orchestrator struct {
	cfg    *config.OrchestratorConfig
	logger *log.Logger

	bus        *eventbus.Bus
	pool       *workerpool.Pool
	queue      *conflict.Queue
	sched      *scheduler.Scheduler
	readySince *scheduler.ReadySince
	life       *lifecycle.Engine
	lifeSpec   *lifecycle.Spec

	pipelineCfg *pipeline.Config
	runAgent    pipeline.AgentRunner

	git *git.GitClient

	// spawnMainWorker implements the spec.md §4.E spawn protocol. New wires
	// this to defaultSpawnMainWorker (spawn.go); tests override it directly
	// with a fake to exercise admission/drive without a real git worktree.
	spawnMainWorker workerpool.SpawnFunc
}

// Options carries the constructed collaborators an Orchestrator needs.
// Tests construct one directly with fakes; CLI commands use New to build a
// production instance from a resolved config.
type Options struct {
	Config      *config.OrchestratorConfig
	Logger      *log.Logger
	Bus         *eventbus.Bus
	Pool        *workerpool.Pool
	Queue       *conflict.Queue
	Scheduler   *scheduler.Scheduler
	ReadySince  *scheduler.ReadySince
	Lifecycle   *lifecycle.Engine
	LifeSpec    *lifecycle.Spec
	PipelineCfg *pipeline.Config
	RunAgent    pipeline.AgentRunner
	Git         *git.GitClient
}

// New wires every spec-core package from a resolved project config and
// agent registry: it opens the event bus, worker pool index, and conflict
// queue, loads the lifecycle spec and pipeline config from disk, and
// constructs the scheduler and the agent-runner adapter
// (pipeline.NewAgentRunner).
func New(cfg *config.OrchestratorConfig, agents *agent.Registry, gitClient *git.GitClient, logger *log.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = log.Default()
	}

	bus, err := eventbus.Open(cfg.EventsLogFile)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: opening event bus: %w", err)
	}

	pool, err := workerpool.Open(cfg.PoolIndexFile)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: opening worker pool: %w", err)
	}

	queue, err := conflict.Open(cfg.QueueFile)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: opening conflict queue: %w", err)
	}
	queue.SetIgnoreGlobs(cfg.IgnoreGlobs)

	lifeSpec, err := lifecycle.LoadSpecFile(cfg.LifecycleSpecFile)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: loading lifecycle spec: %w", err)
	}

	readySince := scheduler.NewReadySince()
	sched := scheduler.New(cfg.KanbanFile, scheduler.Options{
		PlanExists: func(taskID string) bool {
			_, statErr := os.Stat(filepath.Join(cfg.PlansDir, taskID+".md"))
			return statErr == nil
		},
		Excluded: func(taskID string) bool {
			return resumeExcluded(cfg.WorkersDir, "worker-"+taskID)
		},
	}, readySince)

	registrar := conflictRegistrar{queue: queue}
	builtinDeps := lifecycle.BuiltinDeps{
		BoardPath: cfg.KanbanFile,
		Conflict:  registrar,
		CleanupWorktree: func(workerID string) error {
			return gitClient.RemoveWorktree(context.Background(), filepath.Join(cfg.WorkersDir, workerID, "workspace"), true)
		},
		CleanupBatch: func(string) error { return nil },
		ReleaseClaim: func(workerID string) error {
			return releaseWorkerClaim(pool, workerID)
		},
		SyncGitHub: func(*lifecycle.WorkerState) error { return nil },
	}
	registry := lifecycle.NewBuiltinRegistry(builtinDeps)
	lifeEngine, err := lifecycle.Load(lifeSpec, registry, bus, logger)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: loading lifecycle engine: %w", err)
	}

	pipelineCfg, err := pipeline.LoadConfig(cfg.PipelineConfigFile)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: loading pipeline config: %w", err)
	}

	o := &Orchestrator{
		cfg:         cfg,
		logger:      logger,
		bus:         bus,
		pool:        pool,
		queue:       queue,
		sched:       sched,
		readySince:  readySince,
		life:        lifeEngine,
		lifeSpec:    lifeSpec,
		pipelineCfg: pipelineCfg,
		runAgent:    pipeline.NewAgentRunner(agents, pipeline.DefaultPrompt),
		git:         gitClient,
	}
	o.spawnMainWorker = o.defaultSpawnMainWorker
	return o, nil
}

// NewFromOptions builds an Orchestrator directly from pre-constructed
// collaborators, used by tests and by callers that need custom fakes for
// one or more of the six spec-core packages.
func NewFromOptions(opts Options) *Orchestrator {
	o := &Orchestrator{
		cfg:         opts.Config,
		logger:      opts.Logger,
		bus:         opts.Bus,
		pool:        opts.Pool,
		queue:       opts.Queue,
		sched:       opts.Scheduler,
		readySince:  opts.ReadySince,
		life:        opts.Lifecycle,
		lifeSpec:    opts.LifeSpec,
		pipelineCfg: opts.PipelineCfg,
		runAgent:    opts.RunAgent,
		git:         opts.Git,
	}
	o.spawnMainWorker = o.defaultSpawnMainWorker
	return o
}

// resumeExcluded reports whether workerID's resume-state (if any exists on
// disk yet) makes it unschedulable right now per resume.State.Schedulable:
// terminal, cooling down, or out of attempt budget. A worker with no
// resume-state file yet has never aborted and is always schedulable.
func resumeExcluded(workersDir, workerID string) bool {
	path := filepath.Join(workersDir, workerID, "resume-state.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false
	}
	rs, err := resume.Load(path, workerID, resume.DefaultMaxAttempts)
	if err != nil {
		return false
	}
	return !rs.Schedulable(time.Now())
}

// conflictRegistrar adapts *conflict.Queue to lifecycle.ConflictRegistrar.
type conflictRegistrar struct{ queue *conflict.Queue }

func (r conflictRegistrar) Add(taskID, workerDir string, prNumber int, changedFiles []string) error {
	return r.queue.Add(taskID, workerDir, prNumber, changedFiles)
}
func (r conflictRegistrar) Remove(taskID string) error { return r.queue.Remove(taskID) }

// releaseWorkerClaim removes workerID's PID entry (if it still holds one)
// from the worker pool, idempotently (lifecycle effects must tolerate
// replay).
func releaseWorkerClaim(pool *workerpool.Pool, workerID string) error {
	var found bool
	var pid int
	pool.ForEach("", func(e workerpool.Entry) {
		if e.TaskID == taskIDFromWorkerID(workerID) && !found {
			found = true
			pid = e.PID
		}
	})
	if !found {
		return nil
	}
	return pool.Remove(pid)
}

// StartupReset drives the running-state crash recovery pass spec.md §4.C
// requires: every worker whose persisted lifecycle state is "running" is
// reset to its "needs_*" predecessor before the first tick runs. It then
// repopulates the worker pool with every still-in-progress task's worker,
// since workerpool.Pool's on-disk index only ever tracks this orchestrator's
// own synthetic worker-slot bookkeeping (spec.md §5 §9: a single cooperative
// process, no real per-worker OS process to probe liveness against) and so
// is always empty immediately after a restart.
func (o *Orchestrator) StartupReset(ctx context.Context) error {
	entries, err := os.ReadDir(o.cfg.WorkersDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("orchestrator: listing workers dir: %w", err)
	}

	inProgress := map[string]bool{}
	if tasks, boardErr := loadInProgressTaskIDs(o.cfg.KanbanFile); boardErr == nil {
		inProgress = tasks
	} else {
		o.logger.Warn("orchestrator: failed reading kanban for startup reset", "error", boardErr)
	}

	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		workerID := ent.Name()
		statePath := filepath.Join(o.cfg.WorkersDir, workerID, "lifecycle-state.json")
		ws, err := lifecycle.LoadWorkerState(statePath, workerID, "none")
		if err != nil {
			o.logger.Warn("orchestrator: failed loading worker state for startup reset", "worker", workerID, "error", err)
			continue
		}
		updated, err := o.life.StartupReset(ws, func(state string) string { return runningStateResetEvents[state] })
		if err != nil {
			o.logger.Warn("orchestrator: startup reset failed", "worker", workerID, "error", err)
			continue
		}
		if err := lifecycle.SaveWorkerState(statePath, updated); err != nil {
			o.logger.Warn("orchestrator: failed saving reset worker state", "worker", workerID, "error", err)
		}

		taskID := taskIDFromWorkerID(workerID)
		if taskID != "" && inProgress[taskID] {
			if _, running := o.pool.FindByTask(taskID); !running {
				if err := o.pool.Add(newSyntheticPID(), workerpool.KindMain, taskID); err != nil {
					o.logger.Warn("orchestrator: failed re-admitting in-progress worker", "task", taskID, "error", err)
				}
			}
		}
	}
	return nil
}

// taskIDFromWorkerID inverts workerIDFor's "worker-<task-id>" shape.
func taskIDFromWorkerID(workerID string) string {
	const prefix = "worker-"
	if len(workerID) <= len(prefix) || workerID[:len(prefix)] != prefix {
		return ""
	}
	return workerID[len(prefix):]
}

func loadInProgressTaskIDs(kanbanPath string) (map[string]bool, error) {
	tasks, err := board.ParseAll(kanbanPath)
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, t := range tasks {
		if t.Status == board.StatusInProgress {
			out[t.ID] = true
		}
	}
	return out, nil
}

// Tick runs one full scheduling pass (spec.md §5): drive every live worker
// one pipeline iteration, feeding each worker's outcome back through the
// lifecycle engine and, on an aborted pipeline, the resume controller, then
// admit newly-ready tasks up to the main-worker concurrency cap. A worker
// admitted in this pass is first driven on the next tick.
func (o *Orchestrator) Tick(ctx context.Context) error {
	if err := o.driveWorkers(ctx); err != nil {
		return err
	}
	if o.Paused() {
		return nil
	}
	return o.admitReady(ctx)
}

// admitReady spawns new main workers for the highest-ranked ready tasks
// until either the ready queue or the main-worker capacity is exhausted.
func (o *Orchestrator) admitReady(ctx context.Context) error {
	if !o.pool.HasCapacity(workerpool.KindMain, o.cfg.MaxMainWorkers) {
		return nil
	}
	ranked, err := o.sched.ReadyTasks()
	if err != nil {
		return fmt.Errorf("orchestrator: computing ready tasks: %w", err)
	}

	var admit []string
	for _, r := range ranked {
		if !o.pool.HasCapacity(workerpool.KindMain, o.cfg.MaxMainWorkers) {
			break
		}
		if _, running := o.pool.FindByTask(r.TaskID); running {
			continue
		}
		admit = append(admit, r.TaskID)
	}
	if len(admit) == 0 {
		return nil
	}

	_, err = o.pool.AdmitBatch(ctx, admit, workerpool.KindMain, o.cfg.MaxMainWorkers, o.spawnMainWorker)
	if err != nil {
		return fmt.Errorf("orchestrator: admitting workers: %w", err)
	}
	for _, taskID := range admit {
		o.readySince.Reset(taskID)
		o.bus.Emit("worker.spawned", map[string]any{"task_id": taskID})
	}
	return nil
}

// driveWorkers runs every live main worker's pipeline concurrently (spec.md
// §5: "Agent invocations are parallel child processes, one per active
// worker"), bounded by the same main-worker concurrency cap admission
// enforces. A single worker's failure is logged and never aborts its
// siblings' ticks.
func (o *Orchestrator) driveWorkers(ctx context.Context) error {
	var tasks []string
	o.pool.ForEach(workerpool.KindMain, func(e workerpool.Entry) {
		tasks = append(tasks, e.TaskID)
	})
	if len(tasks) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, o.cfg.MaxMainWorkers))
	for _, taskID := range tasks {
		taskID := taskID
		g.Go(func() error {
			if err := o.driveOne(gctx, taskID); err != nil {
				o.logger.Error("orchestrator: worker tick failed", "task", taskID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) workerDir(taskID string) string {
	return filepath.Join(o.cfg.WorkersDir, o.workerIDFor(taskID))
}

// workerIDFor derives the on-disk worker ID ("worker-<task-id>") for
// taskID; lifecycle.taskIDOf inverts this exact shape.
func (o *Orchestrator) workerIDFor(taskID string) string {
	return "worker-" + taskID
}

func (o *Orchestrator) driveOne(ctx context.Context, taskID string) error {
	workerID := o.workerIDFor(taskID)
	workerDir := o.workerDir(taskID)
	statePath := filepath.Join(workerDir, "lifecycle-state.json")

	checkpointDir := filepath.Join(workerDir, "checkpoints")
	resumeFrom := latestCheckpointStep(checkpointDir)

	engine := pipeline.New(o.pipelineCfg, workerDir, o.runAgent, o.bus, o.logger)
	cp, err := engine.Run(ctx, resumeFrom)
	if err != nil {
		return o.handleAbort(ctx, taskID, workerID, statePath, err)
	}
	if cp == nil || !cp.Done {
		return nil
	}

	ws, err := lifecycle.LoadWorkerState(statePath, workerID, "none")
	if err != nil {
		return err
	}
	ws, err = o.life.Emit(ws, "pipeline.completed", lifecycle.Payload{"task_id": taskID})
	if err != nil {
		return err
	}
	return lifecycle.SaveWorkerState(statePath, ws)
}

// handleAbort runs the resume controller's decision table (spec.md §4.G)
// against a pipeline that returned an error (an abort), then applies that
// decision to the worker's resume-state and, for RETRY, leaves it ready to
// be picked up by the next tick.
func (o *Orchestrator) handleAbort(ctx context.Context, taskID, workerID, statePath string, pipelineErr error) error {
	resumeStatePath := filepath.Join(o.workerDir(taskID), "resume-state.json")
	rs, err := resume.Load(resumeStatePath, workerID, resume.DefaultMaxAttempts)
	if err != nil {
		return err
	}

	decision, reason := judgeAbort(rs, pipelineErr)
	if err := rs.Apply(decision, o.pipelineCfg.Name, "", reason, time.Now(), resume.NewCooldownBackOff()); err != nil {
		return err
	}
	if err := resume.Save(resumeStatePath, rs); err != nil {
		return err
	}

	o.bus.Emit("resume.decision", map[string]any{"task_id": taskID, "decision": string(decision), "reason": reason})

	if decision == resume.DecisionAbort {
		ws, wsErr := lifecycle.LoadWorkerState(statePath, workerID, "none")
		if wsErr != nil {
			return wsErr
		}
		ws, wsErr = o.life.Emit(ws, "resume.abort", lifecycle.Payload{"task_id": taskID, "error": reason})
		if wsErr != nil {
			return wsErr
		}
		return lifecycle.SaveWorkerState(statePath, ws)
	}
	return nil
}

// judgeAbort decides a resume.Decision for a failed pipeline run. A real
// deployment delegates this judgment to an external agent (spec.md §4.G);
// absent one, exhausting the resume-state's own attempt budget is what
// distinguishes a retryable failure from a terminal one.
func judgeAbort(rs *resume.State, pipelineErr error) (resume.Decision, string) {
	d := resume.FromExitCode(1, rs.AttemptCount, rs.MaxAttempts)
	return d, pipelineErr.Error()
}

// latestCheckpointStep reads every checkpoint-<n>.json in dir and returns
// the NextStep recorded on the highest-N checkpoint, so a worker resumed
// after an orchestrator crash restarts its pipeline at the step that would
// have run next rather than replaying from the first step (spec.md §4.D
// point 8, §6). It returns "" when there is no checkpoint yet, or when the
// latest checkpoint is terminal (Done or Aborted) — callers must not resume
// a worker whose pipeline already reached a terminal checkpoint.
func latestCheckpointStep(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		return ""
	}
	var best pipeline.Checkpoint
	found := false
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		data, readErr := os.ReadFile(filepath.Join(dir, ent.Name()))
		if readErr != nil {
			continue
		}
		var cp pipeline.Checkpoint
		if jsonErr := json.Unmarshal(data, &cp); jsonErr != nil {
			continue
		}
		if !found || cp.N > best.N {
			best = cp
			found = true
		}
	}
	if !found || best.Done || best.Aborted {
		return ""
	}
	return best.NextStep
}

// Bus exposes the event bus for callers (CLI commands) that need to query
// or append events outside the tick loop.
func (o *Orchestrator) Bus() *eventbus.Bus { return o.bus }

// Pool exposes the worker pool for inspection commands.
func (o *Orchestrator) Pool() *workerpool.Pool { return o.pool }

// Queue exposes the conflict queue for inspection commands.
func (o *Orchestrator) Queue() *conflict.Queue { return o.queue }

// Scheduler exposes the scheduler for inspection commands.
func (o *Orchestrator) Scheduler() *scheduler.Scheduler { return o.sched }

// RunLoop ticks repeatedly until ctx is cancelled, sleeping interval
// between ticks.
func (o *Orchestrator) RunLoop(ctx context.Context, interval time.Duration) error {
	if err := o.StartupReset(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := o.Tick(ctx); err != nil {
			o.logger.Error("orchestrator: tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pauseFilePath is the sentinel the "stop"/"start" commands toggle to
// request a graceful pause: present means new tasks stop being admitted,
// absent means normal admission resumes. In-flight workers are always
// driven to completion regardless of pause state.
func (o *Orchestrator) pauseFilePath() string {
	return filepath.Join(o.cfg.RootDir, "control", "paused")
}

// Paused reports whether the "stop" sentinel file is present.
func (o *Orchestrator) Paused() bool {
	_, err := os.Stat(o.pauseFilePath())
	return err == nil
}

// Pause writes the sentinel file that halts new-task admission on
// subsequent ticks, implementing the "stop" command.
func (o *Orchestrator) Pause() error {
	path := o.pauseFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("orchestrator: creating control dir: %w", err)
	}
	return os.WriteFile(path, []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o644)
}

// Resume removes the "stop" sentinel file, implementing the "start" command.
func (o *Orchestrator) Resume() error {
	err := os.Remove(o.pauseFilePath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("orchestrator: removing pause sentinel: %w", err)
	}
	return nil
}
