// Package scheduler computes the priority-ordered set of board tasks
// eligible to run right now, applying the effective-priority penalty
// formula on top of plain dependency readiness.
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/ralphorchestrator/ralph/internal/board"
)

// Defaults for the effective-priority formula (spec §4.B).
const (
	DefaultAgingFactor   = 7
	DefaultSiblingPenalty = 20000
	DefaultPlanBonus      = 15000
	DefaultDepBonus       = 7000
)

var basePriority = map[board.Priority]int{
	board.PriorityCritical: 0,
	board.PriorityHigh:     10000,
	board.PriorityMedium:   20000,
	board.PriorityLow:      30000,
}

// Options configures the effective-priority weights. Zero-value Options
// resolves to the spec defaults via resolve().
type Options struct {
	AgingFactor     int
	SiblingPenalty  int
	PlanBonus       int
	DepBonus        int
	// PlanExists reports whether a plan artifact exists at
	// .ralph/plans/<id>.md for the given task ID.
	PlanExists func(taskID string) bool
	// Excluded reports whether taskID's resume-state makes it
	// unschedulable right now: terminal, cooling down, or out of attempt
	// budget (spec.md §4.G, tested invariant §8.13). A nil Excluded
	// excludes nothing.
	Excluded func(taskID string) bool
}

func (o Options) resolve() Options {
	if o.AgingFactor == 0 {
		o.AgingFactor = DefaultAgingFactor
	}
	if o.SiblingPenalty == 0 {
		o.SiblingPenalty = DefaultSiblingPenalty
	}
	if o.PlanBonus == 0 {
		o.PlanBonus = DefaultPlanBonus
	}
	if o.DepBonus == 0 {
		o.DepBonus = DefaultDepBonus
	}
	if o.PlanExists == nil {
		o.PlanExists = func(string) bool { return false }
	}
	if o.Excluded == nil {
		o.Excluded = func(string) bool { return false }
	}
	return o
}

// Ranked pairs an effective priority score (lower is better) with a task ID.
type Ranked struct {
	EffectivePriority int
	TaskID            string
}

// ReadySince tracks, per task ID, the time a task first became ready so
// aging survives orchestrator restarts. It is safe for concurrent use.
type ReadySince struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewReadySince constructs an empty tracker.
func NewReadySince() *ReadySince {
	return &ReadySince{seen: map[string]time.Time{}}
}

// Touch records now as the ready-since time for id if not already tracked,
// and returns the (possibly prior) ready-since time.
func (r *ReadySince) Touch(id string, now time.Time) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.seen[id]; ok {
		return t
	}
	r.seen[id] = now
	return now
}

// Reset drops id's tracked ready-since time; called when a task transitions
// out of ready (e.g. becomes in-progress or blocked).
func (r *ReadySince) Reset(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.seen, id)
}

// Scheduler produces the ordered set of currently-runnable tasks from a
// board file, applying the effective-priority formula.
type Scheduler struct {
	boardPath  string
	opts       Options
	readySince *ReadySince
}

// New constructs a Scheduler reading from boardPath.
func New(boardPath string, opts Options, readySince *ReadySince) *Scheduler {
	if readySince == nil {
		readySince = NewReadySince()
	}
	return &Scheduler{boardPath: boardPath, opts: opts.resolve(), readySince: readySince}
}

// ReadyTasks returns every ready task ordered by ascending effective
// priority, ties broken lexicographically by task ID.
func (s *Scheduler) ReadyTasks() ([]Ranked, error) {
	tasks, err := board.ParseAll(s.boardPath)
	if err != nil {
		return nil, err
	}

	completed := map[string]bool{}
	byPrefix := map[string]int{}
	dependents := map[string]int{}
	now := time.Now()

	for _, t := range tasks {
		if t.Status == board.StatusComplete {
			completed[t.ID] = true
		}
		if t.Status == board.StatusPending || t.Status == board.StatusInProgress {
			byPrefix[prefixOf(t.ID)]++
		}
		for _, dep := range t.Dependencies {
			dependents[dep]++
		}
	}

	var ready []Ranked
	readyNow := map[string]bool{}
	for _, t := range tasks {
		if !t.IsReady(completed) {
			s.readySince.Reset(t.ID)
			continue
		}
		if s.opts.Excluded(t.ID) {
			s.readySince.Reset(t.ID)
			continue
		}
		readyNow[t.ID] = true
		since := s.readySince.Touch(t.ID, now)

		base := basePriority[t.Priority]
		age := s.opts.AgingFactor * int(now.Sub(since).Seconds())
		sib := 0
		if byPrefix[prefixOf(t.ID)] > 1 {
			sib = s.opts.SiblingPenalty
		}
		plan := 0
		if s.opts.PlanExists(t.ID) {
			plan = -s.opts.PlanBonus
		}
		dep := -s.opts.DepBonus * dependents[t.ID]

		eff := base - age + sib + plan + dep
		ready = append(ready, Ranked{EffectivePriority: eff, TaskID: t.ID})
	}

	// Forget ready-since for any previously-tracked task that's no longer ready.
	for id := range s.readySince.seen {
		if !readyNow[id] {
			s.readySince.Reset(id)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].EffectivePriority != ready[j].EffectivePriority {
			return ready[i].EffectivePriority < ready[j].EffectivePriority
		}
		return ready[i].TaskID < ready[j].TaskID
	})

	return ready, nil
}

// BlockedTasks returns the IDs of every pending task with at least one
// incomplete dependency.
func (s *Scheduler) BlockedTasks() ([]string, error) {
	tasks, err := board.ParseAll(s.boardPath)
	if err != nil {
		return nil, err
	}
	completed := map[string]bool{}
	for _, t := range tasks {
		if t.Status == board.StatusComplete {
			completed[t.ID] = true
		}
	}
	var blocked []string
	for _, t := range tasks {
		if t.Status == board.StatusPending && len(t.UnsatisfiedDeps(completed)) > 0 {
			blocked = append(blocked, t.ID)
		}
	}
	return blocked, nil
}

// UnsatisfiedDeps returns id's dependencies that are not yet complete.
func (s *Scheduler) UnsatisfiedDeps(id string) ([]string, error) {
	tasks, err := board.ParseAll(s.boardPath)
	if err != nil {
		return nil, err
	}
	completed := map[string]bool{}
	for _, t := range tasks {
		if t.Status == board.StatusComplete {
			completed[t.ID] = true
		}
	}
	for _, t := range tasks {
		if t.ID == id {
			return t.UnsatisfiedDeps(completed), nil
		}
	}
	return nil, nil
}

// Dependents returns the IDs of every task that lists id as a dependency.
func (s *Scheduler) Dependents(id string) ([]string, error) {
	tasks, err := board.ParseAll(s.boardPath)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if dep == id {
				out = append(out, t.ID)
				break
			}
		}
	}
	return out, nil
}

func prefixOf(id string) string {
	for i, r := range id {
		if r == '-' {
			return id[:i]
		}
	}
	return id
}
