package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ralphorchestrator/ralph/internal/board"
	"github.com/ralphorchestrator/ralph/internal/conflict"
	"github.com/ralphorchestrator/ralph/internal/eventbus"
	"github.com/ralphorchestrator/ralph/internal/workerpool"
)

// MonitorSource bundles the read-only handles the monitor dashboard polls
// each tick: the kanban board, the event log, the live worker pool, and the
// conflict queue. All fields may be nil, in which case that section of the
// dashboard is simply omitted from the poll result.
type MonitorSource struct {
	BoardPath string
	Bus       *eventbus.Bus
	Pool      *workerpool.Pool
	Queue     *conflict.Queue
}

// PollResult is a snapshot of orchestrator state gathered in one poll.
type PollResult struct {
	Tasks       []*board.Task
	NewRecords  []eventbus.Record
	WorkerCount map[workerpool.Kind]int
	ConflictStats conflict.Stats
	Err         error
}

// PollMsg carries a PollResult into the Bubble Tea update loop.
type PollMsg struct {
	Result PollResult
	Since  time.Time
}

// PollCmd returns a tea.Cmd that gathers one snapshot of src's state,
// scanning the event log for records since `since`, and emits it as a
// PollMsg. The monitor command re-invokes this on every TickMsg to keep the
// dashboard live without holding a long-running subscription.
func PollCmd(src MonitorSource, since time.Time) tea.Cmd {
	return func() tea.Msg {
		var result PollResult
		now := time.Now()

		if src.BoardPath != "" {
			tasks, err := board.ParseAll(src.BoardPath)
			if err != nil {
				result.Err = err
			}
			result.Tasks = tasks
		}

		if src.Bus != nil {
			recs, err := src.Bus.Scan(eventbus.Query{Since: since})
			if err != nil && result.Err == nil {
				result.Err = err
			}
			result.NewRecords = recs
		}

		if src.Pool != nil {
			result.WorkerCount = map[workerpool.Kind]int{
				workerpool.KindMain:    src.Pool.Count(workerpool.KindMain),
				workerpool.KindFix:     src.Pool.Count(workerpool.KindFix),
				workerpool.KindResolve: src.Pool.Count(workerpool.KindResolve),
			}
		}

		if src.Queue != nil {
			result.ConflictStats = src.Queue.Stats()
		}

		return PollMsg{Result: result, Since: now}
	}
}

// eventMsgFromRecord converts one eventbus.Record into a WorkflowEventMsg:
// WorkflowID carries the record's worker_id payload field (falling back to
// task_id, then the empty string) and Event carries the raw event type, the
// same shape the event log and status bar already know how to render.
func eventMsgFromRecord(rec eventbus.Record) WorkflowEventMsg {
	id, _ := rec.Payload["worker_id"].(string)
	if id == "" {
		id, _ = rec.Payload["task_id"].(string)
	}
	detail, _ := rec.Payload["message"].(string)
	if detail == "" {
		detail, _ = rec.Payload["reason"].(string)
	}
	return WorkflowEventMsg{
		WorkflowID:   id,
		WorkflowName: id,
		Event:        rec.EventType,
		Detail:       detail,
		Timestamp:    rec.Timestamp,
	}
}

// taskProgressFromBoard summarizes tasks into one TaskProgressMsg per task
// group sharing a priority, mirroring the sidebar's phase-progress idiom but
// grouped by priority bucket instead of the teacher's numbered phases, since
// the board has no phase concept.
func taskProgressFromBoard(tasks []*board.Task) []TaskProgressMsg {
	buckets := map[board.Priority]*TaskProgressMsg{}
	order := []board.Priority{board.PriorityCritical, board.PriorityHigh, board.PriorityMedium, board.PriorityLow}
	for _, p := range order {
		buckets[p] = &TaskProgressMsg{Phase: priorityRank(p)}
	}

	for _, t := range tasks {
		b, ok := buckets[t.Priority]
		if !ok {
			continue
		}
		b.Total++
		if t.Status == board.StatusComplete || t.Status == board.StatusNotPlanned {
			b.Completed++
		}
	}

	msgs := make([]TaskProgressMsg, 0, len(order))
	for _, p := range order {
		b := buckets[p]
		if b.Total == 0 {
			continue
		}
		b.TaskTitle = string(p)
		b.Timestamp = time.Now()
		msgs = append(msgs, *b)
	}
	return msgs
}

func priorityRank(p board.Priority) int {
	switch p {
	case board.PriorityCritical:
		return 1
	case board.PriorityHigh:
		return 2
	case board.PriorityMedium:
		return 3
	default:
		return 4
	}
}
