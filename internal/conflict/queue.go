// Package conflict implements the conflict queue (§4.F): registering
// workers whose changed files overlap and grouping them into batches for
// coordinated multi-PR resolution.
package conflict

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// BatchStatus is one of the lifecycle states a batch moves through.
type BatchStatus string

const (
	BatchQueued    BatchStatus = "queued"
	BatchPlanning  BatchStatus = "planning"
	BatchResolving BatchStatus = "resolving"
	BatchResolved  BatchStatus = "resolved"
	BatchFailed    BatchStatus = "failed"
)

// Entry is one conflict-queue registration.
type Entry struct {
	TaskID       string    `json:"task_id"`
	WorkerDir    string    `json:"worker_dir"`
	PRNumber     int       `json:"pr_number"`
	ChangedFiles []string  `json:"changed_files"`
	BatchID      string    `json:"batch_id,omitempty"`
	QueuedAt     time.Time `json:"queued_at"`
}

// Batch is a non-singleton connected component of the queue, resolved
// together.
type Batch struct {
	ID      string      `json:"id"`
	Status  BatchStatus `json:"status"`
	TaskIDs []string    `json:"task_ids"`
}

// state is the on-disk shape persisted to .ralph/batches/queue.json.
type state struct {
	Queue   []Entry           `json:"queue"`
	Batches map[string]*Batch `json:"batches"`
}

// Queue is the in-memory, file-backed conflict queue. All mutations are
// serialized under a single mutex and persisted atomically.
type Queue struct {
	mu   sync.Mutex
	path string
	st   state

	// ignoreGlobs excludes matching paths (e.g. generated/vendored files)
	// from changed-file intersection, so two workers that both happen to
	// regenerate the same lockfile aren't grouped into a conflict batch.
	ignoreGlobs []string
}

// Open loads the queue from path, creating an empty one if the file does
// not yet exist.
func Open(path string) (*Queue, error) {
	q := &Queue{path: path, st: state{Batches: map[string]*Batch{}}}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return q, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conflict: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &q.st); err != nil {
		return nil, fmt.Errorf("conflict: decoding %s: %w", path, err)
	}
	if q.st.Batches == nil {
		q.st.Batches = map[string]*Batch{}
	}
	return q, nil
}

// Add registers entry, deduplicated by task ID: a second Add for the same
// task ID overwrites the first rather than creating a duplicate.
func (q *Queue) Add(taskID, workerDir string, prNumber int, changedFiles []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.st.Queue {
		if e.TaskID == taskID {
			q.st.Queue[i].WorkerDir = workerDir
			q.st.Queue[i].PRNumber = prNumber
			q.st.Queue[i].ChangedFiles = changedFiles
			return q.persistLocked()
		}
	}
	q.st.Queue = append(q.st.Queue, Entry{
		TaskID:       taskID,
		WorkerDir:    workerDir,
		PRNumber:     prNumber,
		ChangedFiles: changedFiles,
		QueuedAt:     time.Now(),
	})
	return q.persistLocked()
}

// Remove deletes the entry for taskID. It is a no-op if absent.
func (q *Queue) Remove(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.st.Queue {
		if e.TaskID == taskID {
			q.st.Queue = append(q.st.Queue[:i], q.st.Queue[i+1:]...)
			return q.persistLocked()
		}
	}
	return nil
}

// GroupRelated computes connected components where edges connect entries
// whose ChangedFiles sets pairwise intersect. Singletons are excluded.
//
// Callers must invoke this immediately before CreateBatch rather than
// caching its result: a rebase can change a worker's file set between
// calls (spec open question #3), so groups are always recomputed fresh.
func (q *Queue) GroupRelated() [][]string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.groupRelatedLocked()
}

func (q *Queue) groupRelatedLocked() [][]string {
	n := len(q.st.Queue)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if intersectsIgnoring(q.st.Queue[i].ChangedFiles, q.st.Queue[j].ChangedFiles, q.ignoreGlobs) {
				union(i, j)
			}
		}
	}

	groups := map[int][]string{}
	for i, e := range q.st.Queue {
		root := find(i)
		groups[root] = append(groups[root], e.TaskID)
	}

	var out [][]string
	for _, ids := range groups {
		if len(ids) > 1 {
			sort.Strings(ids)
			out = append(out, ids)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func intersects(a, b []string) bool {
	return intersectsIgnoring(a, b, nil)
}

func intersectsIgnoring(a, b []string, ignoreGlobs []string) bool {
	set := make(map[string]bool, len(a))
	for _, f := range a {
		if matchesAny(ignoreGlobs, f) {
			continue
		}
		set[f] = true
	}
	for _, f := range b {
		if matchesAny(ignoreGlobs, f) {
			continue
		}
		if set[f] {
			return true
		}
	}
	return false
}

func matchesAny(globs []string, path string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, path); ok {
			return true
		}
	}
	return false
}

// SetIgnoreGlobs configures doublestar glob patterns excluded from
// changed-file intersection when grouping related workers.
func (q *Queue) SetIgnoreGlobs(globs []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ignoreGlobs = globs
}

// BatchReady reports whether at least one non-singleton group exists.
func (q *Queue) BatchReady() bool {
	return len(q.GroupRelated()) > 0
}

// CreateBatch atomically marks taskIDs with a new batch ID and status
// queued. It recomputes groups are NOT assumed here; callers pass the
// exact task IDs they want batched (typically straight from a fresh
// GroupRelated() call).
func (q *Queue) CreateBatch(taskIDs []string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	batchID := fmt.Sprintf("batch-%d", time.Now().UnixNano())
	idSet := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		idSet[id] = true
	}
	for i, e := range q.st.Queue {
		if idSet[e.TaskID] {
			q.st.Queue[i].BatchID = batchID
		}
	}
	q.st.Batches[batchID] = &Batch{ID: batchID, Status: BatchQueued, TaskIDs: taskIDs}
	if err := q.persistLocked(); err != nil {
		return "", err
	}
	return batchID, nil
}

// UpdateBatchStatus sets batchID's status.
func (q *Queue) UpdateBatchStatus(batchID string, status BatchStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	b, ok := q.st.Batches[batchID]
	if !ok {
		return fmt.Errorf("conflict: batch %q not found", batchID)
	}
	b.Status = status
	return q.persistLocked()
}

// GetBatch returns batchID's record, or nil if absent.
func (q *Queue) GetBatch(batchID string) *Batch {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.st.Batches[batchID]
}

// CleanupBatch removes the batch and its queue entries.
func (q *Queue) CleanupBatch(batchID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.st.Batches, batchID)
	var kept []Entry
	for _, e := range q.st.Queue {
		if e.BatchID != batchID {
			kept = append(kept, e)
		}
	}
	q.st.Queue = kept
	return q.persistLocked()
}

// Stats summarizes the queue's current size.
type Stats struct {
	Queued  int `json:"queued"`
	Batched int `json:"batched"`
	Batches int `json:"batches"`
}

// Stats returns current queue/batch counts.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{Batches: len(q.st.Batches)}
	for _, e := range q.st.Queue {
		if e.BatchID != "" {
			s.Batched++
		} else {
			s.Queued++
		}
	}
	return s
}

// persistLocked writes the queue to disk via write-temp-then-rename. The
// caller must hold q.mu.
func (q *Queue) persistLocked() error {
	data, err := json.MarshalIndent(q.st, "", "  ")
	if err != nil {
		return fmt.Errorf("conflict: encoding queue: %w", err)
	}
	dir := filepath.Dir(q.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("conflict: creating batches dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".queue-*.tmp")
	if err != nil {
		return fmt.Errorf("conflict: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("conflict: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("conflict: closing temp file: %w", err)
	}
	return os.Rename(tmpPath, q.path)
}
