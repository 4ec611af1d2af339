// Package workerpool tracks live workers by kind, enforces per-kind and
// global concurrency caps, and admits/reaps workers (§4.E).
package workerpool

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/ralphorchestrator/ralph/internal/eventbus"
)

// Kind is one of the three worker categories the pool admits.
type Kind string

const (
	KindMain    Kind = "main"
	KindFix     Kind = "fix"
	KindResolve Kind = "resolve"
)

var validKinds = map[Kind]bool{KindMain: true, KindFix: true, KindResolve: true}

// Entry is one live worker tracked by the pool.
type Entry struct {
	PID    int    `json:"pid"`
	Kind   Kind   `json:"kind"`
	TaskID string `json:"task_id"`
}

// Pool tracks live workers in memory, mirrored to an on-disk index file.
// All mutations are serialized under a single mutex.
type Pool struct {
	mu      sync.Mutex
	path    string
	entries map[int]Entry // keyed by PID
}

// Open reconstructs the pool from its on-disk index at path, pruning any
// PID that is no longer alive.
func Open(path string) (*Pool, error) {
	p := &Pool{path: path, entries: map[int]Entry{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("workerpool: reading %s: %w", path, err)
	}

	var loaded []Entry
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("workerpool: decoding %s: %w", path, err)
	}
	for _, e := range loaded {
		if isAlive(e.PID) {
			p.entries[e.PID] = e
		}
	}
	return p, p.persistLocked()
}

func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 probes liveness
	// without affecting the process.
	return proc.Signal(syscall.Signal(0)) == nil
}

// Add registers a live worker. It rejects a duplicate PID or an unknown
// kind.
func (p *Pool) Add(pid int, kind Kind, taskID string) error {
	if !validKinds[kind] {
		return fmt.Errorf("workerpool: unknown kind %q", kind)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.entries[pid]; exists {
		return fmt.Errorf("workerpool: pid %d already registered", pid)
	}
	p.entries[pid] = Entry{PID: pid, Kind: kind, TaskID: taskID}
	return p.persistLocked()
}

// Remove deregisters pid. It rejects an unknown PID.
func (p *Pool) Remove(pid int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.entries[pid]; !exists {
		return fmt.Errorf("workerpool: pid %d not registered", pid)
	}
	delete(p.entries, pid)
	return p.persistLocked()
}

// HasCapacity reports whether fewer than cap workers of kind are running.
func (p *Pool) HasCapacity(kind Kind, cap int) bool {
	return p.Count(kind) < cap
}

// Count returns the number of live workers of kind, or the total across all
// kinds if kind is empty.
func (p *Pool) Count(kind Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if kind == "" {
		return len(p.entries)
	}
	n := 0
	for _, e := range p.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// FindByTask returns the PID running taskID, and whether one was found.
func (p *Pool) FindByTask(taskID string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for pid, e := range p.entries {
		if e.TaskID == taskID {
			return pid, true
		}
	}
	return 0, false
}

// ForEach invokes fn for every entry of kind, or every entry if kind is
// empty. fn is called with the pool unlocked.
func (p *Pool) ForEach(kind Kind, fn func(Entry)) {
	p.mu.Lock()
	snapshot := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		if kind == "" || e.Kind == kind {
			snapshot = append(snapshot, e)
		}
	}
	p.mu.Unlock()

	for _, e := range snapshot {
		fn(e)
	}
}

// persistLocked writes the pool index atomically. Caller must hold p.mu.
func (p *Pool) persistLocked() error {
	list := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		list = append(list, e)
	}
	return eventbus.WriteAtomicJSON(p.path, list)
}
