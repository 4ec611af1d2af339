package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Default counter bounds (spec.md §3).
const (
	DefaultMaxMergeAttempts    = 2
	DefaultMaxRecoveryAttempts = 1
)

// TransitionRecord is one entry in a worker's lifecycle history, mirroring
// the step-history idiom used by the workflow state machine this package
// generalizes.
type TransitionRecord struct {
	From      string    `json:"from"`
	Event     string    `json:"event"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkerState is the persisted lifecycle-state record for one worker: its
// current FSM state plus the two bounded counters and transition history.
type WorkerState struct {
	WorkerID         string             `json:"worker_id"`
	Current          string             `json:"current"`
	MergeAttempts    int                `json:"merge_attempts"`
	RecoveryAttempts int                `json:"recovery_attempts"`
	LastError        string             `json:"last_error,omitempty"`
	RebaseSucceeded  bool               `json:"rebase_succeeded"`
	History          []TransitionRecord `json:"history,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// NewWorkerState returns a fresh lifecycle state for workerID sitting in
// initial.
func NewWorkerState(workerID, initial string) *WorkerState {
	return &WorkerState{
		WorkerID:  workerID,
		Current:   initial,
		UpdatedAt: time.Now(),
	}
}

// addRecord appends a transition record, matching workflow.WorkflowState's
// AddStepRecord idiom.
func (ws *WorkerState) addRecord(from, event, to string) {
	ws.History = append(ws.History, TransitionRecord{From: from, Event: event, To: to, Timestamp: time.Now()})
	ws.Current = to
	ws.UpdatedAt = time.Now()
}

// LoadWorkerState reads a persisted lifecycle-state file, or returns a fresh
// state at initial if the file does not exist.
func LoadWorkerState(path, workerID, initial string) (*WorkerState, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewWorkerState(workerID, initial), nil
	}
	if err != nil {
		return nil, fmt.Errorf("lifecycle: reading state %s: %w", path, err)
	}
	var ws WorkerState
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("lifecycle: decoding state %s: %w", path, err)
	}
	return &ws, nil
}

// SaveWorkerState writes ws to path atomically (write-temp-then-rename).
func SaveWorkerState(path string, ws *WorkerState) error {
	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return fmt.Errorf("lifecycle: encoding state: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("lifecycle: creating state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".lifecycle-*.tmp")
	if err != nil {
		return fmt.Errorf("lifecycle: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("lifecycle: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("lifecycle: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("lifecycle: renaming temp file: %w", err)
	}
	return nil
}
