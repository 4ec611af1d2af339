// Package resume implements the resume-decision controller (§4.G):
// per-worker attempt/cooldown/terminal bookkeeping and the 4-way
// RETRY/DEFER/ABORT/COMPLETE decision surfaced via reserved exit codes.
package resume

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Decision is one of the four resume outcomes.
type Decision string

const (
	DecisionRetry    Decision = "RETRY"
	DecisionDefer    Decision = "DEFER"
	DecisionAbort    Decision = "ABORT"
	DecisionComplete Decision = "COMPLETE"
)

// Reserved child-process exit codes that encode a resume decision on the
// agent's exit boundary (spec.md §4.G).
const (
	ExitAbort    = 65
	ExitDefer    = 66
	ExitComplete = 67
)

// Record is one entry in a resume-state's append-only decision history.
type Record struct {
	Decision  Decision  `json:"decision"`
	Pipeline  string    `json:"pipeline,omitempty"`
	ResumeStep string   `json:"resume_step,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the persisted per-worker resume-state record.
type State struct {
	WorkerID       string    `json:"worker_id"`
	AttemptCount   int       `json:"attempt_count"`
	MaxAttempts    int       `json:"max_attempts"`
	LastAttemptAt  time.Time `json:"last_attempt_at"`
	CooldownUntil  time.Time `json:"cooldown_until"`
	Terminal       bool      `json:"terminal"`
	TerminalReason string    `json:"terminal_reason,omitempty"`
	History        []Record  `json:"history,omitempty"`
}

// DefaultMaxAttempts matches spec.md's resume-budget default.
const DefaultMaxAttempts = 5

// NewState returns a fresh resume-state for workerID.
func NewState(workerID string, maxAttempts int) *State {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &State{WorkerID: workerID, MaxAttempts: maxAttempts}
}

// Schedulable reports whether the scheduler should include this worker:
// not terminal, attempts remain, and any cooldown has expired (spec.md §8
// invariant 13).
func (s *State) Schedulable(now time.Time) bool {
	if s.Terminal {
		return false
	}
	if s.AttemptCount >= s.MaxAttempts {
		return false
	}
	return !now.Before(s.CooldownUntil)
}

// Load reads a resume-state file, or returns a fresh state if absent.
func Load(path, workerID string, maxAttempts int) (*State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewState(workerID, maxAttempts), nil
	}
	if err != nil {
		return nil, fmt.Errorf("resume: reading %s: %w", path, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("resume: decoding %s: %w", path, err)
	}
	return &s, nil
}

// Save persists s atomically.
func Save(path string, s *State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("resume: encoding state: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("resume: creating state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".resume-*.tmp")
	if err != nil {
		return fmt.Errorf("resume: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, werr := tmp.Write(data); werr != nil {
		tmp.Close()
		return fmt.Errorf("resume: writing temp file: %w", werr)
	}
	if cerr := tmp.Close(); cerr != nil {
		return fmt.Errorf("resume: closing temp file: %w", cerr)
	}
	return os.Rename(tmpPath, path)
}

// Apply records a decision against s, mutating its attempt/cooldown/
// terminal fields per the table in spec.md §4.G. step is the step ID to
// resume from for a RETRY decision; it is ignored otherwise.
func (s *State) Apply(d Decision, pipeline, step, reason string, now time.Time, cooldown backoff.BackOff) error {
	switch d {
	case DecisionRetry:
		s.AttemptCount++
		s.LastAttemptAt = now
	case DecisionDefer:
		next := cooldown.NextBackOff()
		if next == backoff.Stop {
			return fmt.Errorf("resume: cooldown backoff exhausted for worker %s", s.WorkerID)
		}
		s.CooldownUntil = now.Add(next)
	case DecisionAbort:
		s.Terminal = true
		s.TerminalReason = reason
	case DecisionComplete:
		s.Terminal = true
		s.TerminalReason = "work complete"
	default:
		return fmt.Errorf("resume: unknown decision %q", d)
	}

	s.History = append(s.History, Record{
		Decision: d, Pipeline: pipeline, ResumeStep: step, Reason: reason, Timestamp: now,
	})
	return nil
}

// NewCooldownBackOff returns the exponential backoff policy used to compute
// a DEFER decision's cooldown duration, grounded on the corpus's
// cenkalti/backoff retry-with-backoff idiom.
func NewCooldownBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 30 * time.Second
	b.MaxInterval = 30 * time.Minute
	b.MaxElapsedTime = 0 // never give up on its own; ABORT is explicit
	return b
}

// FromExitCode maps a child process's exit code to a resume decision per
// spec.md §4.G: 65=ABORT, 66=DEFER, 67=COMPLETE; any other non-zero code is
// an implicit ABORT if attempts are exhausted, else an implicit RETRY.
func FromExitCode(code int, attemptCount, maxAttempts int) Decision {
	switch code {
	case ExitAbort:
		return DecisionAbort
	case ExitDefer:
		return DecisionDefer
	case ExitComplete:
		return DecisionComplete
	case 0:
		return DecisionComplete
	default:
		if attemptCount >= maxAttempts {
			return DecisionAbort
		}
		return DecisionRetry
	}
}

// ParseLegacyResumeStep parses the backward-compatible "resume-step.txt"
// text form: a bare step ID means RETRY at that step against the default
// pipeline; the literal words ABORT/DEFER/COMPLETE map to themselves.
func ParseLegacyResumeStep(raw, defaultPipeline string) (decision Decision, pipeline, step string) {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToUpper(trimmed) {
	case string(DecisionAbort):
		return DecisionAbort, "", ""
	case string(DecisionDefer):
		return DecisionDefer, "", ""
	case string(DecisionComplete):
		return DecisionComplete, "", ""
	default:
		return DecisionRetry, defaultPipeline, trimmed
	}
}
