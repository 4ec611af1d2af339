package pipeline

// StepConfig is one ordered step of a pipeline configuration (spec.md §6
// "Pipeline configuration file").
type StepConfig struct {
	ID             string                   `json:"id"`
	Agent          string                   `json:"agent"`
	Blocking       bool                     `json:"blocking,omitempty"`
	Readonly       bool                     `json:"readonly,omitempty"`
	EnabledBy      string                   `json:"enabled_by,omitempty"`
	CommitAfter    bool                     `json:"commit_after,omitempty"`
	DependsOn      []string                 `json:"depends_on,omitempty"`
	Max            int                      `json:"max,omitempty"`
	Fix            *FixConfig               `json:"fix,omitempty"`
	Hooks          *HooksConfig             `json:"hooks,omitempty"`
	ResultMappings map[string]ResultMapping `json:"result_mappings,omitempty"`
}

// FixConfig describes a step's inline fix sub-step, invoked in place when
// the step's agent returns FIX rather than advancing the pipeline.
type FixConfig struct {
	ID          string `json:"id"`
	Agent       string `json:"agent"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
	CommitAfter bool   `json:"commit_after,omitempty"`
}

// HooksConfig names shell-style hooks run before/after a step.
type HooksConfig struct {
	Pre  []string `json:"pre,omitempty"`
	Post []string `json:"post,omitempty"`
}

// ResultMapping overrides how one agent result maps to an exit status and a
// default routing target, keyed by PASS/FIX/FAIL/SKIP/STOP in the agent
// registry, or by the same keys per-step here.
type ResultMapping struct {
	Status      string `json:"status,omitempty"`
	ExitCode    int    `json:"exit_code,omitempty"`
	DefaultJump string `json:"default_jump,omitempty"`
}

// Config is the top-level pipeline definition: an ordered list of steps
// executed by the pipeline engine (spec.md §4.D).
type Config struct {
	Name  string       `json:"name"`
	Steps []StepConfig `json:"steps"`
}

// StepByID returns the step with the given ID, or nil if absent.
func (c *Config) StepByID(id string) *StepConfig {
	for i := range c.Steps {
		if c.Steps[i].ID == id {
			return &c.Steps[i]
		}
	}
	return nil
}

// IndexOf returns the position of the step with the given ID, or -1.
func (c *Config) IndexOf(id string) int {
	for i := range c.Steps {
		if c.Steps[i].ID == id {
			return i
		}
	}
	return -1
}
