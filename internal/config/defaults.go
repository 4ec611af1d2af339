package config

// NewDefaults returns a Config populated with all default values, matching
// the `.ralph/` file layout in spec.md §6.
func NewDefaults() *Config {
	return &Config{
		Project: ProjectConfig{
			TasksDir:       "docs/tasks",
			TaskStateFile:  "docs/tasks/task-state.conf",
			PhasesConf:     "docs/tasks/phases.conf",
			ProgressFile:   "docs/tasks/PROGRESS.md",
			LogDir:         "scripts/logs",
			PromptDir:      "prompts",
			BranchTemplate: "phase/{phase_id}-{slug}",
		},
		Orchestrator: OrchestratorConfig{
			RootDir:            ".ralph",
			KanbanFile:         ".ralph/kanban.md",
			LifecycleSpecFile:  "config/worker-lifecycle.json",
			PipelineConfigFile: "config/pipeline.json",
			AgentsFile:         "config/agents.json",
			EventsLogFile:      ".ralph/logs/events.jsonl",
			PoolIndexFile:      ".ralph/orchestrator/pool-pending",
			QueueFile:          ".ralph/batches/queue.json",
			WorkersDir:         ".ralph/workers",
			PlansDir:           ".ralph/plans",
			MaxMainWorkers:     3,
			MaxFixWorkers:      1,
			MaxResolveWorkers:  1,
		},
		Agents:    map[string]AgentConfig{},
		Workflows: map[string]WorkflowConfig{},
	}
}
