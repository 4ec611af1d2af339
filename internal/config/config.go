package config

// Config is the top-level configuration structure mapping to ralph.toml.
type Config struct {
	Project      ProjectConfig             `toml:"project"`
	Orchestrator OrchestratorConfig        `toml:"orchestrator"`
	Agents       map[string]AgentConfig    `toml:"agents"`
	Review       ReviewConfig              `toml:"review"`
	Workflows    map[string]WorkflowConfig `toml:"workflows"`
}

// OrchestratorConfig maps to the [orchestrator] section in ralph.toml: the
// `.ralph/` file-layout roots consumed by the board, scheduler, lifecycle,
// conflict, resume, and eventbus packages (spec.md §6).
type OrchestratorConfig struct {
	RootDir           string `toml:"root_dir"`
	KanbanFile         string `toml:"kanban_file"`
	LifecycleSpecFile string `toml:"lifecycle_spec_file"`
	PipelineConfigFile string `toml:"pipeline_config_file"`
	AgentsFile        string `toml:"agents_file"`
	EventsLogFile     string `toml:"events_log_file"`
	PoolIndexFile     string `toml:"pool_index_file"`
	QueueFile         string `toml:"queue_file"`
	WorkersDir        string `toml:"workers_dir"`
	PlansDir          string `toml:"plans_dir"`
	MaxMainWorkers    int    `toml:"max_main_workers"`
	MaxFixWorkers     int    `toml:"max_fix_workers"`
	MaxResolveWorkers int    `toml:"max_resolve_workers"`
	IgnoreGlobs       []string `toml:"ignore_globs"`
}

// ProjectConfig maps to the [project] section in ralph.toml.
type ProjectConfig struct {
	Name                 string   `toml:"name"`
	Language             string   `toml:"language"`
	TasksDir             string   `toml:"tasks_dir"`
	TaskStateFile        string   `toml:"task_state_file"`
	PhasesConf           string   `toml:"phases_conf"`
	ProgressFile         string   `toml:"progress_file"`
	LogDir               string   `toml:"log_dir"`
	PromptDir            string   `toml:"prompt_dir"`
	BranchTemplate       string   `toml:"branch_template"`
	VerificationCommands []string `toml:"verification_commands"`
}

// AgentConfig maps to an [agents.<name>] section in ralph.toml.
type AgentConfig struct {
	Command        string `toml:"command"`
	Model          string `toml:"model"`
	Effort         string `toml:"effort"`
	PromptTemplate string `toml:"prompt_template"`
	AllowedTools   string `toml:"allowed_tools"`
}

// ReviewConfig maps to the [review] section in ralph.toml.
type ReviewConfig struct {
	Extensions       string `toml:"extensions"`
	RiskPatterns     string `toml:"risk_patterns"`
	PromptsDir       string `toml:"prompts_dir"`
	RulesDir         string `toml:"rules_dir"`
	ProjectBriefFile string `toml:"project_brief_file"`
}

// WorkflowConfig maps to a [workflows.<name>] section in ralph.toml.
type WorkflowConfig struct {
	Description string                       `toml:"description"`
	Steps       []string                     `toml:"steps"`
	Transitions map[string]map[string]string `toml:"transitions"`
}
