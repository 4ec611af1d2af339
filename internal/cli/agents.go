package cli

import (
	"fmt"

	"github.com/ralphorchestrator/ralph/internal/agent"
	"github.com/ralphorchestrator/ralph/internal/config"
	"github.com/ralphorchestrator/ralph/internal/logging"
)

// implementFlags carries the per-invocation overrides a command can apply
// when building the agent registry; most commands pass a zero-value
// implementFlags{} (no override), "worker start"/"run" only need the
// --model override when an operator is force-admitting a task with a
// different model than the project default.
type implementFlags struct {
	// Agent is the agent name the Model override applies to.
	Agent string
	// Model overrides the agent's configured model.
	Model string
}

// charmLogger is the subset of *log.Logger the agent adapters' unexported
// logger interfaces require.
type charmLogger interface {
	Info(msg interface{}, kv ...interface{})
	Debug(msg interface{}, kv ...interface{})
}

// agentDebugLogger wraps a charmbracelet/log.Logger to satisfy the agent
// package's unexported claudeLogger and codexLogger interfaces, which
// require Debug(msg string, ...).
type agentDebugLogger struct {
	logger charmLogger
}

func (l *agentDebugLogger) Debug(msg string, kv ...interface{}) {
	l.logger.Debug(msg, kv...)
}

// buildAgentRegistry creates an agent registry populated with Claude, Codex,
// and Gemini adapters. Agent configurations are sourced from the resolved
// config (config.AgentConfig) and converted to agent.AgentConfig for the
// agent constructors. If --model is set and matches the selected agent, that
// agent's configured model is overridden.
func buildAgentRegistry(agentCfgs map[string]config.AgentConfig, flags implementFlags) (*agent.Registry, error) {
	registry := agent.NewRegistry()

	toAgentCfg := func(c config.AgentConfig) agent.AgentConfig {
		return agent.AgentConfig{
			Command:        c.Command,
			Model:          c.Model,
			Effort:         c.Effort,
			PromptTemplate: c.PromptTemplate,
			AllowedTools:   c.AllowedTools,
		}
	}

	claudeCfg := toAgentCfg(agentCfgs["claude"])
	codexCfg := toAgentCfg(agentCfgs["codex"])
	geminiCfg := toAgentCfg(agentCfgs["gemini"])

	if flags.Model != "" {
		switch flags.Agent {
		case "claude":
			claudeCfg.Model = flags.Model
		case "codex":
			codexCfg.Model = flags.Model
		case "gemini":
			geminiCfg.Model = flags.Model
		}
	}

	if claudeCfg.Command == "" {
		claudeCfg.Command = "claude"
	}
	if codexCfg.Command == "" {
		codexCfg.Command = "codex"
	}

	claudeLog := &agentDebugLogger{logger: logging.New("claude")}
	codexLog := &agentDebugLogger{logger: logging.New("codex")}

	if err := registry.Register(agent.NewClaudeAgent(claudeCfg, claudeLog)); err != nil {
		return nil, fmt.Errorf("registering claude agent: %w", err)
	}
	if err := registry.Register(agent.NewCodexAgent(codexCfg, codexLog)); err != nil {
		return nil, fmt.Errorf("registering codex agent: %w", err)
	}
	if err := registry.Register(agent.NewGeminiAgent(geminiCfg)); err != nil {
		return nil, fmt.Errorf("registering gemini agent: %w", err)
	}

	return registry, nil
}

// firstConfiguredAgentName returns the first agent name present in agentCfgs
// from the fixed claude/codex/gemini preference order buildAgentRegistry
// uses, since map iteration order is not stable. Returns "" if none of the
// three are configured.
func firstConfiguredAgentName(agentCfgs map[string]config.AgentConfig) string {
	for _, name := range []string{"claude", "codex", "gemini"} {
		if _, ok := agentCfgs[name]; ok {
			return name
		}
	}
	return ""
}
