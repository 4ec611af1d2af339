package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// EventBridge converts backend channel sends into TUI messages that the
// Bubble Tea runtime can dispatch to the App model. Orchestrator state
// (lifecycle transitions, scheduler/conflict-queue counts) is polled
// directly via PollCmd rather than streamed through a channel; EventBridge
// only covers the genuinely push-based sources: raw per-line agent output.
//
// All methods are goroutine-safe: they spawn a background goroutine that
// reads from the given channel and return a tea.Cmd that can be placed in a
// Batch. The goroutines respect the provided context for cancellation.
type EventBridge struct{}

// NewEventBridge creates a new EventBridge. No internal state is
// maintained; the struct exists to provide a namespaced API for the bridge
// helpers.
func NewEventBridge() EventBridge {
	return EventBridge{}
}

// AgentOutputCmd returns a tea.Cmd that reads a single AgentOutputMsg from
// ch and forwards it unchanged. The command sends nil when the channel is
// closed or ctx is done.
func (b EventBridge) AgentOutputCmd(ctx context.Context, ch <-chan AgentOutputMsg) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			return msg
		}
	}
}

// SendAgentOutput is a convenience function that sends an AgentOutputMsg to
// the Bubble Tea program p with the given agent name, output line, stream
// label, and timestamp.
func SendAgentOutput(p *tea.Program, agent, line, stream string, ts time.Time) {
	p.Send(AgentOutputMsg{
		Agent:     agent,
		Line:      line,
		Stream:    stream,
		Timestamp: ts,
	})
}
