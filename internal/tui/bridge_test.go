package tui

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewEventBridge verifies that NewEventBridge returns a usable EventBridge.
func TestNewEventBridge(t *testing.T) {
	t.Parallel()
	b := NewEventBridge()
	assert.NotNil(t, b)
}

// TestEventBridge_AgentOutputCmd_ReceivesMsg verifies that AgentOutputCmd
// forwards AgentOutputMsg values unchanged.
func TestEventBridge_AgentOutputCmd_ReceivesMsg(t *testing.T) {
	t.Parallel()

	b := NewEventBridge()
	ch := make(chan AgentOutputMsg, 1)

	ts := time.Now()
	ch <- AgentOutputMsg{
		Agent:     "claude",
		Line:      "hello world",
		Stream:    "stdout",
		Timestamp: ts,
	}

	ctx := context.Background()
	cmd := b.AgentOutputCmd(ctx, ch)
	require.NotNil(t, cmd)

	msg := cmd()
	aoMsg, ok := msg.(AgentOutputMsg)
	require.True(t, ok, "expected AgentOutputMsg, got %T", msg)

	assert.Equal(t, "claude", aoMsg.Agent)
	assert.Equal(t, "hello world", aoMsg.Line)
	assert.Equal(t, "stdout", aoMsg.Stream)
	assert.Equal(t, ts, aoMsg.Timestamp)
}

// TestEventBridge_AgentOutputCmd_ClosedChannel verifies that the command
// returns nil when the channel is closed.
func TestEventBridge_AgentOutputCmd_ClosedChannel(t *testing.T) {
	t.Parallel()

	b := NewEventBridge()
	ch := make(chan AgentOutputMsg)
	close(ch)

	ctx := context.Background()
	cmd := b.AgentOutputCmd(ctx, ch)
	require.NotNil(t, cmd)

	msg := cmd()
	assert.Nil(t, msg)
}

// TestEventBridge_AgentOutputCmd_CancelledContext verifies that the command
// returns nil when the context is cancelled before anything is sent.
func TestEventBridge_AgentOutputCmd_CancelledContext(t *testing.T) {
	t.Parallel()

	b := NewEventBridge()
	ch := make(chan AgentOutputMsg) // never receives

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := b.AgentOutputCmd(ctx, ch)
	require.NotNil(t, cmd)

	msg := cmd()
	assert.Nil(t, msg)
}
