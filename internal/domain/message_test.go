package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAgentID(t *testing.T) {
	require.Equal(t, "agent-1", NormalizeAgentID("agent-1"))
	require.Equal(t, "agent-1", NormalizeAgentID("  agent-1\t"))
	require.Equal(t, UnknownSender, NormalizeAgentID(""))
	require.Equal(t, UnknownSender, NormalizeAgentID("   "))
}

func TestStatusLine(t *testing.T) {
	require.Equal(t, "[STATUS] A: hello", Message{Sender: "A", Content: "hello"}.StatusLine())
	require.Equal(t, "[STATUS] A: ", Message{Sender: "A"}.StatusLine())
}
