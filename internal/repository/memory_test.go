package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func contents(t *testing.T, s Store, agentID string) []string {
	t.Helper()
	msgs, err := s.UnreadFor(context.Background(), agentID)
	require.NoError(t, err)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Sender+":"+m.Content)
	}
	return out
}

func mustAppend(t *testing.T, s Store, sender, content string) {
	t.Helper()
	_, err := s.Append(context.Background(), sender, content)
	require.NoError(t, err)
}

func TestMemoryStore_AssignsSequentialIDs(t *testing.T) {
	s := NewMemoryStore()
	m1, err := s.Append(context.Background(), "A", "one")
	require.NoError(t, err)
	m2, err := s.Append(context.Background(), "B", "two")
	require.NoError(t, err)
	require.Equal(t, int64(1), m1.ID)
	require.Equal(t, int64(2), m2.ID)
	require.False(t, m2.CreatedAt.Before(m1.CreatedAt))
	require.Equal(t, 2, s.Len())
}

func TestMemoryStore_SecondQueryIsEmpty(t *testing.T) {
	s := NewMemoryStore()
	mustAppend(t, s, "A", "hello")

	require.Equal(t, []string{"A:hello"}, contents(t, s, "B"))
	require.Empty(t, contents(t, s, "B"))
}

func TestMemoryStore_NeverReturnsOwnMessages(t *testing.T) {
	s := NewMemoryStore()
	mustAppend(t, s, "A", "m1")
	mustAppend(t, s, "B", "m2")

	require.Equal(t, []string{"B:m2"}, contents(t, s, "A"))
	require.Equal(t, []string{"A:m1"}, contents(t, s, "B"))
}

func TestMemoryStore_CursorJumpsToEndOfLog(t *testing.T) {
	s := NewMemoryStore()
	mustAppend(t, s, "A", "mine")
	mustAppend(t, s, "A", "mine too")

	require.Empty(t, contents(t, s, "A"))
	require.Equal(t, 2, s.Cursor("A"))

	mustAppend(t, s, "B", "later")
	require.Equal(t, []string{"B:later"}, contents(t, s, "A"))
	require.Equal(t, 3, s.Cursor("A"))
}

func TestMemoryStore_InterleavedSendsDeliveredOnce(t *testing.T) {
	s := NewMemoryStore()
	mustAppend(t, s, "A", "a1")
	mustAppend(t, s, "X", "x1")
	mustAppend(t, s, "A", "a2")

	require.Equal(t, []string{"X:x1"}, contents(t, s, "A"))
	require.Empty(t, contents(t, s, "A"))
}

func TestMemoryStore_AscendingOrder(t *testing.T) {
	s := NewMemoryStore()
	for _, c := range []string{"1", "2", "3"} {
		mustAppend(t, s, "A", c)
	}
	msgs, err := s.UnreadFor(context.Background(), "B")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		require.Less(t, msgs[i-1].ID, msgs[i].ID)
	}
}

func TestMemoryStore_IndependentCursors(t *testing.T) {
	s := NewMemoryStore()
	mustAppend(t, s, "A", "hello")

	require.Equal(t, []string{"A:hello"}, contents(t, s, "B"))
	require.Equal(t, []string{"A:hello"}, contents(t, s, "C"))
	require.Equal(t, 0, s.Cursor("D"))
}

func TestMemoryStore_Close(t *testing.T) {
	require.NoError(t, NewMemoryStore().Close())
}
