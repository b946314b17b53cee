package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadBySet_ContainsIsTokenWise(t *testing.T) {
	set := readBySet("112,3")
	require.True(t, set.contains("112"))
	require.True(t, set.contains("3"))
	require.False(t, set.contains("12"))
	require.False(t, set.contains("11"))
	require.False(t, set.contains("1"))
	require.False(t, readBySet("").contains("1"))
}

func TestReadBySet_Add(t *testing.T) {
	set := readBySet("").add("1")
	require.Equal(t, readBySet("1"), set)
	set = set.add("12")
	require.Equal(t, readBySet("1,12"), set)
	require.Equal(t, set, set.add("12"))
	require.Equal(t, []string{"1", "12"}, set.members())
}

func TestReadBySet_MembersSkipsEmptyTokens(t *testing.T) {
	require.Nil(t, readBySet("").members())
	require.Equal(t, []string{"a", "b"}, readBySet("a,,b").members())
}

func TestValidReadByMember(t *testing.T) {
	require.True(t, validReadByMember("agent-1"))
	require.False(t, validReadByMember(""))
	require.False(t, validReadByMember("a,b"))
}
