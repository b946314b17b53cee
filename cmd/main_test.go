package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"agent-relay/internal/repository"
)

func TestOpenStore_Memory(t *testing.T) {
	s, err := openStore(context.Background(), storeConfig{kind: "memory"})
	require.NoError(t, err)
	require.IsType(t, &repository.MemoryStore{}, s)
}

func TestOpenStore_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "messages.db")
	s, err := openStore(context.Background(), storeConfig{kind: "SQLite", dbPath: path})
	require.NoError(t, err)
	defer s.Close()
	require.IsType(t, &repository.SQLiteStore{}, s)
	require.FileExists(t, path)
}

func TestOpenStore_Unknown(t *testing.T) {
	_, err := openStore(context.Background(), storeConfig{kind: "redis"})
	require.Error(t, err)
	require.Contains(t, err.Error(), `"redis"`)
}

func TestRun_SQLiteSurvivesRestart(t *testing.T) {
	cfg := storeConfig{kind: storeSQLite, dbPath: filepath.Join(t.TempDir(), "messages.db")}

	send := `{"protocol":"2.0","id":1,"method":"call_tool","params":{"name":"send","arguments":{"agent_id":"A","message":"persisted"}}}` + "\n"
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, 0, strings.NewReader(send), &out))

	get := `{"protocol":"2.0","id":2,"method":"call_tool","params":{"name":"get_messages","arguments":{"agent_id":"B"}}}` + "\n"
	out.Reset()
	require.NoError(t, run(context.Background(), cfg, 0, strings.NewReader(get+get), &out))

	respLines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, respLines, 2)
	require.Equal(t, "[STATUS] A: persisted", resultText(t, respLines[0]))
	require.Equal(t, "", resultText(t, respLines[1]))
}

func TestNewLogger_Levels(t *testing.T) {
	logger, closeFn, err := newLogger("debug", "")
	require.NoError(t, err)
	require.NoError(t, closeFn())
	require.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	logger, _, err = newLogger("nonsense", "")
	require.NoError(t, err)
	require.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	require.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	logger, closeFn, err := newLogger("info", path)
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, closeFn())
	require.FileExists(t, path)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("RELAY_TEST_INT", "42")
	t.Setenv("RELAY_TEST_BAD", "x")
	require.Equal(t, 42, envInt("RELAY_TEST_INT", 1))
	require.Equal(t, 1, envInt("RELAY_TEST_BAD", 1))
	require.Equal(t, 1, envInt("RELAY_TEST_MISSING", 1))
	require.Equal(t, "def", envString("RELAY_TEST_MISSING", "def"))
}

func resultText(t *testing.T, line string) string {
	t.Helper()
	var resp struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	require.Len(t, resp.Result.Content, 1)
	return resp.Result.Content[0].Text
}
