package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLoggerWritesAndQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")
	fl, err := NewFileLogger(path)
	require.NoError(t, err)
	defer fl.Close()

	require.NoError(t, fl.Log("open", true, map[string]any{"path": "a.db"}))
	require.NoError(t, fl.Log("open", false, map[string]any{"path": "a.db", "error": "authentication failed"}))
	require.NoError(t, fl.Log("save", true, nil))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	all, err := fl.Query(QueryOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.NotEmpty(t, all[0].ID)
	assert.NotEqual(t, all[0].ID, all[1].ID)
	assert.NotEmpty(t, all[0].SessionID)
	assert.Equal(t, all[0].SessionID, all[2].SessionID)
	assert.Equal(t, "authentication failed", all[1].Error)
	assert.NotContains(t, all[1].Metadata, "error")

	failed := false
	opens, err := fl.Query(QueryOptions{Action: "open", Success: &failed})
	require.NoError(t, err)
	require.Len(t, opens, 1)
	assert.False(t, opens[0].Success)

	last, err := fl.Query(QueryOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "save", last[0].Action)

	future := time.Now().Add(time.Hour)
	none, err := fl.Query(QueryOptions{Since: &future})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFileLoggerSkipsTornLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":\"x\",\"action\":\"open\",\"success\":true}\n{\"id\":"), 0600))

	fl, err := NewFileLogger(path)
	require.NoError(t, err)
	defer fl.Close()

	events, err := fl.Query(QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestLogAfterClose(t *testing.T) {
	fl, err := NewFileLogger(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	require.NoError(t, fl.Close())
	require.NoError(t, fl.Close())
	assert.Error(t, fl.Log("open", true, nil))
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(nil)
	require.NoError(t, err)
	assert.IsType(t, &NoOpLogger{}, l)

	_, err = NewLogger(&Config{Enabled: true})
	assert.Error(t, err)

	l, err = NewLogger(&Config{Enabled: true, FilePath: filepath.Join(t.TempDir(), "a.jsonl")})
	require.NoError(t, err)
	assert.IsType(t, &FileLogger{}, l)
	require.NoError(t, l.Close())
}
