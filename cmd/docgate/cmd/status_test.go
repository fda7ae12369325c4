package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateConfig points every config source at empty temp directories.
func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DOCGATE_DATA_DIR", t.TempDir())
}

func TestStatusCmd_CreatesAndReportsIndices(t *testing.T) {
	isolateConfig(t)

	out, err := execute(t, "status")

	require.NoError(t, err)
	assert.Contains(t, out, "resources")
	assert.Contains(t, out, "notes")
	assert.Contains(t, out, "collections")
	assert.Contains(t, out, "conversation_messages")
	assert.Contains(t, out, "skills")
	assert.Contains(t, out, "status: healthy")
}

func TestStatusCmd_JSON(t *testing.T) {
	isolateConfig(t)

	out, err := execute(t, "status", "--json")

	require.NoError(t, err)
	var parsed struct {
		Healthy bool          `json:"healthy"`
		Indices []indexStatus `json:"indices"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.True(t, parsed.Healthy)
	assert.Len(t, parsed.Indices, 5)
	for _, st := range parsed.Indices {
		assert.Equal(t, "created", st.Status)
		assert.Zero(t, st.DocCount)
	}
}

func TestSearchCmd_EmptyIndex(t *testing.T) {
	isolateConfig(t)

	out, err := execute(t, "search", "anything", "--type", "note", "--uid", "u1")

	require.NoError(t, err)
	assert.Contains(t, out, "No results.")
}

func TestSearchCmd_RequiresUID(t *testing.T) {
	isolateConfig(t)

	_, err := execute(t, "search", "anything")

	assert.Error(t, err)
}
