package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, zerolog.InfoLevel, Level(false, false))
	assert.Equal(t, zerolog.DebugLevel, Level(true, false))
	assert.Equal(t, zerolog.TraceLevel, Level(false, true))
	assert.Equal(t, zerolog.TraceLevel, Level(true, true))
}

func TestNew_WritesJSONLines_When_NotPretty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, zerolog.InfoLevel, false)
	log.Debug().Msg("hidden")
	log.Info().Str("component", "sched").Msg("started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "started", entry["message"])
	assert.Equal(t, "sched", entry["component"])
	assert.Contains(t, entry, "time")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNew_WritesText_When_Pretty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, zerolog.DebugLevel, true)
	log.Debug().Msg("probing")

	out := buf.String()
	assert.Contains(t, out, "probing")
	assert.NotContains(t, out, `"message"`)
}

func TestOpenFile_Appends(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested")
	for _, line := range []string{"one\n", "two\n"} {
		f, err := OpenFile(dir)
		require.NoError(t, err)
		_, err = f.WriteString(line)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}
