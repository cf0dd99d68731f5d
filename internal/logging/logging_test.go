package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(false, FormatJSON, &buf)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Debug().Msg("hidden")
	log.Info().Str("task_id", "42").Msg("task created")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "task created", entry["message"])
	assert.Equal(t, "42", entry["task_id"])
	assert.False(t, DebugEnabled())
}

func TestInitConsoleDebug(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(true, "console", &buf)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Debug().Msg("visible")

	assert.True(t, DebugEnabled())
	assert.Contains(t, buf.String(), "visible")
}
