package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_LevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := setup(&buf, "market-service", "warn")

	l.Info().Msg("dropped")
	cl := Component(l, "checkout")
	cl.Warn().Msg("kept")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "market-service", entry["service"])
	assert.Equal(t, "checkout", entry["component"])
	assert.Equal(t, "kept", entry["message"])
}

func TestSetup_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := setup(&buf, "svc", "loud")
	l.Debug().Msg("hidden")
	l.Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "hidden")
}
