package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesJSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	Init("prod", "debug", &buf)
	t.Cleanup(func() { Init("prod", "info", &bytes.Buffer{}) })

	log.Debug().Str("loop", "chat").Msg("poll")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "chat", line["loop"])
	assert.Equal(t, "poll", line["message"])
	assert.Contains(t, line, "time")
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init("dev", "loud", &buf)
	t.Cleanup(func() { Init("prod", "info", &bytes.Buffer{}) })

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	log.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
	log.Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
