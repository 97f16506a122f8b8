package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := Component(NewWithWriter(&buf, "debug", false), "claim")
	log.Debug().Str("ride_id", "r1").Msg("claim conflict")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "claim", entry["component"])
	assert.Equal(t, "r1", entry["ride_id"])
	assert.Equal(t, "debug", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestNewWithWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", false)
	log.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	log = NewWithWriter(&buf, "bogus", false)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
