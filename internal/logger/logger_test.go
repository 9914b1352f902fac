package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_Level(t *testing.T) {
	l, err := NewWithWriter(Config{Level: "WARN"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())

	l, err = NewWithWriter(Config{Level: "error", Debug: true}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, l.GetLevel(), "Debug overrides Level")
}

func TestNewWithWriter_InvalidLevel(t *testing.T) {
	_, err := NewWithWriter(Config{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(Config{Level: "info"}, &buf)
	require.NoError(t, err)

	cl := WithComponent(l, "scheduler")
	cl.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "hello", entry["message"])
}

func TestNewWithWriter_TimeFormatIsPerLogger(t *testing.T) {
	before := zerolog.TimeFieldFormat

	var dated, stamped bytes.Buffer
	a, err := NewWithWriter(Config{TimeFormat: time.DateOnly}, &dated)
	require.NoError(t, err)
	b, err := NewWithWriter(Config{}, &stamped)
	require.NoError(t, err)

	assert.Equal(t, before, zerolog.TimeFieldFormat, "global time format must not change")

	a.Info().Msg("first")
	b.Info().Msg("second")

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(dated.Bytes(), &first))
	require.NoError(t, json.Unmarshal(stamped.Bytes(), &second))

	_, err = time.Parse(time.DateOnly, first["time"].(string))
	assert.NoError(t, err)
	_, err = time.Parse(time.RFC3339, second["time"].(string))
	assert.NoError(t, err)
}

func TestDefaultConfig_Env(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEBUG", "yes")
	t.Setenv("LOG_OUTPUT", "stdout")

	cfg := DefaultConfig()
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "stdout", cfg.Output)
}
