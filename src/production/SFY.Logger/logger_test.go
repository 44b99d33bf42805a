package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Config"
)

func TestNewLogger_SetsLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)

	NewLogger(&config.LoggingConfig{Level: "warn", Format: "json"})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	NewLogger(&config.LoggingConfig{Level: "bogus", Format: "text"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	l := (&Logger{&base}).WithComponent("pipeline").WithRunID("run-1").WithError(errors.New("boom"))

	l.Info("detail failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pipeline", entry["component"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "detail failed", entry["message"])
}

func TestNewTestLogger_Discards(t *testing.T) {
	l := NewTestLogger()
	assert.NotPanics(t, func() { l.Info("nothing") })
}
