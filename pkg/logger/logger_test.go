package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONCarriesServiceAttribute(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf, Service: "bookings"})

	log.Info("allocated", "vehicle_id", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "bookings", entry[SERVICE])
	assert.Equal(t, "allocated", entry["msg"])
	assert.EqualValues(t, 3, entry["vehicle_id"])
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf, Level: WARN})

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf, Format: TEXT}).With("request_id", "abc")

	log.Info("hello")
	assert.Contains(t, buf.String(), "request_id=abc")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel(DEBUG))
	assert.Equal(t, slog.LevelWarn, ParseLevel(WARN))
	assert.Equal(t, slog.LevelError, ParseLevel(ERROR))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
