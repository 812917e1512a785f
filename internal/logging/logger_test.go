package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerAddsServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "reconcile-api", "warn")
	require.NoError(t, err)

	logger.Info().Msg("dropped")
	logger.Warn().Str("user_id", "u1").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.Equal(t, "reconcile-api", entry["service"])
	require.Equal(t, "kept", entry["message"])
	require.Equal(t, "u1", entry["user_id"])
	require.Contains(t, entry, "time")
}

func TestLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewWithWriter(&bytes.Buffer{}, "svc", "chatty")
	require.Error(t, err)
}
