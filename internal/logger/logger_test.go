package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-auth-client/internal/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewProductionIsJSONAtInfo(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, false)
	require.Equal(t, zerolog.InfoLevel, log.GetLevel())

	log.Debug().Msg("hidden")
	log.Info().Str("userID", "u1").Msg("session hydrated")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "session hydrated", entry["message"])
	require.Equal(t, "u1", entry["userID"])
	require.NotContains(t, buf.String(), "hidden")
}

func TestNewDevIsDebug(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, true)
	require.Equal(t, zerolog.DebugLevel, log.GetLevel())

	log.Debug().Msg("refresh queued")
	require.Contains(t, buf.String(), "refresh queued")
}
