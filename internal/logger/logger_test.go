package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("chatty"))
}

func TestNewProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Env: "production", Level: "debug", Out: &buf})

	log.Debug().Str("token", Preview("abcdefghijklmnopqrstuvwxyz")).Msg("refreshing")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "refreshing", line["message"])
	assert.Equal(t, "abcdef…uvwxyz", line["token"])
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Env: "prod", Level: "error", Out: &buf})

	log.Info().Msg("dropped")
	assert.Empty(t, buf.String())
}

func TestNewDevelopmentIsConsole(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Out: &buf})

	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "INF")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "", Preview(""))
	assert.Equal(t, "******", Preview("short"))
	assert.Equal(t, "******", Preview("abcdefghijklmnopqrstuvwx"))
	assert.Equal(t, "abcdef…uvwxyz", Preview("abcdefghijklmnopqrstuvwxyz"))
}
