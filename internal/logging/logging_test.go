package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"chatty":  zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "ani-tui.log")
	l := New(Config{Level: "info", Path: path})

	l.WithComponent("catalog").Warn().Str("provider", "hianime").Msg("provider failed")
	l.Debug().Msg("hidden")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"catalog"`)
	assert.Contains(t, string(data), `"message":"provider failed"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Console: &buf})
	l.Debug().Msg("resolving")
	assert.Contains(t, buf.String(), "resolving")
	assert.NoError(t, l.Close())
}

func TestNewWithoutOutputs(t *testing.T) {
	l := New(Config{})
	l.Info().Msg("dropped")
	assert.NoError(t, l.Close())
}
