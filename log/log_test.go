package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_Levels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		level string
		want  zerolog.Level
	}{
		{name: "debug", level: "debug", want: zerolog.DebugLevel},
		{name: "upper case", level: "WARN", want: zerolog.WarnLevel},
		{name: "empty falls back to info", level: "", want: zerolog.InfoLevel},
		{name: "garbage falls back to info", level: "loud", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := NewWithWriter(&bytes.Buffer{}, tt.level, false)
			assert.Equal(t, tt.want, l.GetLevel())
		})
	}
}

func TestModule_TagsEntries(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info", false)

	mod := l.Module("channel-manager")
	mod.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "channel-manager", entry["module"])
	assert.Equal(t, "hello", entry["message"])
}
