package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel(" warning "))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestNewHonoursLevel(t *testing.T) {
	l, err := New("warn", true)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
	assert.NotNil(t, Fallback())
}

func TestRepeatedLinesAreNotSampled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pass.log")
	cfg := newConfig("info", false)
	cfg.OutputPaths = []string{path}
	l, err := cfg.Build()
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		l.Warn("item not written")
	}
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 500, strings.Count(string(raw), "item not written"))
	assert.Nil(t, newConfig("debug", true).Sampling)
}
