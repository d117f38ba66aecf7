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
	cases := map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"debug": zapcore.DebugLevel,
		"WARN":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := parseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseLevel("verbose")
	assert.Error(t, err)
}

func TestInitWritesToFile(t *testing.T) {
	prevL, prevZ := L, Z
	defer func() { L, Z = prevL, prevZ }()

	path := filepath.Join(t.TempDir(), "logs", "rssagg.log")
	require.NoError(t, Init(Config{Level: "warn", File: path}))

	Infof("hidden %d", 1)
	Warnf("visible %d", 2)
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, "visible 2"))
	assert.False(t, strings.Contains(out, "hidden 1"))
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Init(Config{Level: "loud"}))
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, 64, orDefault(0, 64))
	assert.Equal(t, 10, orDefault(10, 64))
}
