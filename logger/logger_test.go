package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Encoding: "xml"})
	assert.Error(t, err)
}

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gorb.log")
	l, err := New(Config{Level: "debug", Encoding: "console", File: path})
	require.NoError(t, err)

	l.Info("orb_formed", Float64("high", 24850), Float64("low", 24800))
	Sync(l)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"orb_formed"`), "got %s", data)
	assert.True(t, strings.Contains(string(data), `"high":24850`))
}

func TestNopLogger(t *testing.T) {
	l := Nop()
	l.Debug("x")
	l.Warn("y", Err(os.ErrNotExist))
	Sync(l)
}
