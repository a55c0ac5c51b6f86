package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewHonorsLevel(t *testing.T) {
	lg := New("debug")
	require.NotNil(t, lg)
	assert.True(t, lg.Desugar().Core().Enabled(zapcore.DebugLevel))

	lg = New("warn")
	assert.False(t, lg.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, lg.Desugar().Core().Enabled(zapcore.WarnLevel))
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	lg := New("shouting")
	require.NotNil(t, lg)
	assert.False(t, lg.Desugar().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, lg.Desugar().Core().Enabled(zapcore.InfoLevel))
}
