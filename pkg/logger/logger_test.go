package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		log, err := New(level, "json")
		require.NoError(t, err)
		assert.NotNil(t, log)
	}

	log, err := New("info", "console")
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestLevelFiltering(t *testing.T) {
	log, err := New("error", "json")
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.WarnLevel))
	assert.True(t, log.Core().Enabled(zapcore.ErrorLevel))
}
