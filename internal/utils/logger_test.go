package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Run("should honour an explicit level", func(t *testing.T) {
		req := require.New(t)
		log, err := NewLogger(false, "WARN")
		req.NoError(err)
		req.False(log.Core().Enabled(zapcore.InfoLevel))
		req.True(log.Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("should fall back to the default level on garbage", func(t *testing.T) {
		req := require.New(t)
		log, err := NewLogger(true, "loud")
		req.NoError(err)
		req.True(log.Core().Enabled(zapcore.DebugLevel))
	})
}
