package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestServiceCore_AppendsServiceContext(t *testing.T) {
	t.Parallel()

	obs, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(newServiceCore(obs, "xlivekit", "1.0.0"))

	logger.Info("hello")
	require.Equal(t, 1, logs.Len())

	entry := logs.All()[0]
	require.Len(t, entry.Context, 1)
	sc, ok := entry.ContextMap()[serviceContextKey].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "xlivekit", sc["service"])
	assert.Equal(t, "1.0.0", sc["version"])
}

func TestServiceCore_KeepsExplicitServiceContext(t *testing.T) {
	t.Parallel()

	obs, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(newServiceCore(obs, "xlivekit", "1.0.0"))

	logger.Info("hello", ServiceContext("other", "2.0.0"))
	require.Equal(t, 1, logs.Len())

	entry := logs.All()[0]
	require.Len(t, entry.Context, 1)
	sc := entry.ContextMap()[serviceContextKey].(map[string]interface{})
	assert.Equal(t, "other", sc["service"])
	assert.Equal(t, "2.0.0", sc["version"])
}

func TestServiceCore_RespectsLevel(t *testing.T) {
	t.Parallel()

	obs, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(newServiceCore(obs, "xlivekit", "1.0.0"))

	logger.Debug("quiet")
	assert.Zero(t, logs.Len())
}
