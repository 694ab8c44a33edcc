package messaging_test

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/serroba/admission/internal/messaging"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := messaging.NewZapLogger(zap.New(core))

	scoped := logger.With(watermill.LogFields{"consumer_group": "events"})
	scoped.Info("subscribed", watermill.LogFields{"topic": "ratelimit.denied"})
	logger.Error("publish failed", errors.New("boom"), nil)
	logger.Trace("tick", nil)

	entries := logs.All()
	assert.Len(t, entries, 3)

	assert.Equal(t, "subscribed", entries[0].Message)
	assert.Equal(t, "events", entries[0].ContextMap()["consumer_group"])
	assert.Equal(t, "ratelimit.denied", entries[0].ContextMap()["topic"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])

	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
}
