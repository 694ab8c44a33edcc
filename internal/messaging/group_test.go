package messaging_test

import (
	"context"
	"errors"
	"testing"

	"github.com/serroba/admission/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockRunnable struct {
	started     bool
	shutdown    bool
	startErr    error
	shutdownErr error
}

func (m *mockRunnable) Start(_ context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}

	m.started = true

	return nil
}

func (m *mockRunnable) Shutdown() error {
	m.shutdown = true

	return m.shutdownErr
}

func TestGroup_Start(t *testing.T) {
	t.Run("starts all runnables", func(t *testing.T) {
		group := messaging.NewGroup(newMockSubscriber(), zap.NewNop())
		first := &mockRunnable{}
		second := &mockRunnable{}

		group.Add(first)
		group.Add(second)

		err := group.Start(context.Background())

		require.NoError(t, err)
		assert.True(t, first.started)
		assert.True(t, second.started)
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		group := messaging.NewGroup(newMockSubscriber(), zap.NewNop())
		first := &mockRunnable{}
		second := &mockRunnable{startErr: errors.New("start error")}

		group.Add(first)
		group.Add(second)

		err := group.Start(context.Background())

		require.Error(t, err)
		assert.True(t, first.started)
		assert.True(t, first.shutdown) // Should be rolled back
		assert.False(t, second.started)
	})
}

func TestGroup_Shutdown(t *testing.T) {
	t.Run("shuts down all runnables and closes the subscriber", func(t *testing.T) {
		sub := newMockSubscriber()
		group := messaging.NewGroup(sub, zap.NewNop())
		first := &mockRunnable{}
		second := &mockRunnable{}

		group.Add(first)
		group.Add(second)
		_ = group.Start(context.Background())

		err := group.Shutdown()

		require.NoError(t, err)
		assert.True(t, first.shutdown)
		assert.True(t, second.shutdown)
		assert.True(t, sub.closed)
	})

	t.Run("reports every error but shuts down all", func(t *testing.T) {
		group := messaging.NewGroup(nil, zap.NewNop())
		first := &mockRunnable{shutdownErr: errors.New("shutdown error 1")}
		second := &mockRunnable{shutdownErr: errors.New("shutdown error 2")}

		group.Add(first)
		group.Add(second)
		_ = group.Start(context.Background())

		err := group.Shutdown()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "shutdown error 1")
		assert.Contains(t, err.Error(), "shutdown error 2")
		assert.True(t, first.shutdown)
		assert.True(t, second.shutdown) // Still attempted
	})
}
