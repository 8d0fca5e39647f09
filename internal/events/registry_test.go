package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skipper/internal/storage"
)

func newRegistryWithExecution(t *testing.T, executionID, ownerID string) *Registry {
	t.Helper()
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveExecution(context.Background(), storage.ExecutionRecord{
		ID:                executionID,
		TriggeredByUserID: ownerID,
	}))
	return NewRegistry(NewBus(), store)
}

func TestRegistry_SessionScopeDefaultAllows(t *testing.T) {
	registry := NewRegistry(NewBus(), nil)

	err := registry.Authorize(context.Background(), "sess-1", ScopeSession, "")
	assert.NoError(t, err)
}

func TestRegistry_ExecutionScopeRequiresIdentity(t *testing.T) {
	registry := newRegistryWithExecution(t, "exec-1", "user-1")

	err := registry.Authorize(context.Background(), "exec-1", ScopeExecution, "")
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

func TestRegistry_ExecutionScopeOwnerMatch(t *testing.T) {
	registry := newRegistryWithExecution(t, "exec-1", "user-1")
	ctx := context.Background()

	assert.NoError(t, registry.Authorize(ctx, "exec-1", ScopeExecution, "user-1"))
	assert.True(t, errors.Is(registry.Authorize(ctx, "exec-1", ScopeExecution, "user-2"), ErrForbidden))
	assert.True(t, errors.Is(registry.Authorize(ctx, "exec-404", ScopeExecution, "user-1"), ErrNotFound))
}

func TestRegistry_OwnerCacheServesRepeatAttaches(t *testing.T) {
	registry := newRegistryWithExecution(t, "exec-1", "user-1")
	ctx := context.Background()

	require.NoError(t, registry.Authorize(ctx, "exec-1", ScopeExecution, "user-1"))

	// Second check hits the cache; swap the finder out to prove the store is
	// no longer consulted.
	registry.executions = nil
	assert.NoError(t, registry.Authorize(ctx, "exec-1", ScopeExecution, "user-1"))
	assert.True(t, errors.Is(registry.Authorize(ctx, "exec-1", ScopeExecution, "user-2"), ErrForbidden))
}

func TestRegistry_SubscribeDeliversConnectedFirst(t *testing.T) {
	registry := newRegistryWithExecution(t, "exec-1", "user-1")

	ch, handle, err := registry.Subscribe(context.Background(), "exec-1", ScopeExecution, "user-1")
	require.NoError(t, err)
	defer handle.Detach()

	registry.bus.Publish("exec-1", New(TypeExecutionStarted, "exec-1"))

	first := <-ch
	assert.Equal(t, TypeConnected, first.Type)
	assert.False(t, first.Timestamp.IsZero())

	second := <-ch
	assert.Equal(t, TypeExecutionStarted, second.Type)
}

func TestRegistry_SubscribeConnectedOutrunsConcurrentPublishes(t *testing.T) {
	registry := NewRegistry(NewBus(), nil)
	ctx := context.Background()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				registry.bus.Publish("sess-1", New(TypeNavigation, "sess-1"))
			}
		}
	}()

	for i := 0; i < 200; i++ {
		ch, handle, err := registry.Subscribe(ctx, "sess-1", ScopeSession, "")
		require.NoError(t, err)
		first := <-ch
		assert.Equal(t, TypeConnected, first.Type, "iteration %d", i)
		handle.Detach()
	}

	close(stop)
	wg.Wait()
}

func TestRegistry_SubscribeDeniedNeverAttaches(t *testing.T) {
	registry := newRegistryWithExecution(t, "exec-1", "user-1")

	_, _, err := registry.Subscribe(context.Background(), "exec-1", ScopeExecution, "user-2")
	require.Error(t, err)
	assert.Equal(t, 0, registry.bus.SinkCount("exec-1"))
}
