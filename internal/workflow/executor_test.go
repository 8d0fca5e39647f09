package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skipper/internal/automation"
	"skipper/internal/events"
	"skipper/internal/storage"
	"skipper/internal/testutil"
)

func newExecutor(provider *testutil.FakeProvider, store storage.Store) (*Executor, *events.Bus) {
	bus := events.NewBus()
	manager := automation.NewManager(provider, store, nil)
	return NewExecutor(manager, bus, store), bus
}

func collect(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(evs []events.Event) []events.Type {
	out := make([]events.Type, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func TestChat_FreshSessionFullPipeline(t *testing.T) {
	ctx := context.Background()
	provider := &testutil.FakeProvider{}
	store := storage.NewMemoryStore()
	executor, bus := newExecutor(provider, store)

	// FakeProvider ids are deterministic, so the subscriber can attach
	// before the mutation runs.
	ch, handle := bus.Attach("sess-1")
	defer handle.Detach()

	result := executor.Chat(ctx, Request{Instruction: "open stripe.com and click pricing"})

	require.True(t, result.Success)
	assert.Equal(t, "sess-1", result.SessionID)
	assert.NotEmpty(t, result.DebugURL)
	assert.NotEmpty(t, result.LiveViewURL)

	got := eventTypes(collect(ch))
	assert.Equal(t, []events.Type{
		events.TypeSessionCreated,
		events.TypeLiveViewReady,
		events.TypeNavigation,
		events.TypeActionStart,
		events.TypeActionComplete,
		events.TypeComplete,
	}, got)

	calls := provider.Created[0].CallLog()
	assert.Contains(t, calls, "navigate:https://stripe.com")
	assert.Contains(t, calls, "act:click pricing")

	record, err := store.FindSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, storage.SessionCompleted, record.Status)
}

func TestChat_TwoSubscribersIdenticalOrder(t *testing.T) {
	ctx := context.Background()
	provider := &testutil.FakeProvider{}
	executor, bus := newExecutor(provider, storage.NewMemoryStore())

	ch1, h1 := bus.Attach("sess-1")
	ch2, h2 := bus.Attach("sess-1")
	defer h1.Detach()
	defer h2.Detach()

	result := executor.Chat(ctx, Request{Instruction: "open stripe.com and click pricing"})
	require.True(t, result.Success)

	assert.Equal(t, eventTypes(collect(ch1)), eventTypes(collect(ch2)))
}

func TestChat_ReuseSkipsNavigation(t *testing.T) {
	ctx := context.Background()
	provider := &testutil.FakeProvider{}
	executor, bus := newExecutor(provider, storage.NewMemoryStore())

	start := executor.StartSession(ctx, Request{KeepOpen: true})
	require.True(t, start.Success)

	ch, handle := bus.Attach(start.SessionID)
	defer handle.Detach()

	result := executor.Chat(ctx, Request{
		Instruction: "click the first contact in the list",
		SessionID:   start.SessionID,
		KeepOpen:    true,
	})
	require.True(t, result.Success)

	got := eventTypes(collect(ch))
	assert.NotContains(t, got, events.TypeNavigation)

	calls := provider.Created[0].CallLog()
	assert.Contains(t, calls, "act:click the first contact in the list")
}

func TestChat_NavigationFailurePublishesError(t *testing.T) {
	ctx := context.Background()
	sess := &testutil.FakeSession{SessionID: "sess-a", NavigateErr: errors.New("net down")}
	provider := &testutil.FakeProvider{Next: []*testutil.FakeSession{sess}}
	store := storage.NewMemoryStore()
	executor, bus := newExecutor(provider, store)

	ch, handle := bus.Attach("sess-a")
	defer handle.Detach()

	result := executor.Chat(ctx, Request{Instruction: "open stripe.com and click pricing"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "navigation failed")

	got := eventTypes(collect(ch))
	assert.Equal(t, events.TypeError, got[len(got)-1])

	record, err := store.FindSession(ctx, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, storage.SessionFailed, record.Status)
}

func TestChat_LiveViewFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	sess := &testutil.FakeSession{SessionID: "sess-a", LiveViewErr: errors.New("no live view")}
	provider := &testutil.FakeProvider{Next: []*testutil.FakeSession{sess}}
	executor, _ := newExecutor(provider, storage.NewMemoryStore())

	result := executor.Chat(ctx, Request{Instruction: "https://example.com/path"})

	require.True(t, result.Success)
	assert.Empty(t, result.LiveViewURL)
}

type failingStore struct {
	*storage.MemoryStore
}

func (f *failingStore) UpdateSessionStatus(ctx context.Context, id string, status storage.SessionStatus, metadata map[string]any) error {
	return errors.New("store offline")
}

func TestChat_StoreFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	provider := &testutil.FakeProvider{}
	store := &failingStore{storage.NewMemoryStore()}
	executor, _ := newExecutor(provider, store)

	result := executor.Chat(ctx, Request{Instruction: "https://example.com/path"})
	assert.True(t, result.Success, "a failed bookkeeping write must not fail the automation outcome")
}

func TestExecuteActions_EmitsPairPerStep(t *testing.T) {
	ctx := context.Background()
	provider := &testutil.FakeProvider{}
	executor, bus := newExecutor(provider, storage.NewMemoryStore())

	ch, handle := bus.Attach("sess-1")
	defer handle.Detach()

	result := executor.ExecuteActions(ctx, Request{}, []string{"click login", "fill the form"})
	require.True(t, result.Success)

	var starts, completes int
	for _, ev := range collect(ch) {
		switch ev.Type {
		case events.TypeActionStart:
			starts++
		case events.TypeActionComplete:
			completes++
		}
	}
	assert.Equal(t, 2, starts)
	assert.Equal(t, 2, completes)
}

func TestExtractData_PersistsRecord(t *testing.T) {
	ctx := context.Background()
	sess := &testutil.FakeSession{
		SessionID:     "sess-a",
		ExtractResult: []byte(`{"items":[{"name":"Jane"}]}`),
	}
	provider := &testutil.FakeProvider{Next: []*testutil.FakeSession{sess}}
	store := storage.NewMemoryStore()
	executor, _ := newExecutor(provider, store)

	result := executor.ExtractData(ctx, Request{Instruction: "extract all contacts"}, "contacts", "list of contacts")

	require.True(t, result.Success)
	assert.JSONEq(t, `{"items":[{"name":"Jane"}]}`, string(result.Data))

	records := store.ExtractedData("sess-a")
	require.Len(t, records, 1)
	assert.Equal(t, "contacts", records[0].DataType)
}

func TestMultiTab_ExecutionEventsAndOwnership(t *testing.T) {
	ctx := context.Background()
	provider := &testutil.FakeProvider{}
	store := storage.NewMemoryStore()
	executor, bus := newExecutor(provider, store)

	// The execution id is minted inside the call; subscribe via a session
	// channel for ordering and verify execution events through the record.
	ch, handle := bus.Attach("sess-1")
	defer handle.Detach()

	result := executor.MultiTabWorkflow(ctx, Request{}, "user-9", []TabStep{
		{URL: "https://a.example.com", Instruction: "accept cookies"},
		{URL: "https://b.example.com"},
	})

	require.True(t, result.Success)
	require.NotEmpty(t, result.ExecutionID)

	record, err := store.FindExecution(ctx, result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "user-9", record.TriggeredByUserID)
	assert.Equal(t, "completed", record.Status)

	calls := provider.Created[0].CallLog()
	assert.Contains(t, calls, "navigate:https://a.example.com")
	assert.Contains(t, calls, "act:accept cookies")
	assert.Contains(t, calls, "navigate:https://b.example.com")

	got := eventTypes(collect(ch))
	assert.Contains(t, got, events.TypeSessionCreated)
}

func TestMultiTab_FailureMarksExecutionFailed(t *testing.T) {
	ctx := context.Background()
	sess := &testutil.FakeSession{SessionID: "sess-a", ActErr: errors.New("element missing")}
	provider := &testutil.FakeProvider{Next: []*testutil.FakeSession{sess}}
	store := storage.NewMemoryStore()
	executor, _ := newExecutor(provider, store)

	result := executor.MultiTabWorkflow(ctx, Request{}, "user-9", []TabStep{
		{URL: "https://a.example.com", Instruction: "accept cookies"},
	})

	assert.False(t, result.Success)

	record, err := store.FindExecution(ctx, result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "failed", record.Status)
}
