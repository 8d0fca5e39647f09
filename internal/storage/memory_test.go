package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.SaveSession(ctx, SessionRecord{
		ID:     "sess-1",
		Status: SessionCreated,
		URL:    "https://example.com",
	})
	require.NoError(t, err)

	err = store.UpdateSessionStatus(ctx, "sess-1", SessionCompleted, map[string]any{
		"instruction": "open example.com",
	})
	require.NoError(t, err)

	record, err := store.FindSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, SessionCompleted, record.Status)
	assert.Equal(t, "open example.com", record.Metadata["instruction"])
}

func TestMemoryStore_UpdateMissingSession(t *testing.T) {
	store := NewMemoryStore()

	err := store.UpdateSessionStatus(context.Background(), "nope", SessionFailed, nil)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_FindExecution(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.SaveExecution(ctx, ExecutionRecord{
		ID:                "exec-1",
		TriggeredByUserID: "user-7",
	}))

	record, err := store.FindExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "user-7", record.TriggeredByUserID)

	_, err = store.FindExecution(ctx, "exec-2")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_ExtractedData(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	payload, _ := json.Marshal(map[string]string{"name": "Jane"})
	require.NoError(t, store.SaveExtractedData(ctx, ExtractedDataRecord{
		SessionID: "sess-1",
		DataType:  "contacts",
		Payload:   payload,
	}))

	records := store.ExtractedData("sess-1")
	require.Len(t, records, 1)
	assert.Equal(t, "contacts", records[0].DataType)
	assert.NotEmpty(t, records[0].ID)
}
