package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// SessionStatus tracks the lifecycle of a persisted automation session record.
type SessionStatus string

const (
	SessionCreated   SessionStatus = "created"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// ErrNotFound is returned when a record does not exist in the store.
var ErrNotFound = errors.New("record not found")

// SessionRecord is the persisted view of a remote automation session, keyed by
// the provider's session id.
type SessionRecord struct {
	ID          string         `json:"id"`
	Status      SessionStatus  `json:"status"`
	URL         string         `json:"url,omitempty"`
	DebugURL    string         `json:"debugUrl,omitempty"`
	LiveViewURL string         `json:"liveViewUrl,omitempty"`
	OwnerUserID string         `json:"ownerUserId,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// ExecutionRecord identifies a workflow execution and the user that triggered
// it. Ownership checks for execution-scoped streams run against this record.
type ExecutionRecord struct {
	ID                string    `json:"id"`
	TriggeredByUserID string    `json:"triggeredByUserId"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
}

// ExtractedDataRecord holds one structured extraction result tied back to the
// session that produced it.
type ExtractedDataRecord struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionId"`
	DataType  string          `json:"dataType"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Store is the external persistence collaborator. The streaming core consumes
// it but does not own the schema behind it.
type Store interface {
	SaveSession(ctx context.Context, record SessionRecord) error
	UpdateSessionStatus(ctx context.Context, id string, status SessionStatus, metadata map[string]any) error
	FindSession(ctx context.Context, id string) (*SessionRecord, error)
	SaveExecution(ctx context.Context, record ExecutionRecord) error
	FindExecution(ctx context.Context, id string) (*ExecutionRecord, error)
	SaveExtractedData(ctx context.Context, record ExtractedDataRecord) error
}
