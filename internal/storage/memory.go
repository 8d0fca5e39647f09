package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with in-memory maps. It is the default store
// for local runs and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*SessionRecord
	executions map[string]*ExecutionRecord
	extracted  map[string][]*ExtractedDataRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]*SessionRecord),
		executions: make(map[string]*ExecutionRecord),
		extracted:  make(map[string][]*ExtractedDataRecord),
	}
}

func (s *MemoryStore) SaveSession(ctx context.Context, record SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	s.sessions[record.ID] = &record
	return nil
}

func (s *MemoryStore) UpdateSessionStatus(ctx context.Context, id string, status SessionStatus, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.sessions[id]
	if !exists {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	record.Status = status
	record.UpdatedAt = time.Now()
	if len(metadata) > 0 {
		if record.Metadata == nil {
			record.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			record.Metadata[k] = v
		}
	}
	return nil
}

func (s *MemoryStore) FindSession(ctx context.Context, id string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.sessions[id]
	if !exists {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryStore) SaveExecution(ctx context.Context, record ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = fmt.Sprintf("exec-%s", uuid.New().String())
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	s.executions[record.ID] = &record
	return nil
}

func (s *MemoryStore) FindExecution(ctx context.Context, id string) (*ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.executions[id]
	if !exists {
		return nil, fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryStore) SaveExtractedData(ctx context.Context, record ExtractedDataRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = fmt.Sprintf("data-%s", uuid.New().String())
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	s.extracted[record.SessionID] = append(s.extracted[record.SessionID], &record)
	return nil
}

// ExtractedData returns all extraction records persisted for a session.
func (s *MemoryStore) ExtractedData(sessionID string) []*ExtractedDataRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.extracted[sessionID]
	out := make([]*ExtractedDataRecord, len(records))
	copy(out, records)
	return out
}
