package events

import (
	"context"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"skipper/internal/logging"
	"skipper/internal/storage"
)

// Scope distinguishes the two channel flavors.
type Scope int

const (
	// ScopeSession channels broadcast to anyone holding the session id; the
	// id itself is treated as an unguessable bearer token.
	ScopeSession Scope = iota
	// ScopeExecution channels are owned by exactly one user and require an
	// ownership check against the persisted execution record.
	ScopeExecution
)

// Authorization failures surfaced to the stream endpoints.
var (
	ErrNotFound        = errors.New("channel not found")
	ErrForbidden       = errors.New("requester does not own this channel")
	ErrUnauthenticated = errors.New("authentication required")
)

// ExecutionFinder is the slice of the external store the registry needs.
type ExecutionFinder interface {
	FindExecution(ctx context.Context, id string) (*storage.ExecutionRecord, error)
}

const ownerCacheSize = 512

// Registry authorizes subscribers and attaches them to bus channels. It is
// the single owner of subscription bookkeeping; nothing else attaches sinks.
type Registry struct {
	bus        *Bus
	executions ExecutionFinder
	ownerCache *lru.Cache[string, string]
	logger     logging.Logger
}

// NewRegistry builds a registry over bus. executions may be nil when the
// deployment has no execution-scoped channels; Subscribe then rejects that
// scope with ErrNotFound.
func NewRegistry(bus *Bus, executions ExecutionFinder) *Registry {
	cache, _ := lru.New[string, string](ownerCacheSize)
	return &Registry{
		bus:        bus,
		executions: executions,
		ownerCache: cache,
		logger:     logging.NewComponentLogger("ConnectionRegistry"),
	}
}

// Authorize checks whether requesterID may subscribe to channelID. Session
// channels default-allow. Execution channels require a matching
// triggeredByUserId on the persisted execution record.
func (r *Registry) Authorize(ctx context.Context, channelID string, scope Scope, requesterID string) error {
	if scope == ScopeSession {
		return nil
	}

	if requesterID == "" {
		return ErrUnauthenticated
	}

	if owner, ok := r.ownerCache.Get(channelID); ok {
		if owner != requesterID {
			return ErrForbidden
		}
		return nil
	}

	if r.executions == nil {
		return ErrNotFound
	}

	record, err := r.executions.FindExecution(ctx, channelID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		r.logger.Error("execution lookup failed for %s: %v", channelID, err)
		return ErrNotFound
	}

	r.ownerCache.Add(channelID, record.TriggeredByUserID)
	if record.TriggeredByUserID != requesterID {
		return ErrForbidden
	}
	return nil
}

// Subscribe authorizes and attaches in one step. On success the returned
// channel already holds a `connected` event, so the client can tell "stream
// open, nothing happened yet" apart from "stream never opened".
func (r *Registry) Subscribe(ctx context.Context, channelID string, scope Scope, requesterID string) (<-chan Event, *Handle, error) {
	if err := r.Authorize(ctx, channelID, scope, requesterID); err != nil {
		return nil, nil, err
	}

	// The connected event rides along into the attach critical section, so a
	// publish racing this subscribe can never land ahead of it.
	ch, handle := r.bus.Attach(channelID, New(TypeConnected, channelID))
	r.logger.Info("subscriber attached to channel %s (scope=%d, sinks=%d)",
		channelID, scope, r.bus.SinkCount(channelID))
	return ch, handle, nil
}
