package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"skipper/internal/logging"
	"skipper/internal/storage"
)

// SessionMetrics is the slice of the metrics collector the manager reports to.
type SessionMetrics interface {
	SessionStarted()
	SessionFailed()
}

type nopSessionMetrics struct{}

func (nopSessionMetrics) SessionStarted() {}
func (nopSessionMetrics) SessionFailed()  {}

// ManagedSession is a live session plus local bookkeeping. Its embedded
// Session serializes primitive calls: a remote browser context is
// single-threaded from the provider's perspective, so two concurrent
// primitives against one session are never allowed.
type ManagedSession struct {
	Session

	// ID is the authoritative provider session id, re-read from the live
	// handle after initialization. It may differ from the id the caller
	// asked to reuse.
	ID string
	// Reused reports whether this handle was found in local bookkeeping
	// rather than freshly initialized.
	Reused bool

	entry *sessionEntry
}

type sessionEntry struct {
	mu   sync.Mutex
	sess Session
}

// lockedSession serializes every primitive on the entry mutex.
type lockedSession struct {
	entry *sessionEntry
}

func (l *lockedSession) ID() string {
	return l.entry.sess.ID()
}

func (l *lockedSession) Navigate(ctx context.Context, url string) error {
	l.entry.mu.Lock()
	defer l.entry.mu.Unlock()
	return l.entry.sess.Navigate(ctx, url)
}

func (l *lockedSession) Act(ctx context.Context, instruction string) error {
	l.entry.mu.Lock()
	defer l.entry.mu.Unlock()
	return l.entry.sess.Act(ctx, instruction)
}

func (l *lockedSession) Observe(ctx context.Context, instruction string) (json.RawMessage, error) {
	l.entry.mu.Lock()
	defer l.entry.mu.Unlock()
	return l.entry.sess.Observe(ctx, instruction)
}

func (l *lockedSession) Extract(ctx context.Context, instruction string, schemaHint string) (json.RawMessage, error) {
	l.entry.mu.Lock()
	defer l.entry.mu.Unlock()
	return l.entry.sess.Extract(ctx, instruction, schemaHint)
}

func (l *lockedSession) CurrentURL(ctx context.Context) (string, error) {
	l.entry.mu.Lock()
	defer l.entry.mu.Unlock()
	return l.entry.sess.CurrentURL(ctx)
}

func (l *lockedSession) PageText(ctx context.Context) (string, error) {
	l.entry.mu.Lock()
	defer l.entry.mu.Unlock()
	return l.entry.sess.PageText(ctx)
}

func (l *lockedSession) FillField(ctx context.Context, selector, value string) error {
	l.entry.mu.Lock()
	defer l.entry.mu.Unlock()
	return l.entry.sess.FillField(ctx, selector, value)
}

func (l *lockedSession) Submit(ctx context.Context, selector string) error {
	l.entry.mu.Lock()
	defer l.entry.mu.Unlock()
	return l.entry.sess.Submit(ctx, selector)
}

func (l *lockedSession) DebugURL() string {
	return l.entry.sess.DebugURL()
}

func (l *lockedSession) LiveViewURL(ctx context.Context) (string, error) {
	l.entry.mu.Lock()
	defer l.entry.mu.Unlock()
	return l.entry.sess.LiveViewURL(ctx)
}

func (l *lockedSession) Close(ctx context.Context) error {
	l.entry.mu.Lock()
	defer l.entry.mu.Unlock()
	return l.entry.sess.Close(ctx)
}

// Manager owns the lifecycle of remote automation sessions: create-vs-reuse,
// per-session sequencing, and close/release.
type Manager struct {
	provider Provider
	store    storage.Store
	logger   logging.Logger
	metrics  SessionMetrics

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// NewManager builds a Manager. metrics may be nil.
func NewManager(provider Provider, store storage.Store, metrics SessionMetrics) *Manager {
	if metrics == nil {
		metrics = nopSessionMetrics{}
	}
	return &Manager{
		provider: provider,
		store:    store,
		logger:   logging.NewComponentLogger("SessionManager"),
		metrics:  metrics,
		sessions: make(map[string]*sessionEntry),
	}
}

// Acquire resolves a session for a task. With existingID set it first checks
// local bookkeeping, then asks the provider to resume; either way the id on
// the returned handle is read back from the live session, never assumed from
// the caller, since the provider may silently allocate a new context.
func (m *Manager) Acquire(ctx context.Context, existingID string, opts SessionOptions) (*ManagedSession, error) {
	if existingID != "" {
		m.mu.Lock()
		entry, ok := m.sessions[existingID]
		m.mu.Unlock()
		if ok {
			return &ManagedSession{
				Session: &lockedSession{entry: entry},
				ID:      existingID,
				Reused:  true,
				entry:   entry,
			}, nil
		}
		opts.SessionID = existingID
	}

	sess, err := m.provider.CreateSession(ctx, opts)
	if err != nil {
		m.metrics.SessionFailed()
		// Partial progress is recorded, not silently dropped: when the caller
		// named a session, leave a failed record behind it.
		if existingID != "" {
			m.persistFailure(ctx, existingID, err)
		}
		return nil, fmt.Errorf("initialize automation session: %w", err)
	}

	id := sess.ID()
	entry := &sessionEntry{sess: sess}

	m.mu.Lock()
	m.sessions[id] = entry
	m.mu.Unlock()

	m.metrics.SessionStarted()
	if existingID != "" && existingID != id {
		m.logger.Info("provider allocated new session %s for reuse request %s", id, existingID)
	}

	m.persistSave(ctx, storage.SessionRecord{
		ID:       id,
		Status:   storage.SessionCreated,
		DebugURL: sess.DebugURL(),
	})

	return &ManagedSession{
		Session: &lockedSession{entry: entry},
		ID:      id,
		entry:   entry,
	}, nil
}

// Release tears down local bookkeeping. With keepOpen the remote session is
// left running and expires on the provider's own timeout; otherwise it is
// closed explicitly.
func (m *Manager) Release(ctx context.Context, sess *ManagedSession, keepOpen bool) error {
	if sess == nil {
		return nil
	}

	m.mu.Lock()
	delete(m.sessions, sess.ID)
	m.mu.Unlock()

	if keepOpen {
		m.logger.Debug("session %s kept open, local bookkeeping released", sess.ID)
		return nil
	}
	if err := sess.Close(ctx); err != nil {
		return fmt.Errorf("close session %s: %w", sess.ID, err)
	}
	return nil
}

// CloseAll closes every tracked session. Called at process shutdown.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	entries := make(map[string]*sessionEntry, len(m.sessions))
	for id, entry := range m.sessions {
		entries[id] = entry
	}
	m.sessions = make(map[string]*sessionEntry)
	m.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for id, entry := range entries {
		g.Go(func() error {
			locked := &lockedSession{entry: entry}
			if err := locked.Close(ctx); err != nil {
				m.logger.Warn("close session %s: %v", id, err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Active returns the number of locally tracked sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) persistSave(ctx context.Context, record storage.SessionRecord) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveSession(ctx, record); err != nil {
		m.logger.Warn("persist session %s failed: %v", record.ID, err)
	}
}

func (m *Manager) persistFailure(ctx context.Context, id string, cause error) {
	if m.store == nil {
		return
	}
	metadata := map[string]any{"error": cause.Error()}
	if err := m.store.UpdateSessionStatus(ctx, id, storage.SessionFailed, metadata); err != nil {
		// No prior record for this id; write one so the failure is visible.
		saveErr := m.store.SaveSession(ctx, storage.SessionRecord{
			ID:       id,
			Status:   storage.SessionFailed,
			Metadata: metadata,
		})
		if saveErr != nil {
			m.logger.Warn("persist failed status for session %s: %v", id, saveErr)
		}
	}
}
