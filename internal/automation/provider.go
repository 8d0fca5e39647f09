package automation

import (
	"context"
	"encoding/json"
	"errors"
)

// Provider is the remote browser-automation collaborator. Implementations
// wrap whatever SDK or transport actually drives the browser; callers only
// see this narrow surface.
type Provider interface {
	// CreateSession initializes a remote browser context. When opts.SessionID
	// is set the provider attempts to resume that context, but it may silently
	// allocate a fresh one; callers must treat Session.ID() as ground truth.
	CreateSession(ctx context.Context, opts SessionOptions) (Session, error)
}

// SessionOptions tune session creation.
type SessionOptions struct {
	// SessionID requests reuse of an existing remote context.
	SessionID string
	// Geolocation hints the proxy/egress region (e.g. "us", "eu").
	Geolocation string
	// Model selects the provider-side inference model for act/extract.
	Model string
}

// Session is one live remote browser context. A session is single-threaded on
// the provider side: callers must serialize primitive calls (the manager's
// per-session lock does this).
type Session interface {
	// ID returns the authoritative provider session id.
	ID() string

	Navigate(ctx context.Context, url string) error
	// Act performs a free-text instruction against the current page.
	Act(ctx context.Context, instruction string) error
	// Observe returns the provider's description of actionable elements.
	Observe(ctx context.Context, instruction string) (json.RawMessage, error)
	// Extract runs a structured extraction; schemaHint describes the desired
	// shape in the provider's vocabulary. The caller deserializes the result.
	Extract(ctx context.Context, instruction string, schemaHint string) (json.RawMessage, error)

	CurrentURL(ctx context.Context) (string, error)
	// PageText returns the rendered text content of the page body.
	PageText(ctx context.Context) (string, error)
	// FillField sets an input's value directly, without instruction
	// inference. Login flows use this so credentials never enter a prompt.
	FillField(ctx context.Context, selector, value string) error
	// Submit submits the form containing selector.
	Submit(ctx context.Context, selector string) error

	// DebugURL is the provider's debugger/inspector URL for this context.
	DebugURL() string
	// LiveViewURL fetches a human-viewable live URL. Best-effort: failures
	// here never abort a workflow.
	LiveViewURL(ctx context.Context) (string, error)

	Close(ctx context.Context) error
}

// Provider faults surfaced to orchestration code.
var (
	// ErrNoWorkers is returned when the fleet has no capacity.
	ErrNoWorkers = errors.New("no automation workers available")
	// ErrSessionClosed is returned on primitives against a released session.
	ErrSessionClosed = errors.New("automation session is closed")
)
