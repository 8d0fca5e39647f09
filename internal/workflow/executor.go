package workflow

import (
	"context"
	"encoding/json"

	"skipper/internal/automation"
	"skipper/internal/events"
	"skipper/internal/logging"
	"skipper/internal/planner"
	"skipper/internal/storage"
)

// Request carries the common inputs of every automation mutation.
type Request struct {
	// Instruction is the free-text task.
	Instruction string
	// SessionID, when set, asks to continue an existing session.
	SessionID string
	// Geolocation hints the provider's egress region.
	Geolocation string
	// Model selects the provider-side inference model.
	Model string
	// KeepOpen leaves the remote session running after the operation so a
	// follow-up call can reuse it.
	KeepOpen bool
}

// Result is the definite outcome returned to the direct caller. Subscribers
// on the session's channel see the same lifecycle as events, but the stream
// is fire-and-forget; this response is the guaranteed delivery path for the
// outcome.
type Result struct {
	Success     bool            `json:"success"`
	SessionID   string          `json:"sessionId,omitempty"`
	ExecutionID string          `json:"executionId,omitempty"`
	DebugURL    string          `json:"debugUrl,omitempty"`
	LiveViewURL string          `json:"liveViewUrl,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Message     string          `json:"message,omitempty"`
}

// Executor drives automation primitives against managed sessions, publishing
// lifecycle events on the session's channel at every phase transition.
type Executor struct {
	manager *automation.Manager
	bus     *events.Bus
	store   storage.Store
	logger  logging.Logger
}

// NewExecutor wires the executor's collaborators.
func NewExecutor(manager *automation.Manager, bus *events.Bus, store storage.Store) *Executor {
	return &Executor{
		manager: manager,
		bus:     bus,
		store:   store,
		logger:  logging.NewComponentLogger("WorkflowExecutor"),
	}
}

// Manager exposes the session manager for flows layered on the executor.
func (e *Executor) Manager() *automation.Manager {
	return e.manager
}

// StartSession initializes (or resumes) a session without running any task.
func (e *Executor) StartSession(ctx context.Context, req Request) *Result {
	sess, result := e.openSession(ctx, req)
	if sess == nil {
		return result
	}

	e.persistActive(ctx, sess.ID, map[string]any{"instruction": req.Instruction})
	e.bus.Publish(sess.ID, events.New(events.TypeComplete, sess.ID))
	result.Success = true
	return result
}

// Chat executes one free-text instruction: resolve session, infer navigation,
// run the residual action, persist the terminal record.
func (e *Executor) Chat(ctx context.Context, req Request) *Result {
	sess, result := e.openSession(ctx, req)
	if sess == nil {
		return result
	}

	plan := planner.Decide(req.Instruction, req.SessionID != "")

	if plan.Navigate {
		e.bus.Publish(sess.ID, events.New(events.TypeNavigation, sess.ID).
			WithData(map[string]any{"url": plan.TargetURL}))
		if err := sess.Navigate(ctx, plan.TargetURL); err != nil {
			return e.fail(ctx, sess, req, result, "navigation failed: "+err.Error())
		}
	}

	if plan.Action != "" {
		e.bus.Publish(sess.ID, events.New(events.TypeActionStart, sess.ID).
			WithData(map[string]any{"action": plan.Action}))
		if err := sess.Act(ctx, plan.Action); err != nil {
			return e.fail(ctx, sess, req, result, "action failed: "+err.Error())
		}
		e.bus.Publish(sess.ID, events.New(events.TypeActionComplete, sess.ID).
			WithData(map[string]any{"action": plan.Action}))
	}

	return e.complete(ctx, sess, req, result, map[string]any{
		"instruction": req.Instruction,
		"url":         plan.TargetURL,
	})
}

// ObservePage returns the provider's description of actionable elements on
// the current page.
func (e *Executor) ObservePage(ctx context.Context, req Request) *Result {
	sess, result := e.openSession(ctx, req)
	if sess == nil {
		return result
	}

	instruction := req.Instruction
	if instruction == "" {
		instruction = "describe the interactive elements on this page"
	}

	e.bus.Publish(sess.ID, events.New(events.TypeActionStart, sess.ID).
		WithData(map[string]any{"action": "observe"}))
	data, err := sess.Observe(ctx, instruction)
	if err != nil {
		return e.fail(ctx, sess, req, result, "observe failed: "+err.Error())
	}
	e.bus.Publish(sess.ID, events.New(events.TypeActionComplete, sess.ID).
		WithData(map[string]any{"action": "observe"}))

	result.Data = data
	return e.complete(ctx, sess, req, result, map[string]any{"instruction": instruction})
}

// ExecuteActions runs a list of free-text actions sequentially in one session.
// A failing step aborts the remainder.
func (e *Executor) ExecuteActions(ctx context.Context, req Request, actions []string) *Result {
	sess, result := e.openSession(ctx, req)
	if sess == nil {
		return result
	}

	for i, action := range actions {
		e.bus.Publish(sess.ID, events.New(events.TypeActionStart, sess.ID).
			WithData(map[string]any{"action": action, "step": i + 1, "total": len(actions)}))
		if err := sess.Act(ctx, action); err != nil {
			return e.fail(ctx, sess, req, result, "action failed: "+err.Error())
		}
		e.bus.Publish(sess.ID, events.New(events.TypeActionComplete, sess.ID).
			WithData(map[string]any{"action": action, "step": i + 1}))
	}

	return e.complete(ctx, sess, req, result, map[string]any{"actions": len(actions)})
}

// ExtractData issues one structured extraction and persists the payload as an
// extracted-data record. Unlike the best-effort read workflows, a provider
// fault here is surfaced to the caller: this is an explicit mutation and the
// caller needs to know it did not complete.
func (e *Executor) ExtractData(ctx context.Context, req Request, dataType, schemaHint string) *Result {
	sess, result := e.openSession(ctx, req)
	if sess == nil {
		return result
	}

	e.bus.Publish(sess.ID, events.New(events.TypeActionStart, sess.ID).
		WithData(map[string]any{"action": "extract", "dataType": dataType}))
	data, err := sess.Extract(ctx, req.Instruction, schemaHint)
	if err != nil {
		return e.fail(ctx, sess, req, result, "extraction failed: "+err.Error())
	}
	e.bus.Publish(sess.ID, events.New(events.TypeActionComplete, sess.ID).
		WithData(map[string]any{"action": "extract", "dataType": dataType}))

	if e.store != nil {
		if err := e.store.SaveExtractedData(ctx, storage.ExtractedDataRecord{
			SessionID: sess.ID,
			DataType:  dataType,
			Payload:   data,
		}); err != nil {
			e.logger.Warn("persist extracted %s for session %s failed: %v", dataType, sess.ID, err)
		}
	}

	result.Data = data
	return e.complete(ctx, sess, req, result, map[string]any{"dataType": dataType})
}

// openSession acquires the session and publishes the opening lifecycle
// events. On failure it returns a nil session and a populated failure result.
func (e *Executor) openSession(ctx context.Context, req Request) (*automation.ManagedSession, *Result) {
	sess, err := e.manager.Acquire(ctx, req.SessionID, automation.SessionOptions{
		Geolocation: req.Geolocation,
		Model:       req.Model,
	})
	if err != nil {
		// The caller may already be subscribed on the requested channel.
		if req.SessionID != "" {
			e.bus.Publish(req.SessionID, events.New(events.TypeError, req.SessionID).
				WithMessage(err.Error()))
		}
		return nil, &Result{Success: false, SessionID: req.SessionID, Message: err.Error()}
	}

	result := &Result{SessionID: sess.ID, DebugURL: sess.DebugURL()}

	e.bus.Publish(sess.ID, events.New(events.TypeSessionCreated, sess.ID).
		WithData(map[string]any{"debugUrl": result.DebugURL, "reused": sess.Reused}))

	// Live-view resolution is best-effort: the workflow carries on without it.
	if liveURL, err := sess.LiveViewURL(ctx); err != nil {
		e.logger.Warn("live view url for session %s: %v", sess.ID, err)
	} else {
		result.LiveViewURL = liveURL
		e.bus.Publish(sess.ID, events.New(events.TypeLiveViewReady, sess.ID).
			WithData(map[string]any{"liveViewUrl": liveURL}))
	}

	return sess, result
}

// complete releases the session, persists the terminal record, and publishes
// the final status event. Persistence faults are logged and swallowed: the
// automation already happened and must not be reported as failed because
// bookkeeping failed.
func (e *Executor) complete(ctx context.Context, sess *automation.ManagedSession, req Request, result *Result, metadata map[string]any) *Result {
	if err := e.manager.Release(ctx, sess, req.KeepOpen); err != nil {
		e.logger.Warn("release session %s: %v", sess.ID, err)
	}

	e.persistTerminal(ctx, sess.ID, storage.SessionCompleted, metadata)
	e.bus.Publish(sess.ID, events.New(events.TypeComplete, sess.ID))

	result.Success = true
	return result
}

func (e *Executor) fail(ctx context.Context, sess *automation.ManagedSession, req Request, result *Result, message string) *Result {
	if err := e.manager.Release(ctx, sess, req.KeepOpen); err != nil {
		e.logger.Warn("release session %s: %v", sess.ID, err)
	}

	e.persistTerminal(ctx, sess.ID, storage.SessionFailed, map[string]any{"error": message})
	e.bus.Publish(sess.ID, events.New(events.TypeError, sess.ID).WithMessage(message))

	result.Success = false
	result.Message = message
	return result
}

func (e *Executor) persistTerminal(ctx context.Context, sessionID string, status storage.SessionStatus, metadata map[string]any) {
	if e.store == nil {
		return
	}
	if err := e.store.UpdateSessionStatus(ctx, sessionID, status, metadata); err != nil {
		e.logger.Warn("persist terminal status %s for session %s failed: %v", status, sessionID, err)
	}
}

func (e *Executor) persistActive(ctx context.Context, sessionID string, metadata map[string]any) {
	if e.store == nil {
		return
	}
	if err := e.store.UpdateSessionStatus(ctx, sessionID, storage.SessionActive, metadata); err != nil {
		e.logger.Warn("persist active status for session %s failed: %v", sessionID, err)
	}
}
