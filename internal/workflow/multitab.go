package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"skipper/internal/automation"
	"skipper/internal/events"
	"skipper/internal/storage"
)

// TabStep is one page visit in a multi-tab workflow.
type TabStep struct {
	URL         string `json:"url"`
	Instruction string `json:"instruction,omitempty"`
}

// MultiTabWorkflow visits a sequence of pages in one session, running an
// optional instruction on each. It runs as an owned execution: progress is
// published on an execution-scoped channel that only userID may subscribe to,
// while the session-scoped channel carries the usual session lifecycle.
//
// Tabs are driven sequentially; the remote browser context is
// single-threaded, so there is no per-tab parallelism to exploit.
func (e *Executor) MultiTabWorkflow(ctx context.Context, req Request, userID string, tabs []TabStep) *Result {
	executionID := fmt.Sprintf("exec-%s", uuid.New().String())

	if e.store != nil {
		if err := e.store.SaveExecution(ctx, storage.ExecutionRecord{
			ID:                executionID,
			TriggeredByUserID: userID,
			Status:            "running",
		}); err != nil {
			e.logger.Warn("persist execution %s failed: %v", executionID, err)
		}
	}

	e.bus.Publish(executionID, events.New(events.TypeExecutionStarted, executionID).
		WithData(map[string]any{"tabs": len(tabs)}))

	sess, result := e.openSession(ctx, req)
	if sess == nil {
		e.bus.Publish(executionID, events.New(events.TypeExecutionError, executionID).
			WithMessage(result.Message))
		result.ExecutionID = executionID
		return result
	}
	result.ExecutionID = executionID

	e.bus.Publish(executionID, events.New(events.TypePlanCreated, executionID).
		WithData(map[string]any{"tabs": len(tabs), "sessionId": sess.ID}))

	for i, tab := range tabs {
		phase := map[string]any{"tab": i + 1, "url": tab.URL}
		e.bus.Publish(executionID, events.New(events.TypePhaseStart, executionID).WithData(phase))

		e.bus.Publish(executionID, events.New(events.TypeToolStart, executionID).
			WithData(map[string]any{"tool": "navigate", "url": tab.URL}))
		if err := sess.Navigate(ctx, tab.URL); err != nil {
			return e.failExecution(ctx, sess, req, result, executionID,
				fmt.Sprintf("tab %d navigation failed: %v", i+1, err))
		}
		e.bus.Publish(executionID, events.New(events.TypeToolComplete, executionID).
			WithData(map[string]any{"tool": "navigate", "url": tab.URL}))

		if tab.Instruction != "" {
			e.bus.Publish(executionID, events.New(events.TypeToolStart, executionID).
				WithData(map[string]any{"tool": "act", "instruction": tab.Instruction}))
			if err := sess.Act(ctx, tab.Instruction); err != nil {
				return e.failExecution(ctx, sess, req, result, executionID,
					fmt.Sprintf("tab %d action failed: %v", i+1, err))
			}
			e.bus.Publish(executionID, events.New(events.TypeToolComplete, executionID).
				WithData(map[string]any{"tool": "act", "instruction": tab.Instruction}))
		}

		e.bus.Publish(executionID, events.New(events.TypePhaseComplete, executionID).WithData(phase))
	}

	e.updateExecutionStatus(ctx, executionID, "completed")
	e.bus.Publish(executionID, events.New(events.TypeExecutionComplete, executionID).
		WithData(map[string]any{"tabs": len(tabs)}))

	return e.complete(ctx, sess, req, result, map[string]any{
		"executionId": executionID,
		"tabs":        len(tabs),
	})
}

func (e *Executor) failExecution(ctx context.Context, sess *automation.ManagedSession, req Request, result *Result, executionID, message string) *Result {
	e.updateExecutionStatus(ctx, executionID, "failed")
	e.bus.Publish(executionID, events.New(events.TypeExecutionError, executionID).
		WithMessage(message))
	return e.fail(ctx, sess, req, result, message)
}

func (e *Executor) updateExecutionStatus(ctx context.Context, executionID, status string) {
	if e.store == nil {
		return
	}
	record, err := e.store.FindExecution(ctx, executionID)
	if err != nil {
		e.logger.Warn("load execution %s for status update: %v", executionID, err)
		return
	}
	record.Status = status
	if err := e.store.SaveExecution(ctx, *record); err != nil {
		e.logger.Warn("persist execution %s status %s failed: %v", executionID, status, err)
	}
}
