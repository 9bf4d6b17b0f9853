package session

import (
	"context"
	"sync"

	"github.com/go-go-golems/shopwire/pkg/inference/engine"
	"github.com/pkg/errors"
)

var ErrExecutionHandleNil = errors.New("execution handle is nil")

// ExecutionHandle represents a single in-flight turn. It is cancelable and
// waitable; cancellation goes through the turn's context.
type ExecutionHandle struct {
	SessionID string
	TurnID    string

	done chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	result *engine.Result
	err    error
}

func newExecutionHandle(sessionID, turnID string, cancel context.CancelFunc) *ExecutionHandle {
	return &ExecutionHandle{
		SessionID: sessionID,
		TurnID:    turnID,
		done:      make(chan struct{}),
		cancel:    cancel,
	}
}

func (h *ExecutionHandle) setResult(result *engine.Result, err error) {
	h.mu.Lock()
	h.result = result
	h.err = err
	cancel := h.cancel
	h.cancel = nil
	close(h.done)
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Cancel cancels the in-flight turn. It is safe to call multiple times.
func (h *ExecutionHandle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the turn completes.
func (h *ExecutionHandle) Wait() (*engine.Result, error) {
	if h == nil {
		return nil, ErrExecutionHandleNil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

func (h *ExecutionHandle) IsRunning() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
