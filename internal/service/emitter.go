package service

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples services from whoever listens
// ─────────────────────────────────────────────────────────────

// Events emitted by the services.
const (
	EventRunStarted   = "pipeline:run-started"
	EventRunCompleted = "pipeline:run-completed"
	EventGroupFailed  = "pipeline:group-failed"
	EventSnapshot     = "dashboard:snapshot-saved"
)

// EventEmitter is an interface for emitting service events. The CLI logs
// them; tests record them.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes every event to a zap logger.
type LogEmitter struct {
	Logger *zap.Logger
}

func (l LogEmitter) Emit(_ context.Context, event string, data any) {
	l.Logger.Info("event", zap.String("event", event), zap.Any("data", data))
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
// Safe for concurrent use; watcher-triggered runs emit from their own
// goroutines.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Named returns the recorded events with the given name.
func (m *MockEmitter) Named(event string) []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EmittedEvent
	for _, e := range m.Events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
