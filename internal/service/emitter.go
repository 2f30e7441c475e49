package service

import "context"

// ─────────────────────────────────────────────────────────────
// EventEmitter — decouples the service from its control surface
// ─────────────────────────────────────────────────────────────

// EventEmitter is an interface for emitting job lifecycle events. The
// CLI implements it with a logging emitter; the MCP server subscribes
// the same way. The service never knows who is listening, which makes
// it independently testable with a mock emitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}
