// Package events records wizard transitions for later analysis.
package events

import (
	"fmt"
	"sync"
	"time"
)

// Event types emitted by the wizard.
const (
	TypeModulesRequested = "modules_requested"
	TypeModulesGenerated = "modules_generated"
	TypeModuleSelected   = "module_selected"
	TypeContentGenerated = "content_generated"
	TypeGenerationFailed = "generation_failed"
	TypeValidationFailed = "validation_failed"
	TypeBackToModules    = "back_to_modules"
	TypeBackToTopic      = "back_to_topic"
	TypeReset            = "reset"
)

// Event is a single recorded transition.
type Event struct {
	SessionID string
	Type      string
	Step      string
	Data      map[string]any
	CreatedAt time.Time
}

// Logger defines event logging behavior.
type Logger interface {
	LogEvent(event Event) error
}

// NopLogger ignores all events.
type NopLogger struct{}

func (NopLogger) LogEvent(Event) error {
	return nil
}

// MemoryLogger stores events in memory for tests.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{
		events: []Event{},
	}
}

func (l *MemoryLogger) LogEvent(event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

// Events returns a copy of everything logged so far.
func (l *MemoryLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// Types returns the logged event types in order.
func (l *MemoryLogger) Types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	types := make([]string, len(l.events))
	for i, e := range l.events {
		types[i] = e.Type
	}
	return types
}
