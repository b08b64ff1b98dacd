// Package notify delivers user-visible toast notifications.
package notify

import (
	"sync"
	"time"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a toast-style message shown to the user. Titles are
// literal strings the UI displays verbatim.
type Notification struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Level     Level  `json:"level"`
	CreatedAt int64  `json:"created_at"`
}

// Titles used across the sync core.
const (
	TitleSyncStarted      = "Sync Started"
	TitleSyncComplete     = "Sync Complete"
	TitleSyncFailed       = "Sync Failed"
	TitleConflictDetected = "Conflict Detected"
	TitleConflictResolved = "Conflict Resolved"
	TitleImportFailed     = "Import Failed"
	TitleImportComplete   = "Import Complete"
)

// Sink receives notifications. Implementations must be safe for
// concurrent use.
type Sink interface {
	Notify(n Notification)
}

// Func adapts a function to the Sink interface.
type Func func(n Notification)

// Notify implements Sink.
func (f Func) Notify(n Notification) {
	f(n)
}

// Discard is a Sink that drops every notification.
var Discard = Func(func(Notification) {})

// New builds a Notification stamped with the current time.
func New(title, body string, level Level) Notification {
	return Notification{
		Title:     title,
		Body:      body,
		Level:     level,
		CreatedAt: time.Now().Unix(),
	}
}

// Memory is a Sink that records notifications for tests and for the
// in-app notification center.
type Memory struct {
	mu    sync.Mutex
	items []Notification
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Notify implements Sink.
func (m *Memory) Notify(n Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, n)
}

// All returns a copy of the recorded notifications.
func (m *Memory) All() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.items...)
}

// Reset clears the recorded notifications.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
}
