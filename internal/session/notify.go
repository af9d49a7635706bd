package session

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level classifies a workflow notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is an outcome message emitted by the workflow controller for
// consumption by a toast UI or equivalent collaborator.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier receives workflow notifications.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to the global logger.
type LogNotifier struct{}

func (LogNotifier) Notify(n Notification) {
	switch n.Level {
	case LevelError:
		zap.L().Warn("workflow notification", zap.String("message", n.Message))
	default:
		zap.L().Info("workflow notification",
			zap.String("level", string(n.Level)),
			zap.String("message", n.Message),
		)
	}
}

// Recorder retains notifications in order, for tests and for API exposure.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// Notifications returns a copy of all recorded notifications.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Clear discards recorded notifications.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}

type multiNotifier []Notifier

func (m multiNotifier) Notify(n Notification) {
	for _, sub := range m {
		sub.Notify(n)
	}
}

// MultiNotifier fans notifications out to all the given notifiers.
func MultiNotifier(notifiers ...Notifier) Notifier {
	return multiNotifier(notifiers)
}

func notify(n Notifier, level Level, msg string) {
	if n == nil {
		return
	}
	n.Notify(Notification{Level: level, Message: msg, At: time.Now().UTC()})
}
