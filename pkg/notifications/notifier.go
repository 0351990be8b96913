package notifications

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Notifier shows a notification to a user.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// NoOpNotifier discards every notification.
type NoOpNotifier struct{}

func (NoOpNotifier) Notify(context.Context, Notification) error { return nil }

// MemoryNotifier records notifications in arrival order. Safe for concurrent use.
type MemoryNotifier struct {
	mu    sync.Mutex
	items []Notification
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (m *MemoryNotifier) Notify(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, n)
	return nil
}

// All returns a copy of every recorded notification.
func (m *MemoryNotifier) All() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.items))
	copy(out, m.items)
	return out
}

// OfType returns recorded notifications of the given type.
func (m *MemoryNotifier) OfType(typ Type) []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.items {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

// Count returns how many notifications of the given type were recorded.
func (m *MemoryNotifier) Count(typ Type) int {
	return len(m.OfType(typ))
}

func (m *MemoryNotifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	level := slog.LevelInfo
	switch n.Type {
	case TypeWarning:
		level = slog.LevelWarn
	case TypeError:
		level = slog.LevelError
	}
	l.log.LogAttrs(ctx, level, n.Message,
		slog.String("notification_id", n.ID),
		slog.String("notification_type", string(n.Type)),
		logger.UserID(n.UserID),
	)
	return nil
}

// MultiNotifier fans a notification out to several notifiers. Failures are
// logged and do not stop delivery to the remaining notifiers.
type MultiNotifier struct {
	notifiers []Notifier
	log       *slog.Logger
}

func NewMultiNotifier(log *slog.Logger, notifiers ...Notifier) *MultiNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &MultiNotifier{notifiers: notifiers, log: log}
}

func (m *MultiNotifier) Notify(ctx context.Context, n Notification) error {
	for i, nt := range m.notifiers {
		if err := nt.Notify(ctx, n); err != nil {
			m.log.LogAttrs(ctx, slog.LevelError, "failed to deliver notification",
				slog.String("notification_id", n.ID),
				slog.Int("notifier_index", i),
				logger.UserID(n.UserID),
				logger.Error(err),
			)
		}
	}
	return nil
}
