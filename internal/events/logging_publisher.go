package events

import (
	"context"
	"sync"

	"github.com/alexisbeaulieu97/reportcheck/internal/logger"
)

// LoggingPublisher writes each event as a structured log entry and then
// fans it out to subscribers.
type LoggingPublisher struct {
	logger *logger.Logger
	subs   map[string][]subscriptionEntry
	nextID int
	mu     sync.RWMutex
}

// NewLoggingPublisher creates a publisher bound to log. A nil logger still
// delivers to subscribers.
func NewLoggingPublisher(log *logger.Logger) *LoggingPublisher {
	return &LoggingPublisher{
		logger: log,
		subs:   make(map[string][]subscriptionEntry),
	}
}

// Publish logs the event and runs matching handlers in registration order.
func (p *LoggingPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || event.Type == "" {
		return nil
	}

	p.mu.RLock()
	handlers := append([]subscriptionEntry(nil), p.subs[event.Type]...)
	handlers = append(handlers, p.subs[All]...)
	p.mu.RUnlock()

	switch {
	case event.Type == StageRetrying:
		p.logger.Warn("workflow event", append(event.Fields(), "error", event.Err)...)
	case event.Err != nil:
		p.logger.Error(event.Err, "workflow event", event.Fields()...)
	default:
		p.logger.Debug("workflow event", event.Fields()...)
	}

	for _, entry := range handlers {
		if entry.handler == nil {
			continue
		}
		if err := entry.handler(ctx, event); err != nil {
			p.logger.Warn("event handler failed", "event_type", event.Type, "error", err)
		}
	}

	return nil
}

// Subscribe registers handler for eventType, or for every event with All.
func (p *LoggingPublisher) Subscribe(eventType string, handler Handler) Subscription {
	if p == nil || handler == nil {
		return noopSubscription{}
	}
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs[eventType] = append(p.subs[eventType], subscriptionEntry{id: id, handler: handler})
	p.mu.Unlock()

	return subscription{
		cancel: func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			handlers := p.subs[eventType]
			for i, entry := range handlers {
				if entry.id == id {
					p.subs[eventType] = append(handlers[:i], handlers[i+1:]...)
					break
				}
			}
		},
	}
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}

type subscription struct {
	cancel func()
}

func (s subscription) Unsubscribe() {
	if s.cancel != nil {
		s.cancel()
	}
}

type subscriptionEntry struct {
	id      int
	handler Handler
}
