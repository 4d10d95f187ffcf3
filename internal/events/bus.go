package events

import (
	"context"
	"encoding/json"
	"sync"
)

// Event represents a server-sent event
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventBus fans lifecycle events out to SSE streams and in-process
// listeners. It implements core.EventSink.
type EventBus struct {
	subscribers map[string]chan Event
	bufferSize  int
	mu          sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string]chan Event),
		bufferSize:  32,
	}
}

// Subscribe adds a new subscriber and returns a channel for receiving events
func (eb *EventBus) Subscribe(ctx context.Context, id string) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	// Buffered so a slow reader drops events instead of stalling Publish
	ch := make(chan Event, eb.bufferSize)
	if old, exists := eb.subscribers[id]; exists {
		close(old)
	}
	eb.subscribers[id] = ch

	go func() {
		<-ctx.Done()
		eb.unsubscribe(id, ch)
	}()

	return ch
}

// Unsubscribe removes a subscriber
func (eb *EventBus) Unsubscribe(id string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if ch, exists := eb.subscribers[id]; exists {
		close(ch)
		delete(eb.subscribers, id)
	}
}

// unsubscribe removes id only if it still maps to ch, so a re-used id is
// not torn down by the previous subscription's context.
func (eb *EventBus) unsubscribe(id string, ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if cur, exists := eb.subscribers[id]; exists && cur == ch {
		close(ch)
		delete(eb.subscribers, id)
	}
}

// Publish sends an event to all subscribers without blocking
func (eb *EventBus) Publish(name string, payload any) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	event := Event{Type: name, Data: payload}
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is full; drop rather than block the order engine
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// FormatSSE formats an event as Server-Sent Event string
func FormatSSE(event Event) (string, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return "", err
	}

	return "event: " + event.Type + "\ndata: " + string(data) + "\n\n", nil
}
