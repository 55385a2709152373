package jobs

import (
	"sync"

	"github.com/kozaktomas/photolink/internal/constants"
)

// Event types published to job listeners.
const (
	EventPhase      = "phase"
	EventProgress   = "progress"
	EventMatch      = "match"
	EventImageError = "image_error"
	EventCompleted  = "completed"
	EventFailed     = "failed"
	EventCancelled  = "cancelled"
)

// Event represents an event from a job.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for jobs.
type EventBroadcaster struct {
	listeners []chan Event
	closed    bool
	lmu       sync.RWMutex
}

// AddListener adds an event listener. Listeners added after the job finished
// get an already closed channel.
func (b *EventBroadcaster) AddListener() chan Event {
	b.lmu.Lock()
	defer b.lmu.Unlock()
	ch := make(chan Event, constants.EventChannelBuffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan Event) {
	b.lmu.Lock()
	defer b.lmu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// ListenerCount returns the number of subscribed listeners.
func (b *EventBroadcaster) ListenerCount() int {
	b.lmu.RLock()
	defer b.lmu.RUnlock()
	return len(b.listeners)
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event Event) {
	b.lmu.RLock()
	defer b.lmu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// closeListeners sends a final event and closes every listener.
func (b *EventBroadcaster) closeListeners(final Event) {
	b.lmu.Lock()
	defer b.lmu.Unlock()
	for _, listener := range b.listeners {
		select {
		case listener <- final:
		default:
		}
		close(listener)
	}
	b.listeners = nil
	b.closed = true
}
