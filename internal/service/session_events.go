package service

import (
	"context"
	"sync"
	"time"
)

// SessionEventType names a change in a user's session.
type SessionEventType string

const (
	SessionSignedIn      SessionEventType = "SIGNED_IN"
	SessionSignedOut     SessionEventType = "SIGNED_OUT"
	SessionPasswordReset SessionEventType = "PASSWORD_RESET"
)

// SessionEvent is delivered to every subscriber of SessionEvents.
type SessionEvent struct {
	Type   SessionEventType
	UserID string
	At     time.Time
}

// SessionEvents is an observer registry for session changes. Subscribers run
// synchronously on the publishing goroutine in subscription order.
type SessionEvents struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(context.Context, SessionEvent)
	// order keeps delivery deterministic across map iteration.
	order []int
}

// NewSessionEvents constructs an empty registry.
func NewSessionEvents() *SessionEvents {
	return &SessionEvents{subs: make(map[int]func(context.Context, SessionEvent))}
}

// Subscribe registers fn and returns a function removing it again.
func (e *SessionEvents) Subscribe(fn func(context.Context, SessionEvent)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = fn
	e.order = append(e.order, id)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
			for i, v := range e.order {
				if v == id {
					e.order = append(e.order[:i], e.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers ev to the current subscribers. A nil registry is a no-op.
func (e *SessionEvents) Publish(ctx context.Context, ev SessionEvent) {
	if e == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	e.mu.RLock()
	handlers := make([]func(context.Context, SessionEvent), 0, len(e.order))
	for _, id := range e.order {
		handlers = append(handlers, e.subs[id])
	}
	e.mu.RUnlock()

	for _, fn := range handlers {
		fn(ctx, ev)
	}
}
