// Package events provides the typed publish/subscribe dispatch used by
// the connection client and the session facade. Every subscription
// returns its own unsubscribe handle; there are no global listeners.
package events

import (
	"log"
	"sync"
	"time"
)

// Type identifies a category of event
type Type string

// Any subscribes to every event regardless of type
const Any Type = "*"

// Event is a single notification delivered to subscribers
type Event struct {
	Type      Type
	Timestamp time.Time
	Payload   interface{}
	Err       error
}

// Handler receives events. Handlers run synchronously on the emitting
// goroutine and must be short and non-blocking.
type Handler func(Event)

type subscription struct {
	id      int
	handler Handler
}

// Emitter dispatches events to registered handlers
type Emitter struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Type][]subscription
}

// NewEmitter creates an empty emitter
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[Type][]subscription)}
}

// Subscribe registers a handler for the given event type and returns an
// unsubscribe function. Unsubscribing twice is a no-op.
func (e *Emitter) Subscribe(t Type, h Handler) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subs[t] = append(e.subs[t], subscription{id: id, handler: h})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		list := e.subs[t]
		for i, s := range list {
			if s.id == id {
				e.subs[t] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers an event to all handlers subscribed to its type, then to
// Any subscribers. A panicking handler is recovered and logged so one
// bad subscriber cannot take down the dispatch path.
func (e *Emitter) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.subs[ev.Type])+len(e.subs[Any]))
	for _, s := range e.subs[ev.Type] {
		handlers = append(handlers, s.handler)
	}
	for _, s := range e.subs[Any] {
		handlers = append(handlers, s.handler)
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		e.dispatch(h, ev)
	}
}

func (e *Emitter) dispatch(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Events] Handler panic for %s: %v", ev.Type, r)
		}
	}()
	h(ev)
}

// SubscriberCount returns the number of handlers registered for a type
func (e *Emitter) SubscriberCount(t Type) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs[t])
}
