package events

import (
	"errors"
	"testing"
)

func TestEmitDeliversToTypeAndAnySubscribers(t *testing.T) {
	e := NewEmitter()

	var typed, wildcard []Event
	e.Subscribe("tick", func(ev Event) { typed = append(typed, ev) })
	e.Subscribe(Any, func(ev Event) { wildcard = append(wildcard, ev) })

	e.Emit(Event{Type: "tick"})
	e.Emit(Event{Type: "tock", Err: errors.New("x")})

	if len(typed) != 1 {
		t.Errorf("typed handler saw %d events, want 1", len(typed))
	}
	if len(wildcard) != 2 {
		t.Errorf("wildcard handler saw %d events, want 2", len(wildcard))
	}
	if typed[0].Timestamp.IsZero() {
		t.Error("emit did not stamp a timestamp")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	e := NewEmitter()

	calls := 0
	unsub := e.Subscribe("tick", func(Event) { calls++ })
	e.Emit(Event{Type: "tick"})
	unsub()
	unsub() // second call is a no-op
	e.Emit(Event{Type: "tick"})

	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
	if got := e.SubscriberCount("tick"); got != 0 {
		t.Errorf("subscriber count = %d, want 0", got)
	}
}

func TestPanickingHandlerDoesNotStopDispatch(t *testing.T) {
	e := NewEmitter()

	delivered := false
	e.Subscribe("tick", func(Event) { panic("bad handler") })
	e.Subscribe("tick", func(Event) { delivered = true })

	e.Emit(Event{Type: "tick"})
	if !delivered {
		t.Error("later handler was not called after an earlier panic")
	}
}
