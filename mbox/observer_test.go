package mbox

import (
	"testing"

	"github.com/mikeshx/omap/hal"
)

func TestObserverDispatchOrder(t *testing.T) {
	var l observerList
	var order []int

	first := ObserverFunc(func(hal.Message) { order = append(order, 1) })
	second := ObserverFunc(func(hal.Message) { order = append(order, 2) })
	third := ObserverFunc(func(hal.Message) { order = append(order, 3) })
	l.add(&first)
	l.add(&second)
	l.add(&third)

	l.dispatch(0)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("dispatch order = %v, want [1 2 3]", order)
	}
}

func TestObserverRemove(t *testing.T) {
	var l observerList
	var got []string

	a := ObserverFunc(func(hal.Message) { got = append(got, "a") })
	b := ObserverFunc(func(hal.Message) { got = append(got, "b") })
	l.add(&a)
	l.add(&b)
	l.remove(&a)

	l.dispatch(0)
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("dispatch after remove = %v, want [b]", got)
	}

	// Removing an observer that is not registered is a no-op.
	l.remove(&a)
	l.dispatch(0)
	if len(got) != 2 {
		t.Fatalf("dispatch count = %d, want 2", len(got))
	}
}

func TestObserverRegistrationDuringDispatch(t *testing.T) {
	var l observerList
	lateCalls := 0

	late := ObserverFunc(func(hal.Message) { lateCalls++ })
	first := ObserverFunc(func(hal.Message) { l.add(&late) })
	l.add(&first)

	// The snapshot was taken before the registration: late sees nothing.
	l.dispatch(0)
	if lateCalls != 0 {
		t.Fatalf("late observer calls = %d during registering dispatch, want 0", lateCalls)
	}

	// From the next message on, late is part of the list.
	l.remove(&first)
	l.dispatch(0)
	if lateCalls != 1 {
		t.Fatalf("late observer calls = %d after registration, want 1", lateCalls)
	}
}
