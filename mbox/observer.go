package mbox

import (
	"sync"

	"github.com/mikeshx/omap/hal"
)

// Observer receives every message delivered on a channel. OnMessage runs on
// the channel's deferred receive goroutine: it may do real work, but for as
// long as it runs no later message on that channel is dispatched.
//
// Observers are tracked by identity: unregister with the same value that
// was registered, which for struct implementations means the same pointer.
type Observer interface {
	OnMessage(hal.Message)
}

// ObserverFunc adapts a function to the Observer interface. Register and
// unregister the same *ObserverFunc.
type ObserverFunc func(hal.Message)

func (f *ObserverFunc) OnMessage(m hal.Message) { (*f)(m) }

// observerList is an ordered set of observers. Dispatch iterates a snapshot
// taken under the lock, so registration during an in-flight dispatch takes
// effect from the next message.
type observerList struct {
	mu   sync.Mutex
	list []Observer
}

func (l *observerList) add(o Observer) {
	l.mu.Lock()
	l.list = append(l.list, o)
	l.mu.Unlock()
}

func (l *observerList) remove(o Observer) {
	l.mu.Lock()
	for i, cur := range l.list {
		if cur == o {
			l.list = append(l.list[:i], l.list[i+1:]...)
			break
		}
	}
	l.mu.Unlock()
}

func (l *observerList) dispatch(m hal.Message) {
	l.mu.Lock()
	snapshot := make([]Observer, len(l.list))
	copy(snapshot, l.list)
	l.mu.Unlock()
	for _, o := range snapshot {
		o.OnMessage(m)
	}
}
