// Package events provides the in-process session event channel: typed
// publish/subscribe with explicit unsubscribe handles and
// replay-current-state-on-subscribe semantics.
package events

import (
	"sync"

	"github.com/veritasvault/vv-auth/core"
)

// Bus delivers session events to subscribers in publication order.
// A new subscriber immediately receives the current state snapshot,
// not a backlog of past mutations. Callbacks run synchronously on the
// publishing goroutine and must not call back into the bus.
type Bus struct {
	mu       sync.Mutex
	nextID   int
	subs     map[int]func(core.SessionEvent)
	order    []int
	current  core.SessionEvent
	hasState bool
}

// NewBus creates a bus primed with the initial state snapshot.
func NewBus(initial core.WalletSessionState) *Bus {
	return &Bus{
		subs:     make(map[int]func(core.SessionEvent)),
		current:  core.SessionEvent{Kind: core.SessionDisconnected, State: initial},
		hasState: true,
	}
}

// Publish records ev as the current state and notifies subscribers in
// registration order. No coalescing: every mutation is delivered.
func (b *Bus) Publish(ev core.SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = ev
	for _, id := range b.order {
		if fn, ok := b.subs[id]; ok {
			fn(ev)
		}
	}
}

// Subscribe registers fn and replays the current snapshot to it before
// returning. The returned func removes the subscription; calling it
// more than once is a no-op.
func (b *Bus) Subscribe(fn func(core.SessionEvent)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.order = append(b.order, id)
	replay := b.current
	b.mu.Unlock()

	fn(replay)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Current returns the most recently published event.
func (b *Bus) Current() core.SessionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}
