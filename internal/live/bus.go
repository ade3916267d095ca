// Package live moves the events of running sessions between the daemon, the
// files engines append to, and viewers.
package live

import (
	"slices"
	"sync"

	"github.com/wysstartgo/anycode/internal/session"
)

type subscriber struct {
	class session.EventClass
	fn    func([]byte)
}

// Bus is an in-process fan-out of session events keyed by session id.
// Callbacks run on the publishing goroutine, outside the bus lock.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]subscriber
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]subscriber)}
}

// Subscribe registers fn for one event class of sessionID.
func (b *Bus) Subscribe(sessionID string, class session.EventClass, fn func([]byte)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]subscriber)
	}
	b.subs[sessionID][id] = subscriber{class: class, fn: fn}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[sessionID], id)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
		})
	}
}

// Publish delivers payload to every subscriber of class for sessionID, in
// subscription order.
func (b *Bus) Publish(sessionID string, class session.EventClass, payload []byte) {
	b.mu.RLock()
	subs := b.subs[sessionID]
	ids := make([]int, 0, len(subs))
	for id, s := range subs {
		if s.class == class {
			ids = append(ids, id)
		}
	}
	fns := make([]func([]byte), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, subs[id].fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(payload)
	}
}

// Subscribers returns the number of live subscriptions for sessionID.
func (b *Bus) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
