package daemon

import "sync"

// feed keeps the newest usage events and fans new ones out to subscribers.
// Slow subscribers miss events rather than block the poller.
type feed struct {
	mu     sync.Mutex
	limit  int
	nextID int64
	events []Event
	subs   map[chan Event]struct{}
}

func newFeed(limit int) *feed {
	return &feed{limit: limit, subs: make(map[chan Event]struct{})}
}

// publish numbers ev, retains it and delivers it to every subscriber.
func (f *feed) publish(ev Event) Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	ev.ID = f.nextID
	f.events = append(f.events, ev)
	if over := len(f.events) - f.limit; over > 0 {
		f.events = f.events[over:]
	}
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

func (f *feed) recent() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event{}, f.events...)
}

// counts reports retained events and live subscribers.
func (f *feed) counts() (events, subs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events), len(f.subs)
}

func (f *feed) subscribe(buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch, func() {
		f.mu.Lock()
		delete(f.subs, ch)
		f.mu.Unlock()
	}
}
