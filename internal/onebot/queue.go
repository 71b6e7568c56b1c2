package onebot

import (
	"sync"

	"github.com/p-blackswan/welcome-agent/internal/event"
)

// eventQueue buffers reported events between the read loop and the
// consumer, so reading action responses never waits on a slow consumer.
type eventQueue struct {
	mu     sync.Mutex
	items  []event.Event
	limit  int
	notify chan struct{}
}

func newEventQueue(limit int) *eventQueue {
	return &eventQueue{limit: limit, notify: make(chan struct{}, 1)}
}

// push appends ev. It returns false when the queue is full.
func (q *eventQueue) push(ev event.Event) bool {
	q.mu.Lock()
	if q.limit > 0 && len(q.items) >= q.limit {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *eventQueue) pop() (event.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return event.Event{}, false
	}
	ev := q.items[0]
	q.items[0] = event.Event{}
	q.items = q.items[1:]
	return ev, true
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
