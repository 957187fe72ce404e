package bus

import "context"

// Queue is the bounded inbound event queue between platform adapters and
// the orchestrator. Publish blocks when the queue is full so a slow
// pipeline applies backpressure to the adapters instead of dropping work.
type Queue struct {
	ch chan InboundEvent
}

// NewQueue creates a queue holding at most capacity pending events.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{ch: make(chan InboundEvent, capacity)}
}

// Publish enqueues an event, blocking until space is available or ctx is done.
func (q *Queue) Publish(ctx context.Context, ev InboundEvent) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume dequeues the next event. The second return is false when ctx is done.
func (q *Queue) Consume(ctx context.Context) (InboundEvent, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	case <-ctx.Done():
		return InboundEvent{}, false
	}
}

// Len reports the number of pending events.
func (q *Queue) Len() int {
	return len(q.ch)
}
