package service

import (
	"context"
	"sync"
)

// MessageQueue bridges push-style senders and a single pull-style consumer.
// Push never blocks while the queue is open; Next returns buffered messages
// in arrival order and suspends when the buffer is empty. It implements
// engine.PromptSource.
//
// This is a single-consumer primitive: at most one caller may be blocked in
// Next at a time.
type MessageQueue struct {
	mu     sync.Mutex
	buf    []string
	waiter chan string // non-nil while a consumer is blocked in Next
	closed bool
}

// NewMessageQueue creates an empty, open MessageQueue.
func NewMessageQueue() *MessageQueue {
	return &MessageQueue{}
}

// Push appends text for the consumer. If a consumer is currently blocked in
// Next, the message is handed to it directly. Pushes after Close are dropped.
func (q *MessageQueue) Push(text string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if q.waiter != nil {
		w := q.waiter
		q.waiter = nil
		q.mu.Unlock()
		w <- text // buffered, never blocks
		return
	}
	q.buf = append(q.buf, text)
	q.mu.Unlock()
}

// Next returns the oldest buffered message, blocking until one is pushed or
// the queue is closed. ok is false once the queue is closed and the buffer
// is drained, or when ctx is cancelled first.
func (q *MessageQueue) Next(ctx context.Context) (msg string, ok bool) {
	q.mu.Lock()
	if len(q.buf) > 0 {
		msg = q.buf[0]
		q.buf = q.buf[1:]
		q.mu.Unlock()
		return msg, true
	}
	if q.closed {
		q.mu.Unlock()
		return "", false
	}

	w := make(chan string, 1)
	q.waiter = w
	q.mu.Unlock()

	select {
	case msg, ok = <-w:
		return msg, ok
	case <-ctx.Done():
		q.mu.Lock()
		if q.waiter == w {
			q.waiter = nil
		}
		q.mu.Unlock()
		// A push may have raced the cancellation; don't lose it.
		select {
		case msg = <-w:
			return msg, true
		default:
			return "", false
		}
	}
}

// Close marks the queue closed and unblocks a pending Next, if any. Safe to
// call more than once.
func (q *MessageQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	w := q.waiter
	q.waiter = nil
	q.mu.Unlock()

	if w != nil {
		close(w)
	}
}

// Len returns the number of buffered messages.
func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
