package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const saveTimeout = 5 * time.Second

// Queue decouples message recording from the store. Record never blocks:
// when the buffer is full the message is dropped and counted.
type Queue struct {
	store Store
	log   *zap.Logger
	ch    chan Message
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewQueue starts the writer goroutine for store.
func NewQueue(store Store, size int, log *zap.Logger) *Queue {
	if size <= 0 {
		size = 256
	}
	q := &Queue{
		store: store,
		log:   log,
		ch:    make(chan Message, size),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

// Record queues msg for writing.
func (q *Queue) Record(msg Message) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- msg:
	default:
		if n := q.dropped.Add(1); n == 1 || n%100 == 0 {
			q.log.Warn("Message queue full, dropping", zap.Int64("dropped", n))
		}
	}
}

// Dropped returns how many messages were dropped on overflow.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

func (q *Queue) run() {
	defer close(q.done)
	for msg := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := q.store.Save(ctx, msg); err != nil {
			q.log.Error("Error saving message", zap.Error(err))
		}
		cancel()
	}
}

// Close drains pending messages and closes the store.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	<-q.done
	return q.store.Close()
}
