package inmemory

import (
	"context"
	"sync"

	"github.com/dvloznov/mail-ledger/internal/apperrors"
	"github.com/dvloznov/mail-ledger/internal/runs"
)

// Queue serializes batch requests onto a single worker. At most one request
// waits behind the running batch; further requests are folded into it, since
// the next batch picks up every unprocessed message anyway.
type Queue struct {
	requests  chan runs.Trigger
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	started   bool
	closed    bool
}

// NewQueue creates a new batch queue.
func NewQueue() *Queue {
	return &Queue{
		requests:  make(chan runs.Trigger, 1),
		closeChan: make(chan struct{}),
	}
}

// Request implements runs.Requester.
func (q *Queue) Request(trigger runs.Trigger) (bool, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false, apperrors.ErrQueueClosed
	}

	select {
	case q.requests <- trigger:
		return true, nil
	default:
		return false, nil
	}
}

// Start launches the worker. handler runs once per accepted request, never
// concurrently with itself.
func (q *Queue) Start(ctx context.Context, handler runs.Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return apperrors.ErrQueueClosed
	}
	if q.started {
		return nil
	}
	q.started = true

	q.wg.Add(1)
	go q.worker(ctx, handler)
	return nil
}

func (q *Queue) worker(ctx context.Context, handler runs.Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case trigger := <-q.requests:
			handler(ctx, trigger)
		}
	}
}

// Stop closes the queue and waits for the in-flight batch to finish or ctx
// to expire.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ runs.Requester = (*Queue)(nil)
