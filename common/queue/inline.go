package queue

import (
	"context"
	"sync"

	"github.com/fieldsense/audioingest/common/errs"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/fieldsense/audioingest/common/models"
)

// InlineQueue runs the consumer's handler inside Enqueue. The handler is set
// by Register or by the first Consume call; the handler's error is returned
// to the enqueuer, who is expected to retry the submission.
type InlineQueue struct {
	mu      sync.RWMutex
	handler Handler
	closed  bool
	log     *logger.Logger
}

// NewInlineQueue creates a queue with immediate execution
func NewInlineQueue(log *logger.Logger) *InlineQueue {
	return &InlineQueue{log: log}
}

func (q *InlineQueue) Enqueue(ctx context.Context, job *models.IngestJob) error {
	q.mu.RLock()
	h, closed := q.handler, q.closed
	q.mu.RUnlock()

	if closed {
		return errs.E(errs.KindStorage, "enqueue", "", ErrClosed)
	}
	if h == nil {
		return errs.E(errs.KindStorage, "enqueue", "", ErrNoConsumer)
	}

	q.log.Debug("running job inline", "job_id", job.ID)
	return h(ctx, job)
}

// Register sets the handler used by Enqueue unless one is already set.
// Callers that serve requests register before accepting traffic.
func (q *InlineQueue) Register(h Handler) {
	q.mu.Lock()
	if q.handler == nil {
		q.handler = h
	}
	q.mu.Unlock()
}

// Consume registers h and blocks until ctx is done
func (q *InlineQueue) Consume(ctx context.Context, h Handler) error {
	q.Register(h)

	<-ctx.Done()
	return nil
}

func (q *InlineQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}
