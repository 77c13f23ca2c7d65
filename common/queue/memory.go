package queue

import (
	"context"
	"sync"
	"time"

	"github.com/fieldsense/audioingest/common/config"
	"github.com/fieldsense/audioingest/common/errs"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/fieldsense/audioingest/common/models"
)

// MemoryQueue is an in-process queue. Jobs do not survive a restart.
type MemoryQueue struct {
	ch            chan *delivery
	retryDelay    time.Duration
	maxDeliveries int

	mu     sync.RWMutex
	closed bool

	log *logger.Logger
}

type delivery struct {
	job     *models.IngestJob
	attempt int
}

// NewMemoryQueue creates a new in-memory queue
func NewMemoryQueue(cfg config.QueueConfig, log *logger.Logger) *MemoryQueue {
	size := cfg.BufferSize
	if size <= 0 {
		size = 1000
	}
	maxDeliveries := cfg.MaxDeliveries
	if maxDeliveries <= 0 {
		maxDeliveries = 1
	}
	return &MemoryQueue{
		ch:            make(chan *delivery, size),
		retryDelay:    cfg.RetryDelay,
		maxDeliveries: maxDeliveries,
		log:           log,
	}
}

// Enqueue adds a job to the buffer without blocking
func (q *MemoryQueue) Enqueue(ctx context.Context, job *models.IngestJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.push(&delivery{job: job, attempt: 1})
}

func (q *MemoryQueue) push(d *delivery) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return errs.E(errs.KindStorage, "enqueue", "", ErrClosed)
	}

	select {
	case q.ch <- d:
		return nil
	default:
		q.log.Warn("queue full", "job_id", d.job.ID, "capacity", cap(q.ch))
		return errs.E(errs.KindStorage, "enqueue", "", ErrFull)
	}
}

// Consume processes jobs until ctx is done
func (q *MemoryQueue) Consume(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-q.ch:
			q.deliver(ctx, h, d)
		}
	}
}

func (q *MemoryQueue) deliver(ctx context.Context, h Handler, d *delivery) {
	err := h(ctx, d.job)
	if err == nil {
		return
	}

	if d.attempt >= q.maxDeliveries {
		q.log.Error("job exhausted deliveries, dropping",
			"job_id", d.job.ID,
			"device_id", d.job.DeviceID,
			"attempts", d.attempt,
			"error", err,
		)
		return
	}

	next := &delivery{job: d.job, attempt: d.attempt + 1}
	q.log.Warn("job failed, scheduling redelivery",
		"job_id", d.job.ID,
		"attempt", d.attempt,
		"retry_in", q.retryDelay,
		"error", err,
	)
	time.AfterFunc(q.retryDelay, func() {
		if err := q.push(next); err != nil {
			q.log.Error("job redelivery failed", "job_id", next.job.ID, "error", err)
		}
	})
}

// Pending returns the number of buffered jobs
func (q *MemoryQueue) Pending() int {
	return len(q.ch)
}

// Close stops accepting jobs. Buffered jobs are discarded.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.log.Info("memory queue closed", "pending", len(q.ch))
	}
	return nil
}
