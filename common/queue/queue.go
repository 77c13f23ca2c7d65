// Package queue carries ingest jobs from the ingress handler to workers with
// at-least-once delivery.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldsense/audioingest/common/config"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/fieldsense/audioingest/common/models"
	redisclient "github.com/fieldsense/audioingest/common/redis"
)

// Handler processes one delivery. A nil result acknowledges the job; an
// error leaves it unacknowledged so it is delivered again.
type Handler func(ctx context.Context, job *models.IngestJob) error

// Queue interface for job passing
type Queue interface {
	Enqueue(ctx context.Context, job *models.IngestJob) error
	// Consume delivers jobs to h until ctx is done. It is safe to run several
	// Consume loops on one Queue.
	Consume(ctx context.Context, h Handler) error
	Close() error
}

var (
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned when a bounded queue cannot accept more jobs.
	ErrFull = errors.New("queue full")
	// ErrNoConsumer is returned by an inline queue before any Consume call.
	ErrNoConsumer = errors.New("queue has no consumer")
)

// New builds the queue selected by cfg.Queue.Type. rdb is only used by the
// redis strategy and may be nil otherwise.
func New(cfg *config.Config, rdb *redisclient.Client, log *logger.Logger) (Queue, error) {
	switch cfg.Queue.Type {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis queue requires a redis client")
		}
		return NewRedisStreamQueue(rdb, cfg.Queue, log), nil
	case "memory":
		return NewMemoryQueue(cfg.Queue, log), nil
	case "inline":
		return NewInlineQueue(log), nil
	default:
		return nil, fmt.Errorf("unknown queue type: %s", cfg.Queue.Type)
	}
}
