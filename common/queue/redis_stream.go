package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldsense/audioingest/common/config"
	"github.com/fieldsense/audioingest/common/errs"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/fieldsense/audioingest/common/models"
	redisclient "github.com/fieldsense/audioingest/common/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	fieldJob    = "job"
	fieldJobID  = "job_id"
	fieldReason = "reason"
	fieldSource = "source_id"
)

// RedisStreamQueue is a durable queue on a Redis Streams consumer group.
// Unacknowledged deliveries are reclaimed after the visibility timeout;
// deliveries past MaxDeliveries go to the dead-letter stream.
type RedisStreamQueue struct {
	client   *redisclient.Client
	cfg      config.QueueConfig
	consumer string
	log      *logger.Logger
}

// NewRedisStreamQueue creates a queue bound to cfg.Stream and cfg.Group
func NewRedisStreamQueue(client *redisclient.Client, cfg config.QueueConfig, log *logger.Logger) *RedisStreamQueue {
	return &RedisStreamQueue{
		client:   client,
		cfg:      cfg,
		consumer: "worker-" + uuid.NewString()[:8],
		log:      log,
	}
}

// Enqueue appends the job to the stream
func (q *RedisStreamQueue) Enqueue(ctx context.Context, job *models.IngestJob) error {
	data, err := job.Encode()
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	id, err := q.client.AddToStream(ctx, q.cfg.Stream, map[string]interface{}{
		fieldJob:   string(data),
		fieldJobID: job.ID,
	})
	if err != nil {
		return errs.WrapStorage("enqueue", err)
	}

	q.log.Debug("job enqueued", "job_id", job.ID, "stream_id", id)
	return nil
}

// Consume reclaims stale deliveries, then blocks for new ones, until ctx is done
func (q *RedisStreamQueue) Consume(ctx context.Context, h Handler) error {
	if err := q.client.CreateStreamGroup(ctx, q.cfg.Stream, q.cfg.Group); err != nil {
		return err
	}

	q.log.Info("consuming stream",
		"stream", q.cfg.Stream,
		"group", q.cfg.Group,
		"consumer", q.consumer,
	)

	for ctx.Err() == nil {
		claimed, err := q.client.ClaimIdle(ctx, q.cfg.Stream, q.cfg.Group, q.consumer, q.cfg.VisibilityTimeout, 10)
		if err != nil {
			q.backoff(ctx)
			continue
		}
		for _, msg := range claimed {
			deliveries, err := q.client.DeliveryCount(ctx, q.cfg.Stream, q.cfg.Group, msg.ID)
			if err != nil {
				q.log.Warn("delivery count lookup failed", "message_id", msg.ID, "error", err)
				continue
			}
			q.deliver(ctx, h, msg, deliveries)
		}

		streams, err := q.client.ReadFromStreamGroup(ctx, q.cfg.Group, q.consumer, q.cfg.Stream, 1, q.cfg.BlockTimeout)
		if err != nil {
			q.backoff(ctx)
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.deliver(ctx, h, msg, 1)
			}
		}
	}

	q.log.Info("stream consumer stopped", "consumer", q.consumer)
	return nil
}

func (q *RedisStreamQueue) deliver(ctx context.Context, h Handler, msg redis.XMessage, deliveries int64) {
	log := q.log.WithFields(map[string]any{
		"message_id": msg.ID,
		"deliveries": deliveries,
	})

	raw, _ := msg.Values[fieldJob].(string)
	job, err := models.DecodeIngestJob([]byte(raw))
	if err != nil {
		log.Error("undecodable job", "error", err)
		q.deadLetter(ctx, msg, fmt.Sprintf("decode: %v", err))
		return
	}
	log = log.WithJobID(job.ID)

	if deliveries > int64(q.cfg.MaxDeliveries) {
		log.Error("job exceeded max deliveries, moving to dead-letter stream",
			"device_id", job.DeviceID,
			"max_deliveries", q.cfg.MaxDeliveries,
		)
		q.deadLetter(ctx, msg, "max deliveries exceeded")
		return
	}

	if err := h(ctx, job); err != nil {
		log.Warn("job not acknowledged, will be redelivered",
			"redeliver_after", q.cfg.VisibilityTimeout,
			"error", err,
		)
		return
	}

	if err := q.client.AckStreamMessage(ctx, q.cfg.Stream, q.cfg.Group, msg.ID); err != nil {
		// The job is committed; a redelivery collapses on the idempotency key
		log.Warn("ack failed after commit", "error", err)
	}
}

func (q *RedisStreamQueue) deadLetter(ctx context.Context, msg redis.XMessage, reason string) {
	values := map[string]interface{}{
		fieldReason: reason,
		fieldSource: msg.ID,
	}
	for k, v := range msg.Values {
		values[k] = v
	}
	if err := q.client.MoveToStream(ctx, q.cfg.Stream, q.cfg.Group, q.cfg.DeadLetterStream, msg.ID, values); err != nil {
		q.log.Error("dead-letter move failed", "message_id", msg.ID, "error", err)
	}
}

func (q *RedisStreamQueue) backoff(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
	}
}

// Close is a no-op; the Redis client is owned by bootstrap
func (q *RedisStreamQueue) Close() error {
	return nil
}
