package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const batchField = "batch"

// Redis implements Queue on a Redis Stream with a consumer group, so several
// reconciler instances can share one backlog. A batch is acknowledged only
// after it fully syncs; unacknowledged entries are reclaimed after minIdle
// and redelivered, which is safe because replay is idempotent.
type Redis struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	minIdle  time.Duration
}

var _ Queue = (*Redis)(nil)

// NewRedis creates the stream and consumer group when missing.
func NewRedis(ctx context.Context, client *redis.Client, stream, group, consumer string) (*Redis, error) {
	q := &Redis{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		block:    5 * time.Second,
		minIdle:  time.Minute,
	}
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return q, nil
}

func (q *Redis) Enqueue(ctx context.Context, b Batch) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{batchField: string(payload)},
	}).Err()
}

// Run consumes batches until ctx ends. Each loop first reclaims entries a
// dead consumer left pending, then reads fresh ones.
func (q *Redis) Run(ctx context.Context, h Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: q.consumer,
			MinIdle:  q.minIdle,
			Start:    "0-0",
			Count:    16,
		}).Result()
		if err == nil {
			q.handleAll(ctx, h, claimed)
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    16,
			Block:    q.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			// Transient connection trouble; back off and retry.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		for _, s := range streams {
			q.handleAll(ctx, h, s.Messages)
		}
	}
}

func (q *Redis) handleAll(ctx context.Context, h Handler, msgs []redis.XMessage) {
	for _, msg := range msgs {
		raw, ok := msg.Values[batchField].(string)
		if !ok {
			// Malformed entry; acknowledge so it stops cycling.
			q.ack(ctx, msg.ID)
			continue
		}
		var b Batch
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			q.ack(ctx, msg.ID)
			continue
		}
		res, err := h(ctx, b)
		if err != nil || !res.Synced {
			// Leave pending; XAutoClaim redelivers after minIdle.
			continue
		}
		q.ack(ctx, msg.ID)
	}
}

func (q *Redis) ack(ctx context.Context, id string) {
	_ = q.client.XAck(ctx, q.stream, q.group, id).Err()
}
