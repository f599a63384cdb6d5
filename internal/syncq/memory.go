package syncq

import (
	"context"
	"errors"
	"time"
)

// Memory is an in-process queue for tests and single-node deployments.
type Memory struct {
	ch         chan Batch
	retryAfter time.Duration
}

var _ Queue = (*Memory)(nil)

func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = 64
	}
	return &Memory{ch: make(chan Batch, buffer), retryAfter: time.Second}
}

func (m *Memory) Enqueue(ctx context.Context, b Batch) error {
	select {
	case m.ch <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.New("syncq: queue full")
	}
}

// Run consumes until ctx ends. Batches that fail or stay partially unsynced
// are requeued after a short delay; resolved items replay as duplicates.
func (m *Memory) Run(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-m.ch:
			res, err := h(ctx, b)
			if err != nil || !res.Synced {
				go m.requeue(ctx, b)
			}
		}
	}
}

func (m *Memory) requeue(ctx context.Context, b Batch) {
	select {
	case <-ctx.Done():
	case <-time.After(m.retryAfter):
		select {
		case m.ch <- b:
		case <-ctx.Done():
		}
	}
}
