// Package syncq queues offline check-in batches for replay through the
// reconciler. Delivery is at-least-once; consumption is idempotent because
// replaying an already-resolved item yields Duplicate.
package syncq

import (
	"context"

	"gatepass.dev/internal/checkin"
)

// Batch is one device's offline backlog submitted after reconnecting.
type Batch struct {
	ID       string               `json:"id"`
	TenantID string               `json:"tenant_id"`
	DeviceID string               `json:"device_id"`
	Items    []checkin.Submission `json:"items"`
}

// Handler reconciles one batch. A batch counts as handled only when the
// returned result reports fully synced; otherwise the queue redelivers it.
type Handler func(ctx context.Context, b Batch) (checkin.BatchResult, error)

// Queue is the replay transport between the sync endpoint and the reconciler.
type Queue interface {
	Enqueue(ctx context.Context, b Batch) error
	// Run consumes batches until ctx ends, invoking h for each.
	Run(ctx context.Context, h Handler) error
}
