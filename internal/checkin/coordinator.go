package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gatepass.dev/internal/ids"
	"gatepass.dev/internal/obs"
	"gatepass.dev/internal/tenant"
)

// Publisher receives the summary of every accepted check-in. Duplicates and
// rejections are never fanned out.
type Publisher interface {
	PublishCheckIn(s Summary)
}

// AuditFunc records one entry per transition outcome, accepted or not.
type AuditFunc func(ctx context.Context, event string, fields map[string]any) error

// Coordinator converts verified scans into durable, deduplicated check-in
// records. Live submissions and offline replays go through the same Attempt
// path, so the dedup invariant holds regardless of entry point.
type Coordinator struct {
	store Store
	pub   Publisher
	audit AuditFunc
}

// NewCoordinator wires the coordinator. pub and audit may be nil.
func NewCoordinator(store Store, pub Publisher, audit AuditFunc) *Coordinator {
	return &Coordinator{store: store, pub: pub, audit: audit}
}

// Attempt applies one scan. Outcomes:
//
//   - Accepted: no authoritative record existed and this attempt inserted one.
//   - Duplicate: an authoritative record already exists. First persisted wins;
//     the submission's event time is irrelevant once a record is durable.
//   - Rejected: the guest's event does not admit scans in its current state.
//
// Duplicate and Rejected are ordinary results, not errors. Errors are
// reserved for infrastructure faults (wrapped in ErrStoreUnavailable) and
// broken tenant chains (ErrCrossTenantRef, always fatal).
//
// Once Attempt starts it runs to a terminal outcome even if the caller goes
// away: the persistence step is detached from the caller's cancellation so
// no "maybe accepted" state can linger.
func (c *Coordinator) Attempt(ctx context.Context, sub Submission) (Result, error) {
	guest, err := c.store.GuestByID(ctx, sub.GuestID)
	if err != nil {
		return Result{}, storeErr("load guest", err)
	}

	event, err := c.store.EventByID(ctx, guest.EventID)
	if err != nil {
		return Result{}, storeErr("load event", err)
	}

	if event.TenantID != guest.TenantID {
		return Result{}, ErrCrossTenantRef
	}
	if stamped, ok := tenant.IDFromContext(ctx); ok && stamped != guest.TenantID {
		return Result{}, ErrCrossTenantRef
	}

	if !event.Status.Scannable() {
		res := Result{Status: StatusRejected, Reason: ReasonEventNotActive}
		c.finish(ctx, event, guest, sub, res)
		return res, nil
	}

	rec := CheckInRecord{
		ID:         ids.New(),
		GuestID:    guest.ID,
		EventTime:  sub.EventTime.UTC(),
		RecordedAt: time.Now().UTC(),
		DeviceID:   sub.DeviceID,
		Synced:     true,
		Offline:    sub.Offline,
	}

	// The insert must reach a terminal state even when the scanning device
	// has already hung up. Callers must not assume cancellation reverts
	// side effects.
	persistCtx := context.WithoutCancel(ctx)

	existing, inserted, err := c.store.InsertIfAbsent(persistCtx, guest.ID, rec)
	if err != nil {
		return Result{}, storeErr("insert record", err)
	}

	var res Result
	if inserted {
		res = Result{Status: StatusAccepted, Record: existing}
	} else {
		res = Result{Status: StatusDuplicate, Record: existing}
	}
	c.finish(persistCtx, event, guest, sub, res)
	return res, nil
}

// finish emits side effects for a terminal outcome: audit always, fanout and
// metrics on acceptance only.
func (c *Coordinator) finish(ctx context.Context, event Event, guest Guest, sub Submission, res Result) {
	obs.ObserveCheckin(string(res.Status))

	if res.Status == StatusAccepted && c.pub != nil {
		c.pub.PublishCheckIn(Summary{
			TenantID:  guest.TenantID,
			EventID:   event.ID,
			GuestID:   guest.ID,
			RecordID:  res.Record.ID,
			EventTime: res.Record.EventTime,
			DeviceID:  sub.DeviceID,
		})
	}

	if c.audit != nil {
		fields := map[string]any{
			"tenant_id": guest.TenantID,
			"event_id":  event.ID,
			"guest_id":  guest.ID,
			"outcome":   string(res.Status),
			"device_id": sub.DeviceID,
		}
		if res.Record.ID != "" {
			fields["record_id"] = res.Record.ID
			fields["event_time"] = res.Record.EventTime.Format(time.RFC3339Nano)
		}
		if res.Reason != "" {
			fields["reason"] = res.Reason
		}
		_ = c.audit(ctx, "checkin.attempt", fields)
	}
}

func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCrossTenantRef):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
	}
}
