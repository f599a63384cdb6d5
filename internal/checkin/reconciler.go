package checkin

import (
	"context"
	"errors"
	"sort"

	"gatepass.dev/internal/obs"
)

// Reconciliation reasons for items rejected during replay.
const (
	ReasonUnknownGuest = "unknown_guest"
	ReasonCrossTenant  = "cross_tenant"
)

// ItemOutcome pairs a batch item with what replaying it produced. Synced is
// true once the item reached a terminal outcome; items stalled on a
// transient store fault stay unsynced and are safe to retry, since replaying
// an already-resolved item simply yields Duplicate.
type ItemOutcome struct {
	Submission Submission `json:"submission"`
	Result     Result     `json:"result"`
	Synced     bool       `json:"synced"`
	Error      string     `json:"error,omitempty"`
}

// BatchResult reports per-item outcomes plus whether the whole batch synced.
type BatchResult struct {
	BatchID string        `json:"batch_id"`
	Synced  bool          `json:"synced"`
	Items   []ItemOutcome `json:"items"`
}

// Reconciler replays check-ins recorded while a device was offline. Every
// item goes through the coordinator unchanged; the reconciler adds only
// ordering and bookkeeping.
type Reconciler struct {
	coord *Coordinator
}

func NewReconciler(coord *Coordinator) *Reconciler {
	return &Reconciler{coord: coord}
}

// Reconcile replays a batch in event-time order. Sorting is stable and
// happens before any item is persisted, so an accidental double-scan of the
// same guest inside one batch deterministically hands the authoritative slot
// to the earlier scan. Once a record is persisted, first-persisted-wins
// applies and later items are duplicates no matter their timestamps.
func (r *Reconciler) Reconcile(ctx context.Context, batchID string, items []Submission) (BatchResult, error) {
	ordered := make([]Submission, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EventTime.Before(ordered[j].EventTime)
	})

	out := BatchResult{BatchID: batchID, Synced: true, Items: make([]ItemOutcome, 0, len(ordered))}

	for _, sub := range ordered {
		sub.Offline = true
		item := ItemOutcome{Submission: sub}

		res, err := r.coord.Attempt(ctx, sub)
		switch {
		case err == nil:
			item.Result = res
			item.Synced = true
		case errors.Is(err, ErrNotFound):
			item.Result = Result{Status: StatusRejected, Reason: ReasonUnknownGuest}
			item.Synced = true
		case errors.Is(err, ErrCrossTenantRef):
			item.Result = Result{Status: StatusRejected, Reason: ReasonCrossTenant}
			item.Synced = true
		default:
			// Transient fault. Leave the item unsynced for a later retry and
			// keep going; later items may still land.
			item.Error = err.Error()
			out.Synced = false
		}

		if item.Synced {
			obs.ObserveSyncItem("synced")
		} else {
			obs.ObserveSyncItem("unsynced")
		}
		out.Items = append(out.Items, item)
	}

	return out, nil
}
