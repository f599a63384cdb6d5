package httpapi

import (
	"errors"
	"net/http"
	"time"

	"gatepass.dev/internal/checkin"
	"gatepass.dev/internal/credential"
	"gatepass.dev/internal/ids"
	"gatepass.dev/internal/obs"
	"gatepass.dev/internal/syncq"
	"gatepass.dev/internal/tenant"
)

type syncItemRequest struct {
	Token     string    `json:"token"`
	EventTime time.Time `json:"event_time"`
	DeviceID  string    `json:"device_id,omitempty"`
}

type syncRequest struct {
	BatchID  string            `json:"batch_id"`
	DeviceID string            `json:"device_id"`
	Items    []syncItemRequest `json:"items"`
}

type syncItemResponse struct {
	Status    checkin.Status  `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	Record    *recordResponse `json:"record,omitempty"`
	EventTime time.Time       `json:"event_time"`
	Synced    bool            `json:"synced"`
	Error     string          `json:"error,omitempty"`
}

type syncResponse struct {
	BatchID string             `json:"batch_id"`
	Synced  bool               `json:"synced"`
	Queued  bool               `json:"queued,omitempty"`
	Items   []syncItemResponse `json:"items"`
}

// handleSync replays a batch of offline scans. Credentials are resolved up
// front; items whose token no longer maps to a guest are terminally rejected
// without touching the coordinator. The rest go through the reconciler in
// event-time order. If any item is left unsynced by a transient fault and a
// retry queue is wired, the unsynced remainder is handed to it.
func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req syncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items are required")
		return
	}
	if req.BatchID == "" {
		req.BatchID = ids.New()
	}

	resp := syncResponse{BatchID: req.BatchID, Synced: true}

	subs := make([]checkin.Submission, 0, len(req.Items))
	rejected := make([]syncItemResponse, 0)
	for _, item := range req.Items {
		deviceID := item.DeviceID
		if deviceID == "" {
			deviceID = req.DeviceID
		}

		guest, err := a.verifier.Verify(r.Context(), item.Token)
		if err != nil {
			out, terminal := verifyItemOutcome(item.EventTime, err)
			if !terminal {
				resp.Synced = false
			} else {
				obs.ObserveSyncItem("synced")
			}
			rejected = append(rejected, out)
			continue
		}

		subs = append(subs, checkin.Submission{
			GuestID:   guest.ID,
			EventTime: item.EventTime,
			DeviceID:  deviceID,
		})
	}

	batch, err := a.rec.Reconcile(r.Context(), req.BatchID, subs)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "reconciliation unavailable")
		return
	}
	if !batch.Synced {
		resp.Synced = false
	}

	for _, item := range batch.Items {
		out := syncItemResponse{
			Status:    item.Result.Status,
			Reason:    item.Result.Reason,
			EventTime: item.Submission.EventTime,
			Synced:    item.Synced,
			Error:     item.Error,
		}
		if item.Synced && item.Result.Status != checkin.StatusRejected {
			out.Record = toRecordResponse(item.Result.Record)
		}
		resp.Items = append(resp.Items, out)
	}
	resp.Items = append(resp.Items, rejected...)

	if !resp.Synced && a.queue != nil {
		resp.Queued = a.enqueueUnsynced(r, req, batch)
	}

	writeJSON(w, http.StatusOK, resp)
}

// verifyItemOutcome maps a credential failure on a batch item to its
// response shape. Lookup faults are transient and leave the item unsynced;
// everything else is a terminal rejection.
func verifyItemOutcome(eventTime time.Time, err error) (syncItemResponse, bool) {
	out := syncItemResponse{
		Status:    checkin.StatusRejected,
		EventTime: eventTime,
		Synced:    true,
	}
	switch {
	case errors.Is(err, credential.ErrNoMatch):
		out.Reason = "invalid_credential"
	case errors.Is(err, credential.ErrEventClosed):
		out.Reason = "event_closed"
	case errors.Is(err, credential.ErrTenantInactive):
		out.Reason = "tenant_inactive"
	default:
		out.Status = ""
		out.Synced = false
		out.Error = "credential lookup unavailable"
		return out, false
	}
	return out, true
}

// enqueueUnsynced hands the batch's unsynced remainder to the retry queue.
func (a *API) enqueueUnsynced(r *http.Request, req syncRequest, batch checkin.BatchResult) bool {
	remainder := make([]checkin.Submission, 0)
	for _, item := range batch.Items {
		if !item.Synced {
			remainder = append(remainder, item.Submission)
		}
	}
	if len(remainder) == 0 {
		return false
	}

	tenantID, _ := tenant.IDFromContext(r.Context())
	err := a.queue.Enqueue(r.Context(), syncq.Batch{
		ID:       req.BatchID,
		TenantID: tenantID,
		DeviceID: req.DeviceID,
		Items:    remainder,
	})
	if err != nil {
		obs.LogRequest(map[string]any{
			"level":    "warn",
			"msg":      "sync retry enqueue failed",
			"batch_id": req.BatchID,
			"error":    err.Error(),
		})
		return false
	}
	return true
}
