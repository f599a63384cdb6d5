package httpapi

import (
	"errors"
	"net/http"
	"time"

	"gatepass.dev/internal/checkin"
	"gatepass.dev/internal/credential"
)

type checkinRequest struct {
	Token     string    `json:"token"`
	EventTime time.Time `json:"event_time"`
	DeviceID  string    `json:"device_id"`
}

type checkinResponse struct {
	Status   checkin.Status  `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Record   *recordResponse `json:"record,omitempty"`
	GuestID  string          `json:"guest_id,omitempty"`
	DeviceID string          `json:"device_id,omitempty"`
}

type recordResponse struct {
	ID         string    `json:"id"`
	GuestID    string    `json:"guest_id"`
	EventTime  time.Time `json:"event_time"`
	RecordedAt time.Time `json:"recorded_at"`
	DeviceID   string    `json:"device_id"`
	Offline    bool      `json:"offline"`
}

func toRecordResponse(rec checkin.CheckInRecord) *recordResponse {
	return &recordResponse{
		ID:         rec.ID,
		GuestID:    rec.GuestID,
		EventTime:  rec.EventTime,
		RecordedAt: rec.RecordedAt,
		DeviceID:   rec.DeviceID,
		Offline:    rec.Offline,
	}
}

// handleCheckins accepts a live scan: resolve the credential, then run it
// through the coordinator. A lost race comes back as duplicate with the
// authoritative record, never as an error.
func (a *API) handleCheckins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req checkinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if req.EventTime.IsZero() {
		req.EventTime = time.Now().UTC()
	}

	guest, err := a.verifier.Verify(r.Context(), req.Token)
	if err != nil {
		writeVerifyError(w, err)
		return
	}

	res, err := a.coord.Attempt(r.Context(), checkin.Submission{
		GuestID:   guest.ID,
		EventTime: req.EventTime,
		DeviceID:  req.DeviceID,
	})
	if err != nil {
		writeAttemptError(w, err)
		return
	}

	resp := checkinResponse{
		Status:   res.Status,
		Reason:   res.Reason,
		GuestID:  guest.ID,
		DeviceID: req.DeviceID,
	}
	if res.Status != checkin.StatusRejected {
		resp.Record = toRecordResponse(res.Record)
	}
	writeJSON(w, statusCode(res.Status), resp)
}

func statusCode(s checkin.Status) int {
	switch s {
	case checkin.StatusAccepted:
		return http.StatusCreated
	case checkin.StatusDuplicate:
		return http.StatusOK
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeVerifyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, credential.ErrNoMatch):
		writeJSON(w, http.StatusUnprocessableEntity, checkinResponse{
			Status: checkin.StatusRejected,
			Reason: "invalid_credential",
		})
	case errors.Is(err, credential.ErrEventClosed):
		writeJSON(w, http.StatusUnprocessableEntity, checkinResponse{
			Status: checkin.StatusRejected,
			Reason: "event_closed",
		})
	case errors.Is(err, credential.ErrTenantInactive):
		writeJSON(w, http.StatusUnprocessableEntity, checkinResponse{
			Status: checkin.StatusRejected,
			Reason: "tenant_inactive",
		})
	default:
		writeError(w, http.StatusServiceUnavailable, "credential lookup unavailable")
	}
}

func writeAttemptError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkin.ErrCrossTenantRef):
		writeError(w, http.StatusForbidden, "cross-tenant reference")
	case errors.Is(err, checkin.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, checkin.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
