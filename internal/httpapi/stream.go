package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"gatepass.dev/internal/checkin"
	"gatepass.dev/internal/fanout"
	"gatepass.dev/internal/tenant"
)

// Stream serves server-sent events for the caller's tenant. The connection
// always joins the tenant group; an eventId query parameter additionally
// joins that event's group after verifying the event belongs to the tenant.
// Frames are best-effort: a client that falls behind misses frames and
// should refresh from the guest snapshot endpoint after reconnecting.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	tenantID, ok := tenant.IDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "tenant could not be resolved")
		return
	}

	groups := []string{fanout.GroupTenant(tenantID)}
	if eventID := r.URL.Query().Get("eventId"); eventID != "" {
		event, err := a.store.EventByID(r.Context(), eventID)
		if err != nil {
			if errors.Is(err, checkin.ErrNotFound) {
				writeError(w, http.StatusNotFound, "event not found")
			} else {
				writeError(w, http.StatusServiceUnavailable, "store unavailable")
			}
			return
		}
		if event.TenantID != tenantID {
			writeError(w, http.StatusForbidden, "cross-tenant reference")
			return
		}
		groups = append(groups, fanout.GroupEvent(eventID))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := a.hub.Subscribe(r.Context(), groups...)
	for msg := range ch {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data)
		flusher.Flush()
	}
}
