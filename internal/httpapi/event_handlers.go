package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gatepass.dev/internal/checkin"
	"gatepass.dev/internal/tenant"
)

// handleEventResource routes /v1/events/{id}/... subresources. Currently the
// only subresource is the guest snapshot; the per-guest checked-in flag is a
// projection for operator dashboards, the check-in records stay the truth.
func (a *API) handleEventResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/events/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	if len(parts) == 2 && parts[1] == "guests" && parts[0] != "" {
		a.eventGuests(w, r, parts[0])
		return
	}
	http.NotFound(w, r)
}

func (a *API) eventGuests(w http.ResponseWriter, r *http.Request, eventID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	tenantID, ok := tenant.IDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "tenant could not be resolved")
		return
	}

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

	guests, err := a.store.GuestsByEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	if guests == nil {
		guests = []checkin.Guest{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"event_id": eventID,
		"guests":   guests,
	})
}
