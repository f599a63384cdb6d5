package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"gatepass.dev/internal/auth"
	"gatepass.dev/internal/checkin"
	"gatepass.dev/internal/credential"
	"gatepass.dev/internal/fanout"
	"gatepass.dev/internal/obs"
	"gatepass.dev/internal/syncq"
	"gatepass.dev/internal/tenant"
)

// ReadyProbe reports readiness, pinging the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config wires the HTTP layer.
type Config struct {
	Version      string
	Ready        ReadyProbe
	Store        checkin.Store
	Staff        auth.StaffStore
	Coordinator  *checkin.Coordinator
	Reconciler   *checkin.Reconciler
	Hub          *fanout.Hub
	Queue        syncq.Queue // optional; background retry of unsynced batches
	TokenTTL     time.Duration
	MaxBodyBytes int64
	RateBurst    int
	RatePerSec   int
}

// API is the HTTP surface over the coordination core.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	store    checkin.Store
	staff    auth.StaffStore
	verifier *credential.Verifier
	coord    *checkin.Coordinator
	rec      *checkin.Reconciler
	hub      *fanout.Hub
	queue    syncq.Queue

	tokenTTL   time.Duration
	maxBody    int64
	rateBurst  int
	ratePerSec int

	exempt   tenant.ExemptTargets
	limiters *tenantLimiters
}

func New(cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: cfg.Ready,
		version:    cfg.Version,
		store:      cfg.Store,
		staff:      cfg.Staff,
		verifier:   credential.NewVerifier(cfg.Store),
		coord:      cfg.Coordinator,
		rec:        cfg.Reconciler,
		hub:        cfg.Hub,
		queue:      cfg.Queue,
		tokenTTL:   cfg.TokenTTL,
		maxBody:    cfg.MaxBodyBytes,
		rateBurst:  cfg.RateBurst,
		ratePerSec: cfg.RatePerSec,
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = 12 * time.Hour
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 50
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 25
	}
	a.exempt = tenant.NewExemptTargets(
		"/", "/healthz", "/readyz", "/metrics", "/v1/info", "/v1/auth/token",
	)
	a.limiters = newTenantLimiters(a.store, a.ratePerSec, a.rateBurst)

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// staff token issuance
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	// coordination core
	a.mux.HandleFunc("/v1/checkins", a.handleCheckins)
	a.mux.HandleFunc("/v1/checkins/sync", a.handleSync)
	a.mux.HandleFunc("/v1/stream", a.Stream)
	a.mux.HandleFunc("/v1/events/", a.handleEventResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.rateLimit(h)
	h = a.withTenant(h)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = WithRequestID(h)
	h = Logging(h)
	return obs.Instrument(h)
}

// --- health/info handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "gatepass-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "gatepass-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	return nil
}
