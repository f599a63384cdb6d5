package httpapi

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gatepass.dev/internal/checkin"
	"gatepass.dev/internal/tenant"
)

// withTenant resolves the active tenant from the request's signals and
// stamps it onto the context. Resolution happens exactly once per request;
// everything downstream reads the stamped value. Unresolved is fatal only
// for targets outside the exempt allow-list.
func (a *API) withTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var claim string
		if c := claimsFromContext(r.Context()); c != nil {
			claim = c.TenantID
		}

		id, ok := tenant.Resolve(tenant.Signals{
			Claim:  claim,
			Header: r.Header.Get("X-Tenant-Id"),
			Host:   r.Host,
			Query:  r.URL.Query().Get("tenantId"),
		})
		if ok {
			next.ServeHTTP(w, r.WithContext(tenant.ContextWithID(r.Context(), id)))
			return
		}

		if r.Method == http.MethodOptions || a.exempt.Contains(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusBadRequest, "tenant could not be resolved")
	})
}

// tenantLimiters holds one token bucket per tenant, bounded by the tenant's
// plan tier. Buckets idle for a while are dropped.
type tenantLimiters struct {
	mu       sync.Mutex
	store    checkin.Store
	fallback rate.Limit
	burst    int
	buckets  map[string]*bucket
}

type bucket struct {
	lim *rate.Limiter
	ts  time.Time
}

func newTenantLimiters(store checkin.Store, perSecond, burst int) *tenantLimiters {
	l := &tenantLimiters{
		store:    store,
		fallback: rate.Limit(perSecond),
		burst:    burst,
		buckets:  make(map[string]*bucket),
	}
	go func() {
		for range time.Tick(time.Minute) {
			l.sweep(5 * time.Minute)
		}
	}()
	return l
}

func (l *tenantLimiters) allow(r *http.Request, tenantID string) bool {
	l.mu.Lock()
	b, ok := l.buckets[tenantID]
	if !ok {
		perSec, burst := int(l.fallback), l.burst
		if tn, err := l.store.TenantByID(r.Context(), tenantID); err == nil {
			perSec, burst = tn.Plan.Limits()
		}
		b = &bucket{lim: rate.NewLimiter(rate.Limit(perSec), burst)}
		l.buckets[tenantID] = b
	}
	b.ts = time.Now()
	l.mu.Unlock()
	return b.lim.Allow()
}

func (l *tenantLimiters) sweep(ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for k, b := range l.buckets {
		if now.Sub(b.ts) > ttl {
			delete(l.buckets, k)
		}
	}
}

// rateLimit applies the per-tenant token bucket. Tenant-exempt targets and
// unresolved requests pass; per-guest check-in contention is handled by the
// store, this only caps request volume per plan tier.
func (a *API) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenant.IDFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if !a.limiters.allow(r, tenantID) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
