package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"gatepass.dev/internal/audit"
	"gatepass.dev/internal/auth"
	"gatepass.dev/internal/checkin"
	"gatepass.dev/internal/config"
	"gatepass.dev/internal/credential"
	"gatepass.dev/internal/fanout"
	"gatepass.dev/internal/httpapi"
	"gatepass.dev/internal/obs"
	"gatepass.dev/internal/store/pg"
	"gatepass.dev/internal/syncq"
	"gatepass.dev/internal/tenant"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Storage. With a DSN the service runs against Postgres; without one it
	// keeps everything in process, seeded with demo data for local scanning.
	var (
		store      checkin.Store
		staff      auth.StaffStore
		ready      httpapi.ReadyProbe
		auditSink  checkin.AuditFunc
		pgStore    *pg.Store
		closeStore = func() {}
	)
	if cfg.PostgresDSN != "" {
		pgStore, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		staff = pgStore
		ready = httpapi.ReadyProbe{DB: pgStore.DB()}
		closeStore = func() { _ = pgStore.Close() }
		auditSink = func(ctx context.Context, event string, fields map[string]any) error {
			_ = audit.LogEvent(ctx, event, fields)
			return pgStore.AppendAudit(ctx, event, fields)
		}
	} else {
		store, staff = devFixtures()
		auditSink = audit.LogEvent
		log.Println("no GATEPASS_PG_DSN set, using in-memory store with demo data")
	}

	hub := fanout.New()
	stopPings := hub.StartPings(cfg.PingInterval)

	coord := checkin.NewCoordinator(store, hub, auditSink)
	rec := checkin.NewReconciler(coord)

	// Background replay queue for batches that did not fully sync inline.
	rootCtx, stopRoot := context.WithCancel(context.Background())
	var queue syncq.Queue
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		host, _ := os.Hostname()
		queue, err = syncq.NewRedis(rootCtx, client, cfg.SyncStream, cfg.SyncGroup, host)
		if err != nil {
			log.Fatalf("connect redis: %v", err)
		}
	} else {
		queue = syncq.NewMemory(64)
	}
	go func() {
		err := queue.Run(rootCtx, func(ctx context.Context, b syncq.Batch) (checkin.BatchResult, error) {
			if b.TenantID != "" {
				ctx = tenant.ContextWithID(ctx, b.TenantID)
			}
			return rec.Reconcile(ctx, b.ID, b.Items)
		})
		if err != nil && rootCtx.Err() == nil {
			log.Printf("sync queue stopped: %v", err)
		}
	}()

	api := httpapi.New(httpapi.Config{
		Version:      version,
		Ready:        ready,
		Store:        store,
		Staff:        staff,
		Coordinator:  coord,
		Reconciler:   rec,
		Hub:          hub,
		Queue:        queue,
		TokenTTL:     cfg.TokenTTL,
		MaxBodyBytes: cfg.MaxBodyBytes,
		RateBurst:    cfg.RateBurst,
		RatePerSec:   cfg.RatePerSec,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // SSE connections outlive any write deadline
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting gatepass-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	stopRoot()
	stopPings()
	closeStore()
	log.Println("Stopped")
}

// devFixtures seeds the in-process store with a demo tenant so the API is
// scannable out of the box. Tokens: demo-token-1, demo-token-2. Staff login:
// demo@gatepass.dev / demo-password.
func devFixtures() (*checkin.InMemory, *auth.MemoryStaff) {
	store := checkin.NewInMemory()
	tn := store.AddTenant(tenant.Tenant{ID: "t_demo", Name: "Demo Org", Slug: "demo", Active: true, Plan: tenant.PlanPro})
	ev := store.AddEvent(checkin.Event{ID: "e_launch", TenantID: tn.ID, Name: "Launch Night", Status: checkin.EventActive})
	store.AddGuest(checkin.Guest{ID: "g_ada", EventID: ev.ID, TenantID: tn.ID, Name: "Ada", CredentialHash: credential.HashToken("demo-token-1")})
	store.AddGuest(checkin.Guest{ID: "g_grace", EventID: ev.ID, TenantID: tn.ID, Name: "Grace", CredentialHash: credential.HashToken("demo-token-2")})

	staff := auth.NewMemoryStaff()
	if hash, err := auth.HashPassword("demo-password"); err == nil {
		staff.Add(auth.StaffUser{
			ID:           "u_demo",
			TenantID:     tn.ID,
			Email:        "demo@gatepass.dev",
			PasswordHash: hash,
			Roles:        []string{"scanner", "organizer"},
			Active:       true,
		})
	}
	return store, staff
}
