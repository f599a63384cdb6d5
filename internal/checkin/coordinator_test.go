package checkin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gatepass.dev/internal/tenant"
)

type capturePublisher struct {
	mu        sync.Mutex
	summaries []Summary
}

func (p *capturePublisher) PublishCheckIn(s Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, s)
}

func (p *capturePublisher) published() []Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Summary, len(p.summaries))
	copy(out, p.summaries)
	return out
}

type captureAudit struct {
	mu      sync.Mutex
	entries []map[string]any
}

func (a *captureAudit) record(ctx context.Context, event string, fields map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, fields)
	return nil
}

func (a *captureAudit) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func newTestCore(t *testing.T) (*InMemory, *Coordinator, *capturePublisher, *captureAudit, Guest) {
	t.Helper()
	store := NewInMemory()
	tn := store.AddTenant(tenant.Tenant{ID: "t1", Name: "Acme", Active: true, Plan: tenant.PlanStandard})
	ev := store.AddEvent(Event{ID: "e1", TenantID: tn.ID, Name: "Launch", Status: EventPublished})
	guest := store.AddGuest(Guest{ID: "g1", EventID: ev.ID, TenantID: tn.ID, Name: "Ada", CredentialHash: "abc123"})

	pub := &capturePublisher{}
	aud := &captureAudit{}
	coord := NewCoordinator(store, pub, aud.record)
	return store, coord, pub, aud, guest
}

func TestAttemptAccepted(t *testing.T) {
	store, coord, pub, aud, guest := newTestCore(t)
	ctx := context.Background()

	res, err := coord.Attempt(ctx, Submission{GuestID: guest.ID, EventTime: time.Now(), DeviceID: "dev-1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusAccepted {
		t.Fatalf("status = %s, want accepted", res.Status)
	}
	if res.Record.ID == "" || res.Record.GuestID != guest.ID {
		t.Fatalf("bad record: %+v", res.Record)
	}

	g, _ := store.GuestByID(ctx, guest.ID)
	if !g.CheckedIn {
		t.Fatal("checked-in projection not set")
	}
	if got := pub.published(); len(got) != 1 || got[0].GuestID != guest.ID || got[0].EventID != "e1" {
		t.Fatalf("fanout = %+v, want one summary for g1/e1", got)
	}
	if aud.count() != 1 {
		t.Fatalf("audit entries = %d, want 1", aud.count())
	}
}

func TestDuplicateIsFirstPersistedWins(t *testing.T) {
	_, coord, pub, _, guest := newTestCore(t)
	ctx := context.Background()

	late := time.Now()
	first, err := coord.Attempt(ctx, Submission{GuestID: guest.ID, EventTime: late, DeviceID: "dev-1"})
	if err != nil {
		t.Fatal(err)
	}

	// A second attempt with an EARLIER event time is still a duplicate: once a
	// record is persisted and broadcast, nothing rewrites it.
	res, err := coord.Attempt(ctx, Submission{GuestID: guest.ID, EventTime: late.Add(-time.Hour), DeviceID: "dev-2"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusDuplicate {
		t.Fatalf("status = %s, want duplicate", res.Status)
	}
	if res.Record.ID != first.Record.ID {
		t.Fatalf("duplicate surfaced record %s, want existing %s", res.Record.ID, first.Record.ID)
	}
	if got := pub.published(); len(got) != 1 {
		t.Fatalf("fanout on duplicate: %d messages, want 1", len(got))
	}
}

func TestReplayIsIdempotent(t *testing.T) {
	_, coord, _, _, guest := newTestCore(t)
	ctx := context.Background()

	sub := Submission{GuestID: guest.ID, EventTime: time.Now(), DeviceID: "dev-1"}
	if _, err := coord.Attempt(ctx, sub); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		res, err := coord.Attempt(ctx, sub)
		if err != nil {
			t.Fatal(err)
		}
		if res.Status != StatusDuplicate {
			t.Fatalf("replay %d: status = %s, want duplicate", i, res.Status)
		}
	}
}

func TestRejectedWhenEventNotScannable(t *testing.T) {
	for _, status := range []EventStatus{EventDraft, EventClosed} {
		t.Run(string(status), func(t *testing.T) {
			store, coord, pub, aud, guest := newTestCore(t)
			store.SetEventStatus("e1", status)

			res, err := coord.Attempt(context.Background(), Submission{GuestID: guest.ID, EventTime: time.Now()})
			if err != nil {
				t.Fatal(err)
			}
			if res.Status != StatusRejected || res.Reason != ReasonEventNotActive {
				t.Fatalf("got %+v, want rejected/event_not_active", res)
			}
			if len(pub.published()) != 0 {
				t.Fatal("rejection must not fan out")
			}
			if aud.count() != 1 {
				t.Fatal("rejection must still be audited")
			}
		})
	}
}

func TestCrossTenantContextIsFatal(t *testing.T) {
	_, coord, _, _, guest := newTestCore(t)
	ctx := tenant.ContextWithID(context.Background(), "other-tenant")

	_, err := coord.Attempt(ctx, Submission{GuestID: guest.ID, EventTime: time.Now()})
	if !errors.Is(err, ErrCrossTenantRef) {
		t.Fatalf("err = %v, want ErrCrossTenantRef", err)
	}
}

func TestCrossTenantChainIsFatal(t *testing.T) {
	store, coord, _, _, _ := newTestCore(t)
	store.AddTenant(tenant.Tenant{ID: "t2", Active: true})
	// Guest whose tenant disagrees with its event's tenant.
	bad := store.AddGuest(Guest{ID: "g-bad", EventID: "e1", TenantID: "t2"})

	_, err := coord.Attempt(context.Background(), Submission{GuestID: bad.ID, EventTime: time.Now()})
	if !errors.Is(err, ErrCrossTenantRef) {
		t.Fatalf("err = %v, want ErrCrossTenantRef", err)
	}
}

func TestUnknownGuest(t *testing.T) {
	_, coord, _, _, _ := newTestCore(t)
	_, err := coord.Attempt(context.Background(), Submission{GuestID: "nope", EventTime: time.Now()})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestConcurrentAttemptsYieldOneAccepted(t *testing.T) {
	_, coord, pub, aud, guest := newTestCore(t)
	ctx := context.Background()

	const N = 64
	results := make([]Result, N)
	errs := make([]error, N)

	var start sync.WaitGroup
	var done sync.WaitGroup
	start.Add(1)
	for i := 0; i < N; i++ {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			start.Wait()
			results[i], errs[i] = coord.Attempt(ctx, Submission{
				GuestID:   guest.ID,
				EventTime: time.Now(),
				DeviceID:  "dev",
			})
		}(i)
	}
	start.Done()
	done.Wait()

	accepted, duplicate := 0, 0
	for i := 0; i < N; i++ {
		if errs[i] != nil {
			t.Fatalf("attempt %d: %v", i, errs[i])
		}
		switch results[i].Status {
		case StatusAccepted:
			accepted++
		case StatusDuplicate:
			duplicate++
		default:
			t.Fatalf("attempt %d: unexpected status %s", i, results[i].Status)
		}
	}
	if accepted != 1 || duplicate != N-1 {
		t.Fatalf("accepted=%d duplicate=%d, want 1/%d", accepted, duplicate, N-1)
	}
	if len(pub.published()) != 1 {
		t.Fatalf("fanout messages = %d, want exactly 1", len(pub.published()))
	}
	if aud.count() != N {
		t.Fatalf("audit entries = %d, want %d (every outcome audited)", aud.count(), N)
	}
}

func TestAbandonedCallerStillCompletes(t *testing.T) {
	store, coord, _, _, guest := newTestCore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // caller already gone

	res, err := coord.Attempt(ctx, Submission{GuestID: guest.ID, EventTime: time.Now(), DeviceID: "dev-1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusAccepted {
		t.Fatalf("status = %s, want accepted despite cancellation", res.Status)
	}
	if _, err := store.AuthoritativeRecord(context.Background(), guest.ID); err != nil {
		t.Fatalf("record not durable: %v", err)
	}
}
