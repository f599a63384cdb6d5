package checkin

import (
	"context"
	"errors"
	"testing"
	"time"

	"gatepass.dev/internal/tenant"
)

// flakyStore fails InsertIfAbsent for selected guests to simulate a store
// outage mid-batch.
type flakyStore struct {
	Store
	failing map[string]bool
}

func (f *flakyStore) InsertIfAbsent(ctx context.Context, guestID string, rec CheckInRecord) (CheckInRecord, bool, error) {
	if f.failing[guestID] {
		return CheckInRecord{}, false, errors.New("connection refused")
	}
	return f.Store.InsertIfAbsent(ctx, guestID, rec)
}

func seedBatchFixture(t *testing.T) (*InMemory, []Guest) {
	t.Helper()
	store := NewInMemory()
	store.AddTenant(tenant.Tenant{ID: "t1", Active: true})
	store.AddEvent(Event{ID: "e1", TenantID: "t1", Status: EventActive})
	guests := []Guest{
		store.AddGuest(Guest{ID: "g1", EventID: "e1", TenantID: "t1"}),
		store.AddGuest(Guest{ID: "g2", EventID: "e1", TenantID: "t1"}),
		store.AddGuest(Guest{ID: "g3", EventID: "e1", TenantID: "t1"}),
	}
	return store, guests
}

func TestReconcileEarlierScanWinsWithinBatch(t *testing.T) {
	store, _ := seedBatchFixture(t)
	coord := NewCoordinator(store, nil, nil)
	rec := NewReconciler(coord)

	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(90 * time.Second)

	// Later scan submitted first; ordering inside the batch must not depend
	// on submission order.
	batch := []Submission{
		{GuestID: "g1", EventTime: t2, DeviceID: "dev-a"},
		{GuestID: "g1", EventTime: t1, DeviceID: "dev-a"},
	}

	out, err := rec.Reconcile(context.Background(), "batch-1", batch)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Synced {
		t.Fatal("batch should be fully synced")
	}
	if len(out.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(out.Items))
	}
	first, second := out.Items[0], out.Items[1]
	if first.Result.Status != StatusAccepted || !first.Submission.EventTime.Equal(t1) {
		t.Fatalf("earliest scan not accepted: %+v", first)
	}
	if second.Result.Status != StatusDuplicate {
		t.Fatalf("later scan not duplicate: %+v", second)
	}
	authoritative, err := store.AuthoritativeRecord(context.Background(), "g1")
	if err != nil {
		t.Fatal(err)
	}
	if !authoritative.EventTime.Equal(t1) {
		t.Fatalf("authoritative event time = %v, want %v", authoritative.EventTime, t1)
	}
	if !authoritative.Offline {
		t.Fatal("replayed record should be flagged offline")
	}
}

func TestReconcileDistinctGuestsFanOutInTimestampOrder(t *testing.T) {
	store, _ := seedBatchFixture(t)
	pub := &capturePublisher{}
	coord := NewCoordinator(store, pub, nil)
	rec := NewReconciler(coord)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	batch := []Submission{
		{GuestID: "g3", EventTime: base.Add(3 * time.Minute), DeviceID: "dev-a"},
		{GuestID: "g1", EventTime: base.Add(1 * time.Minute), DeviceID: "dev-a"},
		{GuestID: "g2", EventTime: base.Add(2 * time.Minute), DeviceID: "dev-a"},
	}

	out, err := rec.Reconcile(context.Background(), "batch-2", batch)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Synced {
		t.Fatal("batch should be fully synced")
	}
	for _, item := range out.Items {
		if item.Result.Status != StatusAccepted {
			t.Fatalf("item %+v not accepted", item)
		}
	}

	got := pub.published()
	if len(got) != 3 {
		t.Fatalf("fanout messages = %d, want 3", len(got))
	}
	want := []string{"g1", "g2", "g3"}
	for i, s := range got {
		if s.GuestID != want[i] {
			t.Fatalf("fanout order[%d] = %s, want %s", i, s.GuestID, want[i])
		}
	}
}

func TestReconcilePartialFailureLeavesItemsUnsynced(t *testing.T) {
	store, _ := seedBatchFixture(t)
	flaky := &flakyStore{Store: store, failing: map[string]bool{"g2": true}}
	coord := NewCoordinator(flaky, nil, nil)
	rec := NewReconciler(coord)

	base := time.Now().UTC()
	batch := []Submission{
		{GuestID: "g1", EventTime: base},
		{GuestID: "g2", EventTime: base.Add(time.Second)},
		{GuestID: "g3", EventTime: base.Add(2 * time.Second)},
	}

	out, err := rec.Reconcile(context.Background(), "batch-3", batch)
	if err != nil {
		t.Fatal(err)
	}
	if out.Synced {
		t.Fatal("batch must not report synced with an unresolved item")
	}
	var unsynced int
	for _, item := range out.Items {
		if !item.Synced {
			unsynced++
			if item.Submission.GuestID != "g2" {
				t.Fatalf("wrong item unsynced: %+v", item)
			}
			if item.Error == "" {
				t.Fatal("unsynced item should carry the transient error")
			}
		}
	}
	if unsynced != 1 {
		t.Fatalf("unsynced items = %d, want 1", unsynced)
	}

	// Retry after the store recovers: previously resolved items replay as
	// duplicates, the stalled one lands, and the batch reports synced.
	flaky.failing = nil
	retry, err := rec.Reconcile(context.Background(), "batch-3", batch)
	if err != nil {
		t.Fatal(err)
	}
	if !retry.Synced {
		t.Fatal("retry should fully sync")
	}
	statuses := map[string]Status{}
	for _, item := range retry.Items {
		statuses[item.Submission.GuestID] = item.Result.Status
	}
	if statuses["g1"] != StatusDuplicate || statuses["g3"] != StatusDuplicate {
		t.Fatalf("resolved items should replay as duplicates: %v", statuses)
	}
	if statuses["g2"] != StatusAccepted {
		t.Fatalf("stalled item should finally land: %v", statuses)
	}
}

func TestReconcileUnknownGuestIsTerminal(t *testing.T) {
	store, _ := seedBatchFixture(t)
	coord := NewCoordinator(store, nil, nil)
	rec := NewReconciler(coord)

	out, err := rec.Reconcile(context.Background(), "batch-4", []Submission{
		{GuestID: "missing", EventTime: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Synced {
		t.Fatal("unknown guest is a terminal outcome, batch should sync")
	}
	item := out.Items[0]
	if item.Result.Status != StatusRejected || item.Result.Reason != ReasonUnknownGuest {
		t.Fatalf("got %+v, want rejected/unknown_guest", item.Result)
	}
}
