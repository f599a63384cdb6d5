package checkin

import (
	"context"

	"gatepass.dev/internal/tenant"
)

// Store is the single source of truth the coordinator runs against. Any
// backend works as long as InsertIfAbsent is atomic per guest: two
// concurrent calls for the same guest must never both report inserted=true.
// The Postgres implementation backs this with a uniqueness constraint; the
// in-memory one with a mutex.
type Store interface {
	TenantByID(ctx context.Context, id string) (tenant.Tenant, error)
	EventByID(ctx context.Context, id string) (Event, error)
	GuestByID(ctx context.Context, id string) (Guest, error)

	// GuestByCredentialHash looks a guest up by the one-way hash of their
	// scannable token. ErrNotFound when no hash matches.
	GuestByCredentialHash(ctx context.Context, hash string) (Guest, error)

	// InsertIfAbsent persists rec as the authoritative record for guestID
	// unless one already exists. Returns the authoritative record and whether
	// this call inserted it. The insert attempt itself is the race-resolution
	// point: a lost race returns the winner's record with inserted=false.
	InsertIfAbsent(ctx context.Context, guestID string, rec CheckInRecord) (CheckInRecord, bool, error)

	// AuthoritativeRecord returns the accepted record for a guest, or
	// ErrNotFound when the guest has not checked in.
	AuthoritativeRecord(ctx context.Context, guestID string) (CheckInRecord, error)

	// GuestsByEvent lists an event's guests with their checked-in projection,
	// for snapshot reconciliation by fanout subscribers.
	GuestsByEvent(ctx context.Context, eventID string) ([]Guest, error)
}
