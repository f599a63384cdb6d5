package checkin

import (
	"errors"
	"time"
)

// EventStatus is the lifecycle state of an event. Scans are accepted only
// while the event is Published or Active.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventActive    EventStatus = "active"
	EventClosed    EventStatus = "closed"
)

// Scannable reports whether the event admits check-ins in this state.
func (s EventStatus) Scannable() bool {
	return s == EventPublished || s == EventActive
}

// Event belongs to exactly one tenant and owns its guest list.
type Event struct {
	ID        string      `json:"id"`
	TenantID  string      `json:"tenant_id"`
	Name      string      `json:"name"`
	Status    EventStatus `json:"status"`
	StartsAt  time.Time   `json:"starts_at"`
	CreatedAt time.Time   `json:"created_at"`
}

// Guest belongs to exactly one event. CredentialHash is the one-way hash of
// the guest's QR token; the plaintext token is never stored. CheckedIn is a
// projection of the check-in history, not authoritative truth.
type Guest struct {
	ID             string    `json:"id"`
	EventID        string    `json:"event_id"`
	TenantID       string    `json:"tenant_id"`
	Name           string    `json:"name"`
	CredentialHash string    `json:"-"`
	CheckedIn      bool      `json:"checked_in"`
	CreatedAt      time.Time `json:"created_at"`
}

// CheckInRecord is append-oriented. Only the first persisted record per guest
// is authoritative; later attempts surface it as a duplicate and never
// overwrite it.
type CheckInRecord struct {
	ID         string    `json:"id"`
	GuestID    string    `json:"guest_id"`
	EventTime  time.Time `json:"event_time"` // logical scan time, device clock
	RecordedAt time.Time `json:"recorded_at"`
	DeviceID   string    `json:"device_id,omitempty"`
	Synced     bool      `json:"synced"`
	Offline    bool      `json:"offline"` // recorded while the device was disconnected
}

// Submission is one scan attempt entering the coordinator, live or replayed
// from an offline batch.
type Submission struct {
	GuestID   string    `json:"guest_id"`
	EventTime time.Time `json:"event_time"`
	DeviceID  string    `json:"device_id"`
	Offline   bool      `json:"offline"`
}

// Status is the terminal outcome of a scan attempt.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusDuplicate Status = "duplicate"
	StatusRejected  Status = "rejected"
)

// Rejection reasons carried on rejected results.
const (
	ReasonEventNotActive = "event_not_active"
)

// Result is the typed outcome of an attempt. Record holds the freshly
// accepted record on Accepted, or the existing authoritative record on
// Duplicate. Reason is set only on Rejected.
type Result struct {
	Status Status        `json:"status"`
	Record CheckInRecord `json:"record,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

var (
	ErrNotFound         = errors.New("checkin: not found")
	ErrEventNotActive   = errors.New("checkin: event not active")
	ErrCrossTenantRef   = errors.New("checkin: cross-tenant reference")
	ErrStoreUnavailable = errors.New("checkin: store unavailable")
)

// Summary is the fanout payload produced for an accepted check-in.
type Summary struct {
	TenantID  string    `json:"tenant_id"`
	EventID   string    `json:"event_id"`
	GuestID   string    `json:"guest_id"`
	RecordID  string    `json:"record_id"`
	EventTime time.Time `json:"event_time"`
	DeviceID  string    `json:"device_id,omitempty"`
}
