package checkin

import (
	"context"
	"sort"
	"sync"
	"time"

	"gatepass.dev/internal/ids"
	"gatepass.dev/internal/tenant"
)

// InMemory implements Store with in-process concurrency safety. Used for
// tests and single-node deployments without Postgres.
type InMemory struct {
	mu      sync.RWMutex
	tenants map[string]tenant.Tenant
	events  map[string]Event
	guests  map[string]Guest
	byHash  map[string]string        // credential hash -> guest id
	records map[string]CheckInRecord // guest id -> authoritative record
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		tenants: make(map[string]tenant.Tenant),
		events:  make(map[string]Event),
		guests:  make(map[string]Guest),
		byHash:  make(map[string]string),
		records: make(map[string]CheckInRecord),
	}
}

// AddTenant registers a tenant. Empty id gets generated.
func (s *InMemory) AddTenant(t tenant.Tenant) tenant.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = ids.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.tenants[t.ID] = t
	return t
}

// AddEvent registers an event under its tenant.
func (s *InMemory) AddEvent(e Event) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.events[e.ID] = e
	return e
}

// AddGuest registers a guest and indexes their credential hash.
func (s *InMemory) AddGuest(g Guest) Guest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == "" {
		g.ID = ids.New()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	s.guests[g.ID] = g
	if g.CredentialHash != "" {
		s.byHash[g.CredentialHash] = g.ID
	}
	return g
}

// SetEventStatus flips an event's lifecycle state.
func (s *InMemory) SetEventStatus(eventID string, status EventStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.events[eventID]; ok {
		e.Status = status
		s.events[eventID] = e
	}
}

func (s *InMemory) TenantByID(ctx context.Context, id string) (tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return tenant.Tenant{}, ErrNotFound
	}
	return t, nil
}

func (s *InMemory) EventByID(ctx context.Context, id string) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	return e, nil
}

func (s *InMemory) GuestByID(ctx context.Context, id string) (Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.guests[id]
	if !ok {
		return Guest{}, ErrNotFound
	}
	_, g.CheckedIn = s.records[g.ID]
	return g, nil
}

func (s *InMemory) GuestByCredentialHash(ctx context.Context, hash string) (Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hash]
	if !ok {
		return Guest{}, ErrNotFound
	}
	g := s.guests[id]
	_, g.CheckedIn = s.records[g.ID]
	return g, nil
}

func (s *InMemory) InsertIfAbsent(ctx context.Context, guestID string, rec CheckInRecord) (CheckInRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.guests[guestID]; !ok {
		return CheckInRecord{}, false, ErrNotFound
	}
	if existing, ok := s.records[guestID]; ok {
		return existing, false, nil
	}
	s.records[guestID] = rec
	return rec, true, nil
}

func (s *InMemory) AuthoritativeRecord(ctx context.Context, guestID string) (CheckInRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[guestID]
	if !ok {
		return CheckInRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemory) GuestsByEvent(ctx context.Context, eventID string) ([]Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.events[eventID]; !ok {
		return nil, ErrNotFound
	}
	var out []Guest
	for _, g := range s.guests {
		if g.EventID != eventID {
			continue
		}
		_, g.CheckedIn = s.records[g.ID]
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
