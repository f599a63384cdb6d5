package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrUnauthorized = errors.New("auth: unauthorized")
)

// StaffUser is a scanner operator or organizer account bound to one tenant.
type StaffUser struct {
	ID           string
	TenantID     string
	Email        string
	PasswordHash string
	Roles        []string
	Active       bool
	CreatedAt    time.Time
}

// StaffStore looks staff accounts up for token issuance.
type StaffStore interface {
	StaffByEmail(ctx context.Context, email string) (StaffUser, error)
}

// MemoryStaff implements StaffStore in process, for tests and dev mode.
type MemoryStaff struct {
	mu    sync.RWMutex
	users map[string]StaffUser // lowercased email -> user
}

func NewMemoryStaff() *MemoryStaff {
	return &MemoryStaff{users: make(map[string]StaffUser)}
}

// Add registers a staff user keyed by email.
func (m *MemoryStaff) Add(u StaffUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[strings.ToLower(u.Email)] = u
}

func (m *MemoryStaff) StaffByEmail(ctx context.Context, email string) (StaffUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return StaffUser{}, ErrNotFound
	}
	return u, nil
}

// IssueToken authenticates a staff login and mints the scanner JWT carrying
// the tenant claim.
func IssueToken(ctx context.Context, store StaffStore, email, password string, ttl time.Duration) (string, StaffUser, error) {
	user, err := store.StaffByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", StaffUser{}, ErrUnauthorized
		}
		return "", StaffUser{}, err
	}
	if !user.Active {
		return "", StaffUser{}, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return "", StaffUser{}, ErrUnauthorized
	}
	token, err := GenerateToken(user.ID, user.TenantID, user.Roles, ttl)
	if err != nil {
		return "", StaffUser{}, err
	}
	return token, user, nil
}
