package tenant

import (
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("tenant: not found")
	ErrInactive   = errors.New("tenant: inactive")
	ErrUnresolved = errors.New("tenant: unresolved")
)

// Plan bounds what a tenant may do. Limits gate scan throughput and list
// sizes; they are advisory for storage but enforced at the API edge.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanStandard Plan = "standard"
	PlanPro      Plan = "pro"
)

// Limits returns the scan rate bounds for a plan tier.
func (p Plan) Limits() (perSecond, burst int) {
	switch p {
	case PlanPro:
		return 200, 400
	case PlanStandard:
		return 50, 100
	default:
		return 10, 20
	}
}

// Tenant is an isolated organizational account owning events, guests and
// staff users. Tenants are never deleted physically, only deactivated.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Active    bool      `json:"active"`
	Plan      Plan      `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
}
