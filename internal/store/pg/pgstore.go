package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gatepass.dev/internal/auth"
	"gatepass.dev/internal/checkin"
	"gatepass.dev/internal/ids"
	"gatepass.dev/internal/tenant"
)

// Store backs the coordination core with Postgres. The authoritative-slot
// invariant rides on the unique index over checkins(guest_id): the insert
// attempt itself is the race-resolution point, so the store needs no
// external lock and degrades gracefully across multiple API instances.
type Store struct {
	db *sql.DB
}

var (
	_ checkin.Store   = (*Store)(nil)
	_ auth.StaffStore = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) TenantByID(ctx context.Context, id string) (tenant.Tenant, error) {
	var t tenant.Tenant
	var plan string
	err := s.db.QueryRowContext(ctx, `
		select id, name, slug, active, plan, created_at
		from tenants where id=$1
	`, id).Scan(&t.ID, &t.Name, &t.Slug, &t.Active, &plan, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tenant.Tenant{}, checkin.ErrNotFound
	}
	if err != nil {
		return tenant.Tenant{}, err
	}
	t.Plan = tenant.Plan(plan)
	return t, nil
}

func (s *Store) EventByID(ctx context.Context, id string) (checkin.Event, error) {
	var e checkin.Event
	var status string
	var startsAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		select id, tenant_id, name, status, starts_at, created_at
		from events where id=$1
	`, id).Scan(&e.ID, &e.TenantID, &e.Name, &status, &startsAt, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return checkin.Event{}, checkin.ErrNotFound
	}
	if err != nil {
		return checkin.Event{}, err
	}
	e.Status = checkin.EventStatus(status)
	if startsAt.Valid {
		e.StartsAt = startsAt.Time
	}
	return e, nil
}

const guestColumns = `
	g.id, g.event_id, g.tenant_id, g.name, g.credential_hash, g.created_at,
	exists(select 1 from checkins c where c.guest_id = g.id) as checked_in
`

func (s *Store) GuestByID(ctx context.Context, id string) (checkin.Guest, error) {
	return s.guestRow(ctx, `select `+guestColumns+` from guests g where g.id=$1`, id)
}

func (s *Store) GuestByCredentialHash(ctx context.Context, hash string) (checkin.Guest, error) {
	return s.guestRow(ctx, `select `+guestColumns+` from guests g where g.credential_hash=$1`, hash)
}

func (s *Store) guestRow(ctx context.Context, query string, arg any) (checkin.Guest, error) {
	var g checkin.Guest
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&g.ID, &g.EventID, &g.TenantID, &g.Name, &g.CredentialHash, &g.CreatedAt, &g.CheckedIn,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return checkin.Guest{}, checkin.ErrNotFound
	}
	if err != nil {
		return checkin.Guest{}, err
	}
	return g, nil
}

func (s *Store) InsertIfAbsent(ctx context.Context, guestID string, rec checkin.CheckInRecord) (checkin.CheckInRecord, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		insert into checkins(id, guest_id, event_time, recorded_at, device_id, synced, offline)
		values ($1,$2,$3,$4,$5,$6,$7)
		on conflict (guest_id) do nothing
	`, rec.ID, guestID, rec.EventTime, rec.RecordedAt, rec.DeviceID, rec.Synced, rec.Offline)
	if err != nil {
		return checkin.CheckInRecord{}, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return checkin.CheckInRecord{}, false, err
	}
	if affected == 1 {
		return rec, true, nil
	}
	// Lost the race (or a record already existed): surface the winner.
	// Records are never deleted, so the row is guaranteed present.
	existing, err := s.AuthoritativeRecord(ctx, guestID)
	if err != nil {
		return checkin.CheckInRecord{}, false, err
	}
	return existing, false, nil
}

func (s *Store) AuthoritativeRecord(ctx context.Context, guestID string) (checkin.CheckInRecord, error) {
	var rec checkin.CheckInRecord
	var deviceID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		select id, guest_id, event_time, recorded_at, device_id, synced, offline
		from checkins where guest_id=$1
	`, guestID).Scan(&rec.ID, &rec.GuestID, &rec.EventTime, &rec.RecordedAt, &deviceID, &rec.Synced, &rec.Offline)
	if errors.Is(err, sql.ErrNoRows) {
		return checkin.CheckInRecord{}, checkin.ErrNotFound
	}
	if err != nil {
		return checkin.CheckInRecord{}, err
	}
	if deviceID.Valid {
		rec.DeviceID = deviceID.String
	}
	return rec, nil
}

func (s *Store) GuestsByEvent(ctx context.Context, eventID string) ([]checkin.Guest, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+guestColumns+`
		from guests g where g.event_id=$1
		order by g.id
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []checkin.Guest
	for rows.Next() {
		var g checkin.Guest
		if err := rows.Scan(&g.ID, &g.EventID, &g.TenantID, &g.Name, &g.CredentialHash, &g.CreatedAt, &g.CheckedIn); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) StaffByEmail(ctx context.Context, email string) (auth.StaffUser, error) {
	var u auth.StaffUser
	var roles string
	err := s.db.QueryRowContext(ctx, `
		select id, tenant_id, email, password_hash, roles, active, created_at
		from staff_users where lower(email)=lower($1)
	`, strings.TrimSpace(email)).Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &roles, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.StaffUser{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.StaffUser{}, err
	}
	if roles != "" {
		u.Roles = strings.Split(roles, ",")
	}
	return u, nil
}

// AppendAudit persists one audit entry. Outcomes keep flowing even when the
// table write fails; the JSON log line is the primary sink.
func (s *Store) AppendAudit(ctx context.Context, event string, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	var tenantID, actorID any
	if v, ok := tenant.IDFromContext(ctx); ok {
		tenantID = v
	}
	if v, ok := auth.UserIDFromContext(ctx); ok {
		actorID = v
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_entries(id, occurred_at, event, tenant_id, actor_id, fields)
		values ($1, now(), $2, $3, $4, $5)
	`, ids.New(), event, tenantID, actorID, payload)
	return err
}
