package authsvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/streamrelay/platform/pkg/api"
)

const pgUniqueViolation = "23505"

// Store persists Tenants and Memberships.
type Store struct {
	db *sql.DB
}

// NewStore wraps a connection pool.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// CreateTenant inserts a new tenant.
func (s *Store) CreateTenant(ctx context.Context, name string) (*Tenant, error) {
	t := &Tenant{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, created_at) VALUES ($1,$2,$3)`, t.ID, t.Name, t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("authsvc: create tenant: %w", err)
	}
	return t, nil
}

// GetTenant fetches one tenant by id.
func (s *Store) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM tenants WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("authsvc: tenant: %w", api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("authsvc: get tenant: %w", err)
	}
	return &t, nil
}

// AddMembership binds userID to tenantID with role, failing with
// ErrAlreadyExists on a duplicate (tenant_id, user_id) pair.
func (s *Store) AddMembership(ctx context.Context, tenantID, userID, role string) (*Membership, error) {
	m := &Membership{ID: uuid.NewString(), TenantID: tenantID, UserID: userID, Role: role, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memberships (id, tenant_id, user_id, role, created_at)
		VALUES ($1,$2,$3,$4,$5)`, m.ID, m.TenantID, m.UserID, m.Role, m.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("authsvc: membership: %w", api.ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("authsvc: add membership: %w", err)
	}
	return m, nil
}

// FindMembership looks up a (tenant, user) membership, the sole credential
// check a token mint performs (spec §1 Non-goals: no password flow).
func (s *Store) FindMembership(ctx context.Context, tenantID, userID string) (*Membership, error) {
	var m Membership
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, role, created_at
		FROM memberships WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID).
		Scan(&m.ID, &m.TenantID, &m.UserID, &m.Role, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("authsvc: membership: %w", api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("authsvc: find membership: %w", err)
	}
	return &m, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation, checked via pgconn's structured error rather than a brittle
// string match.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
