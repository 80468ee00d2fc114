package ingestor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streamrelay/platform/pkg/api"
)

// Store persists LivestreamSessions in Postgres. Only the worker that owns a
// session ever mutates it (spec §3: "mutated only by the Ingestor worker
// that owns it"); Store itself has no opinion about ownership and simply
// executes whatever the caller asks.
type Store struct {
	db *sql.DB
}

// NewStore wraps a connection pool.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Create inserts a new session in StatusConnecting.
func (s *Store) Create(ctx context.Context, tenant, sourceHandle string) (*Session, error) {
	sess := &Session{
		ID:           uuid.NewString(),
		Tenant:       tenant,
		SourceHandle: sourceHandle,
		Status:       StatusConnecting,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO livestream_sessions (id, tenant, source_handle, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.Tenant, sess.SourceHandle, sess.Status, sess.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ingestor: create session: %w", err)
	}
	return sess, nil
}

// Get fetches one session scoped to tenant.
func (s *Store) Get(ctx context.Context, tenant, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant, source_handle, status, room_id,
		       comments, gifts, likes, joins, follows, shares,
		       connected_at, disconnected_at, created_at
		FROM livestream_sessions WHERE tenant = $1 AND id = $2`, tenant, id)
	return scanSession(row)
}

// List returns every session for tenant, newest first.
func (s *Store) List(ctx context.Context, tenant string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, source_handle, status, room_id,
		       comments, gifts, likes, joins, follows, shares,
		       connected_at, disconnected_at, created_at
		FROM livestream_sessions WHERE tenant = $1 ORDER BY created_at DESC`, tenant)
	if err != nil {
		return nil, fmt.Errorf("ingestor: list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// MarkLive records a connect from the source (spec §4.1).
func (s *Store) MarkLive(ctx context.Context, id, roomID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE livestream_sessions SET status = $1, room_id = $2, connected_at = $3
		WHERE id = $4`, StatusLive, roomID, at, id)
	return checkUpdated(res, err, "mark live")
}

// MarkDisconnected records a disconnect/live_end from the source.
func (s *Store) MarkDisconnected(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE livestream_sessions SET status = $1, disconnected_at = $2
		WHERE id = $3`, StatusDisconnected, at, id)
	return checkUpdated(res, err, "mark disconnected")
}

// MarkError records a worker-side failure.
func (s *Store) MarkError(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE livestream_sessions SET status = $1 WHERE id = $2`, StatusError, id)
	return checkUpdated(res, err, "mark error")
}

// counterColumn maps an EventKind to the counter column it increments (spec
// §4.1: "increments the corresponding counter atomically").
func counterColumn(kind EventKind) (string, bool) {
	switch kind {
	case EventComment:
		return "comments", true
	case EventGift:
		return "gifts", true
	case EventLike:
		return "likes", true
	case EventJoin:
		return "joins", true
	case EventFollow:
		return "follows", true
	case EventShare:
		return "shares", true
	default:
		return "", false
	}
}

// IncrementCounter atomically bumps the counter column for kind. No-op for
// kinds that don't carry a counter (connect/disconnect/live_end).
func (s *Store) IncrementCounter(ctx context.Context, id string, kind EventKind) error {
	col, ok := counterColumn(kind)
	if !ok {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE livestream_sessions SET %s = %s + 1 WHERE id = $1`, col, col), id)
	if err != nil {
		return fmt.Errorf("ingestor: increment %s: %w", col, err)
	}
	return nil
}

func checkUpdated(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("ingestor: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ingestor: %s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("ingestor: %s: %w", op, api.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*Session, error) {
	var sess Session
	var roomID sql.NullString
	var connectedAt, disconnectedAt sql.NullTime
	err := row.Scan(
		&sess.ID, &sess.Tenant, &sess.SourceHandle, &sess.Status, &roomID,
		&sess.Counters.Comments, &sess.Counters.Gifts, &sess.Counters.Likes,
		&sess.Counters.Joins, &sess.Counters.Follows, &sess.Counters.Shares,
		&connectedAt, &disconnectedAt, &sess.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ingestor: session: %w", api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ingestor: scan session: %w", err)
	}
	sess.RoomID = roomID.String
	if connectedAt.Valid {
		sess.ConnectedAt = &connectedAt.Time
	}
	if disconnectedAt.Valid {
		sess.DisconnectedAt = &disconnectedAt.Time
	}
	return &sess, nil
}
