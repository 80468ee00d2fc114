package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streamrelay/platform/pkg/api"
)

// Store persists Devices, HostClients, and DeviceCommands in Postgres.
type Store struct {
	db *sql.DB
}

// NewStore wraps a connection pool.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// CreateDevice inserts a device row with the given token hash (spec §4.5,
// §6 "POST /api/devices").
func (s *Store) CreateDevice(ctx context.Context, tenant, name, kind string, metadata map[string]interface{}, tokenHash string) (*Device, error) {
	dev := &Device{
		ID:             uuid.NewString(),
		Tenant:         tenant,
		Name:           name,
		Kind:           kind,
		Status:         StatusOffline,
		AgentTokenHash: tokenHash,
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC(),
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("device: marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO devices (id, tenant, name, kind, status, agent_token_hash, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		dev.ID, dev.Tenant, dev.Name, dev.Kind, dev.Status, dev.AgentTokenHash, meta, dev.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("device: create device: %w", err)
	}
	return dev, nil
}

// GetDevice fetches one device scoped to tenant.
func (s *Store) GetDevice(ctx context.Context, tenant, id string) (*Device, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant, name, kind, status, agent_token_hash, last_seen, metadata,
		       client_id, connection_type, connection_params, created_at
		FROM devices WHERE tenant = $1 AND id = $2`, tenant, id)
	return scanDevice(row)
}

// GetDeviceByTokenHash looks up a device by its agent token hash (spec
// §4.5: "the server looks up by hash"), regardless of tenant — the agent
// presents only the token, never a tenant selector.
func (s *Store) GetDeviceByTokenHash(ctx context.Context, hash string) (*Device, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant, name, kind, status, agent_token_hash, last_seen, metadata,
		       client_id, connection_type, connection_params, created_at
		FROM devices WHERE agent_token_hash = $1`, hash)
	return scanDevice(row)
}

// ListDevices returns every device for tenant.
func (s *Store) ListDevices(ctx context.Context, tenant string) ([]*Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, name, kind, status, agent_token_hash, last_seen, metadata,
		       client_id, connection_type, connection_params, created_at
		FROM devices WHERE tenant = $1 ORDER BY created_at DESC`, tenant)
	if err != nil {
		return nil, fmt.Errorf("device: list devices: %w", err)
	}
	defer rows.Close()

	var out []*Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dev)
	}
	return out, rows.Err()
}

// UpdateDevice patches name/metadata (spec §6 PATCH /api/devices/{id}).
func (s *Store) UpdateDevice(ctx context.Context, tenant, id, name string, metadata map[string]interface{}) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("device: marshal metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE devices SET name = COALESCE(NULLIF($1, ''), name), metadata = $2
		WHERE tenant = $3 AND id = $4`, name, meta, tenant, id)
	return checkUpdated(res, err, "update device")
}

// DeleteDevice removes a device row.
func (s *Store) DeleteDevice(ctx context.Context, tenant, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE tenant = $1 AND id = $2`, tenant, id)
	return checkUpdated(res, err, "delete device")
}

// SetDeviceStatus flips a device's status and last_seen (spec §4.5 "on agent
// connect/disconnect").
func (s *Store) SetDeviceStatus(ctx context.Context, id string, status Status, lastSeen time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE devices SET status = $1, last_seen = $2 WHERE id = $3`, status, lastSeen, id)
	if err != nil {
		return fmt.Errorf("device: set device status: %w", err)
	}
	return nil
}

// BindDeviceToClient sets a device's client_id (spec §4.5: "Devices may be
// bound to a host client via client_id").
func (s *Store) BindDeviceToClient(ctx context.Context, tenant, deviceID, clientID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET client_id = $1 WHERE tenant = $2 AND id = $3`, clientID, tenant, deviceID)
	return checkUpdated(res, err, "bind device to client")
}

// DevicesForClient lists every device currently bound to clientID, for
// replay-on-reconnect (spec §4.6).
func (s *Store) DevicesForClient(ctx context.Context, clientID string) ([]*Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, name, kind, status, agent_token_hash, last_seen, metadata,
		       client_id, connection_type, connection_params, created_at
		FROM devices WHERE client_id = $1`, clientID)
	if err != nil {
		return nil, fmt.Errorf("device: devices for client: %w", err)
	}
	defer rows.Close()

	var out []*Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dev)
	}
	return out, rows.Err()
}

// CreateHostClient inserts a host-client row (spec §4.5, §6 "POST /api/clients/register").
func (s *Store) CreateHostClient(ctx context.Context, tenant, name, clientType, os, version string, metadata map[string]interface{}) (*HostClient, error) {
	hc := &HostClient{
		ID: uuid.NewString(), Tenant: tenant, Name: name, Type: clientType, OS: os,
		Version: version, Status: StatusOffline, Metadata: metadata, CreatedAt: time.Now().UTC(),
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("device: marshal client metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO host_clients (id, tenant, name, type, os, version, status, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		hc.ID, hc.Tenant, hc.Name, hc.Type, hc.OS, hc.Version, hc.Status, meta, hc.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("device: create host client: %w", err)
	}
	return hc, nil
}

// GetHostClient fetches one host client scoped to tenant.
func (s *Store) GetHostClient(ctx context.Context, tenant, id string) (*HostClient, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant, name, type, os, version, status, last_seen, metadata, created_at
		FROM host_clients WHERE tenant = $1 AND id = $2`, tenant, id)
	return scanHostClient(row)
}

// ListHostClients returns every host client for tenant.
func (s *Store) ListHostClients(ctx context.Context, tenant string) ([]*HostClient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, name, type, os, version, status, last_seen, metadata, created_at
		FROM host_clients WHERE tenant = $1 ORDER BY created_at DESC`, tenant)
	if err != nil {
		return nil, fmt.Errorf("device: list host clients: %w", err)
	}
	defer rows.Close()

	var out []*HostClient
	for rows.Next() {
		hc, err := scanHostClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, hc)
	}
	return out, rows.Err()
}

// DeleteHostClient removes a host-client row.
func (s *Store) DeleteHostClient(ctx context.Context, tenant, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM host_clients WHERE tenant = $1 AND id = $2`, tenant, id)
	return checkUpdated(res, err, "delete host client")
}

// SetHostClientStatus flips status/last_seen.
func (s *Store) SetHostClientStatus(ctx context.Context, id string, status Status, lastSeen time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE host_clients SET status = $1, last_seen = $2 WHERE id = $3`, status, lastSeen, id)
	if err != nil {
		return fmt.Errorf("device: set host client status: %w", err)
	}
	return nil
}

// CreateCommand persists a new command in pending status (spec §4.6 step 2,
// §3 invariant "persisted before any network attempt").
func (s *Store) CreateCommand(ctx context.Context, tenant, deviceID, commandType string, params map[string]interface{}) (*Command, error) {
	cmd := &Command{
		ID: uuid.NewString(), DeviceID: deviceID, Tenant: tenant, CommandType: commandType,
		Parameters: params, Status: CommandPending, CreatedAt: time.Now().UTC(),
	}
	p, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("device: marshal command parameters: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO device_commands (id, device_id, tenant, command_type, parameters, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		cmd.ID, cmd.DeviceID, cmd.Tenant, cmd.CommandType, p, cmd.Status, cmd.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("device: create command: %w", err)
	}
	return cmd, nil
}

// MarkSent transitions a command to sent (spec §4.6 step 3).
func (s *Store) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE device_commands SET status = $1, sent_at = $2 WHERE id = $3 AND status = $4`,
		CommandSent, at, id, CommandPending)
	if err != nil {
		return fmt.Errorf("device: mark command sent: %w", err)
	}
	return nil
}

// MarkTerminal transitions a command to completed or failed (spec §4.6,
// §8 property 3: completed_at set iff terminal).
func (s *Store) MarkTerminal(ctx context.Context, id string, status CommandStatus, result map[string]interface{}, errMsg string, at time.Time) error {
	if status != CommandCompleted && status != CommandFailed {
		return fmt.Errorf("device: invalid terminal status %q", status)
	}
	r, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("device: marshal command result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE device_commands SET status = $1, result = $2, error_message = $3, completed_at = $4
		WHERE id = $5`, status, r, errMsg, at, id)
	if err != nil {
		return fmt.Errorf("device: mark command terminal: %w", err)
	}
	return nil
}

// PendingCommandsForDevice returns pending commands ordered by created_at
// ascending (spec §4.6 "Replay on reconnect").
func (s *Store) PendingCommandsForDevice(ctx context.Context, deviceID string) ([]*Command, error) {
	return s.pendingCommands(ctx, `WHERE device_id = $1 AND status = $2 ORDER BY created_at ASC`, deviceID, CommandPending)
}

// PendingCommandsForClient returns pending commands across every device
// bound to clientID, ordered by created_at ascending.
func (s *Store) PendingCommandsForClient(ctx context.Context, clientID string) ([]*Command, error) {
	return s.pendingCommands(ctx, `
		WHERE status = $2 AND device_id IN (SELECT id FROM devices WHERE client_id = $1)
		ORDER BY created_at ASC`, clientID, CommandPending)
}

func (s *Store) pendingCommands(ctx context.Context, where string, args ...interface{}) ([]*Command, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, tenant, command_type, parameters, status, result,
		       error_message, created_at, sent_at, completed_at
		FROM device_commands `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("device: pending commands: %w", err)
	}
	defer rows.Close()

	var out []*Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, rows.Err()
}

// GetCommand fetches one command scoped to a device.
func (s *Store) GetCommand(ctx context.Context, deviceID, id string) (*Command, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, tenant, command_type, parameters, status, result,
		       error_message, created_at, sent_at, completed_at
		FROM device_commands WHERE device_id = $1 AND id = $2`, deviceID, id)
	return scanCommand(row)
}

// GetCommandByID fetches one command by id alone, used by the agent-reply
// handler which only knows command_id (spec §4.6 "Replies for unknown
// command_id are logged and dropped").
func (s *Store) GetCommandByID(ctx context.Context, id string) (*Command, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, tenant, command_type, parameters, status, result,
		       error_message, created_at, sent_at, completed_at
		FROM device_commands WHERE id = $1`, id)
	return scanCommand(row)
}

// ListCommands returns the most recent limit commands for a device, newest
// first (spec §6 "GET /api/devices/{id}/commands?limit=50").
func (s *Store) ListCommands(ctx context.Context, deviceID string, limit int) ([]*Command, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, tenant, command_type, parameters, status, result,
		       error_message, created_at, sent_at, completed_at
		FROM device_commands WHERE device_id = $1 ORDER BY created_at DESC LIMIT $2`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("device: list commands: %w", err)
	}
	defer rows.Close()

	var out []*Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, rows.Err()
}

func checkUpdated(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("device: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("device: %s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("device: %s: %w", op, api.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row scanner) (*Device, error) {
	var d Device
	var lastSeen sql.NullTime
	var metadata, connParams []byte
	var clientID, connType sql.NullString
	err := row.Scan(&d.ID, &d.Tenant, &d.Name, &d.Kind, &d.Status, &d.AgentTokenHash,
		&lastSeen, &metadata, &clientID, &connType, &connParams, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("device: %w", api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("device: scan device: %w", err)
	}
	if lastSeen.Valid {
		d.LastSeen = &lastSeen.Time
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &d.Metadata)
	}
	d.ClientID = clientID.String
	d.ConnectionType = connType.String
	if len(connParams) > 0 {
		_ = json.Unmarshal(connParams, &d.ConnectionParams)
	}
	return &d, nil
}

func scanHostClient(row scanner) (*HostClient, error) {
	var hc HostClient
	var lastSeen sql.NullTime
	var metadata []byte
	var clientType, os, version sql.NullString
	err := row.Scan(&hc.ID, &hc.Tenant, &hc.Name, &clientType, &os, &version,
		&hc.Status, &lastSeen, &metadata, &hc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("device: host client: %w", api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("device: scan host client: %w", err)
	}
	hc.Type = clientType.String
	hc.OS = os.String
	hc.Version = version.String
	if lastSeen.Valid {
		hc.LastSeen = &lastSeen.Time
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &hc.Metadata)
	}
	return &hc, nil
}

func scanCommand(row scanner) (*Command, error) {
	var cmd Command
	var params, result []byte
	var errMsg sql.NullString
	var sentAt, completedAt sql.NullTime
	err := row.Scan(&cmd.ID, &cmd.DeviceID, &cmd.Tenant, &cmd.CommandType, &params,
		&cmd.Status, &result, &errMsg, &cmd.CreatedAt, &sentAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("device: command: %w", api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("device: scan command: %w", err)
	}
	if len(params) > 0 {
		_ = json.Unmarshal(params, &cmd.Parameters)
	}
	if len(result) > 0 {
		_ = json.Unmarshal(result, &cmd.Result)
	}
	cmd.ErrorMessage = errMsg.String
	if sentAt.Valid {
		cmd.SentAt = &sentAt.Time
	}
	if completedAt.Valid {
		cmd.CompletedAt = &completedAt.Time
	}
	return &cmd, nil
}
