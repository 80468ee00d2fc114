package ruleengine

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

// Store persists Rules (with their Conditions/Actions) and RuleExecutions in
// Postgres, plain SQL, no ORM (DESIGN.md).
type Store struct {
	db *sql.DB
}

// NewStore wraps a connection pool.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Create inserts a rule and its ordered conditions/actions in one
// transaction (spec §9 "parent-owns-children with child-holds-foreign-key").
func (s *Store) Create(ctx context.Context, rule Rule) (*Rule, error) {
	rule.ID = uuid.NewString()
	rule.CreatedAt = time.Now().UTC()
	if rule.Status == "" {
		rule.Status = StatusDraft
	}
	if rule.LogicOperator == "" {
		rule.LogicOperator = LogicAND
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ruleengine: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rules (id, tenant, name, description, status, event_kind,
		                    session_filter, logic_operator, exec_count, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9)`,
		rule.ID, rule.Tenant, rule.Name, rule.Description, rule.Status, rule.EventKind,
		rule.SessionFilter, rule.LogicOperator, rule.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ruleengine: insert rule: %w", err)
	}

	for i := range rule.Conditions {
		c := &rule.Conditions[i]
		c.ID = uuid.NewString()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rule_conditions (id, rule_id, field, operator, value, "order")
			VALUES ($1,$2,$3,$4,$5,$6)`,
			c.ID, rule.ID, c.Field, c.Operator, c.Value, c.Order,
		); err != nil {
			return nil, fmt.Errorf("ruleengine: insert condition: %w", err)
		}
	}

	for i := range rule.Actions {
		a := &rule.Actions[i]
		a.ID = uuid.NewString()
		cfg, err := json.Marshal(a.Config)
		if err != nil {
			return nil, fmt.Errorf("ruleengine: marshal action config: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rule_actions (id, rule_id, kind, config, "order")
			VALUES ($1,$2,$3,$4,$5)`,
			a.ID, rule.ID, a.Kind, cfg, a.Order,
		); err != nil {
			return nil, fmt.Errorf("ruleengine: insert action: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ruleengine: commit create rule: %w", err)
	}
	return &rule, nil
}

// Get fetches one rule with conditions/actions eagerly expanded, ordered by
// Order ascending (spec §6, §8 "Rule create → read back ... modulo ordering by order").
func (s *Store) Get(ctx context.Context, tenant, id string) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant, name, description, status, event_kind, session_filter,
		       logic_operator, exec_count, last_exec_at, created_at
		FROM rules WHERE tenant = $1 AND id = $2`, tenant, id)

	rule, err := scanRule(row)
	if err != nil {
		return nil, err
	}
	if rule.Conditions, err = s.conditions(ctx, id); err != nil {
		return nil, err
	}
	if rule.Actions, err = s.actions(ctx, id); err != nil {
		return nil, err
	}
	return rule, nil
}

// List returns every rule for tenant, eagerly expanded.
func (s *Store) List(ctx context.Context, tenant string) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, name, description, status, event_kind, session_filter,
		       logic_operator, exec_count, last_exec_at, created_at
		FROM rules WHERE tenant = $1 ORDER BY created_at DESC`, tenant)
	if err != nil {
		return nil, fmt.Errorf("ruleengine: list rules: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		if rule.Conditions, err = s.conditions(ctx, rule.ID); err != nil {
			return nil, err
		}
		if rule.Actions, err = s.actions(ctx, rule.ID); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// SetStatus transitions a rule to a new status (activate/deactivate, spec §6).
func (s *Store) SetStatus(ctx context.Context, tenant, id string, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET status = $1 WHERE tenant = $2 AND id = $3`, status, tenant, id)
	if err != nil {
		return fmt.Errorf("ruleengine: set status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("ruleengine: rule: %w", api.ErrNotFound)
	}
	return nil
}

// Delete cascades to conditions, actions, and executions (spec §3: "Deleting
// a rule cascades conditions, actions, and executions").
func (s *Store) Delete(ctx context.Context, tenant, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE tenant = $1 AND id = $2`, tenant, id)
	if err != nil {
		return fmt.Errorf("ruleengine: delete rule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("ruleengine: rule: %w", api.ErrNotFound)
	}
	return nil
}

// ActiveTenants returns the distinct set of tenants with at least one active
// rule (spec §4.3 step 1 "Discover").
func (s *Store) ActiveTenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT tenant FROM rules WHERE status = $1`, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("ruleengine: active tenants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ActiveRulesFor returns every active rule for tenant whose event_kind
// matches kind (spec §4.3 step 4 "fetch all active rules for the entry's
// tenant whose event_kind equals the entry's").
func (s *Store) ActiveRulesFor(ctx context.Context, tenant, kind string) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, name, description, status, event_kind, session_filter,
		       logic_operator, exec_count, last_exec_at, created_at
		FROM rules WHERE tenant = $1 AND status = $2 AND event_kind = $3`,
		tenant, StatusActive, kind)
	if err != nil {
		return nil, fmt.Errorf("ruleengine: active rules: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		if rule.Conditions, err = s.conditions(ctx, rule.ID); err != nil {
			return nil, err
		}
		if rule.Actions, err = s.actions(ctx, rule.ID); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// RecordExecution inserts an audit row (spec §4.4 step 4). Implements ExecutionStore.
func (s *Store) RecordExecution(ctx context.Context, exec Execution) error {
	exec.ID = uuid.NewString()
	data, err := json.Marshal(exec.EventData)
	if err != nil {
		return fmt.Errorf("ruleengine: marshal event data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rule_executions (id, rule_id, event_id, event_kind, event_data,
		                              status, actions_executed, actions_failed,
		                              error_message, executed_at, duration_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		exec.ID, exec.RuleID, exec.EventID, exec.EventKind, data, exec.Status,
		exec.ActionsExecuted, exec.ActionsFailed, exec.ErrorMessage, exec.ExecutedAt, exec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("ruleengine: record execution: %w", err)
	}
	return nil
}

// BumpRuleStats atomically increments exec_count and sets last_exec_at
// (spec §4.4 step 4). Implements ExecutionStore.
func (s *Store) BumpRuleStats(ctx context.Context, ruleID string, execAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE rules SET exec_count = exec_count + 1, last_exec_at = $1 WHERE id = $2`,
		execAt, ruleID)
	if err != nil {
		return fmt.Errorf("ruleengine: bump rule stats: %w", err)
	}
	return nil
}

// Executions returns the most recent 50 audit rows for a rule, newest first
// (spec §6 "GET /api/rules/{id}/executions").
func (s *Store) Executions(ctx context.Context, tenant, ruleID string) ([]*Execution, error) {
	// Verify the rule belongs to tenant before leaking its execution history.
	if _, err := s.Get(ctx, tenant, ruleID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, event_id, event_kind, event_data, status,
		       actions_executed, actions_failed, error_message, executed_at, duration_ms
		FROM rule_executions WHERE rule_id = $1 ORDER BY executed_at DESC LIMIT 50`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("ruleengine: executions: %w", err)
	}
	defer rows.Close()

	var out []*Execution
	for rows.Next() {
		var exec Execution
		var data []byte
		var errMsg sql.NullString
		if err := rows.Scan(&exec.ID, &exec.RuleID, &exec.EventID, &exec.EventKind, &data,
			&exec.Status, &exec.ActionsExecuted, &exec.ActionsFailed, &errMsg,
			&exec.ExecutedAt, &exec.DurationMs); err != nil {
			return nil, err
		}
		exec.ErrorMessage = errMsg.String
		if len(data) > 0 {
			_ = json.Unmarshal(data, &exec.EventData)
		}
		out = append(out, &exec)
	}
	return out, rows.Err()
}

func (s *Store) conditions(ctx context.Context, ruleID string) ([]Condition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, field, operator, value, "order" FROM rule_conditions
		WHERE rule_id = $1 ORDER BY "order" ASC`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("ruleengine: conditions: %w", err)
	}
	defer rows.Close()

	var out []Condition
	for rows.Next() {
		var c Condition
		if err := rows.Scan(&c.ID, &c.Field, &c.Operator, &c.Value, &c.Order); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) actions(ctx context.Context, ruleID string) ([]Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, config, "order" FROM rule_actions
		WHERE rule_id = $1 ORDER BY "order" ASC`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("ruleengine: actions: %w", err)
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		var a Action
		var cfg []byte
		if err := rows.Scan(&a.ID, &a.Kind, &cfg, &a.Order); err != nil {
			return nil, err
		}
		if len(cfg) > 0 {
			if err := json.Unmarshal(cfg, &a.Config); err != nil {
				return nil, fmt.Errorf("ruleengine: unmarshal action config: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanRule(row scanner) (*Rule, error) {
	var rule Rule
	var description, sessionFilter sql.NullString
	var lastExecAt sql.NullTime
	err := row.Scan(&rule.ID, &rule.Tenant, &rule.Name, &description, &rule.Status,
		&rule.EventKind, &sessionFilter, &rule.LogicOperator, &rule.ExecCount,
		&lastExecAt, &rule.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ruleengine: rule: %w", api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ruleengine: scan rule: %w", err)
	}
	rule.Description = description.String
	rule.SessionFilter = sessionFilter.String
	if lastExecAt.Valid {
		rule.LastExecAt = &lastExecAt.Time
	}
	return &rule, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}
