package ruleengine

import "time"

// Status is a Rule's lifecycle state (spec §3). Only status=active is ever evaluated.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusInactive Status = "inactive"
	StatusActive   Status = "active"
)

// Logic combines a Rule's Conditions (spec §3, §4.3).
type Logic string

const (
	LogicAND Logic = "AND"
	LogicOR  Logic = "OR"
)

// Operator is a Condition's comparison operator (spec §3).
type Operator string

const (
	OpEqual       Operator = "=="
	OpNotEqual    Operator = "!="
	OpGreater     Operator = ">"
	OpGreaterEq   Operator = ">="
	OpLess        Operator = "<"
	OpLessEq      Operator = "<="
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
)

// ActionKind is an Action's dispatch target (spec §3, §4.4).
type ActionKind string

const (
	ActionDeviceControl ActionKind = "device_control"
	ActionNotification  ActionKind = "notification"
	ActionWebhook       ActionKind = "webhook"
	ActionLog           ActionKind = "log"
)

// ExecutionStatus is a RuleExecution's terminal outcome (spec §3, §4.4).
type ExecutionStatus string

const (
	ExecSuccess ExecutionStatus = "success"
	ExecPartial ExecutionStatus = "partial"
	ExecFailed  ExecutionStatus = "failed"
)

// Rule is a tenant-authored trigger bound to an ordered action list (spec §3).
type Rule struct {
	ID            string     `json:"id"`
	Tenant        string     `json:"tenant"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Status        Status     `json:"status"`
	EventKind     string     `json:"event_type"`
	SessionFilter string     `json:"livestream_id,omitempty"`
	LogicOperator Logic      `json:"logic_operator"`
	Conditions    []Condition `json:"conditions"`
	Actions       []Action    `json:"actions"`
	ExecCount     int64      `json:"exec_count"`
	LastExecAt    *time.Time `json:"last_exec_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Condition is a single boolean predicate against one field of an event
// payload (spec §3, §4.3).
type Condition struct {
	ID       string   `json:"id,omitempty"`
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
	Order    int      `json:"order"`
}

// Action is a side effect to perform when a rule matches (spec §3, §4.4).
type Action struct {
	ID     string                 `json:"id,omitempty"`
	Kind   ActionKind             `json:"action_type"`
	Config map[string]interface{} `json:"config"`
	Order  int                    `json:"order"`
}

// Execution is one audited invocation of a rule's action list against one
// event (spec §3, §4.4). Append-only; never mutated.
type Execution struct {
	ID              string          `json:"id"`
	RuleID          string          `json:"rule_id"`
	EventID         string          `json:"event_id"`
	EventKind       string          `json:"event_kind"`
	EventData       map[string]string `json:"event_data"`
	Status          ExecutionStatus `json:"status"`
	ActionsExecuted int             `json:"actions_executed"`
	ActionsFailed   int             `json:"actions_failed"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ExecutedAt      time.Time       `json:"executed_at"`
	DurationMs      int64           `json:"duration_ms"`
}
