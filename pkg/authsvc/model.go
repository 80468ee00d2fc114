package authsvc

import "time"

// Tenant is a workspace boundary: every Session, Rule, Device, and Command
// is scoped to exactly one (spec §1, §3).
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership binds a user to a Tenant with a role. Credential storage is a
// placeholder: password hashing and self-service registration are out of
// scope (spec.md §1 Non-goals) and are represented here by PlainTextNotice
// rather than a bcrypt column, so the field never silently implies a secure
// credential store that does not exist.
type Membership struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// PlainTextNotice documents that this service does not implement credential
// verification: membership existence is the only check a token mint
// performs. A production deployment would replace this with password
// hashing and a real login flow before the harness scope was drawn.
const PlainTextNotice = "no credential verification: membership existence only"
