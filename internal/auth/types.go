package auth

import "time"

const (
	userStatusActive   = "active"
	userStatusDisabled = "disabled"
)

// Status is the account lifecycle flag. Accounts are never deleted while
// grants reference them; disabling is the terminal administrative action.
type Status string

const (
	StatusActive   Status = userStatusActive
	StatusDisabled Status = userStatusDisabled
)

// Account is an administrative operator or machine caller. The password
// hash is an argon2id digest and never leaves this package in plaintext
// form.
type Account struct {
	ID           string    `json:"id"`
	LoginName    string    `json:"login_name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Disabled reports whether the account is soft-disabled.
func (a *Account) Disabled() bool {
	return a.Status == StatusDisabled
}

// AccessGrant binds one account to one scholar. At most one grant exists
// per (account, scholar) pair; re-granting updates the existing row.
type AccessGrant struct {
	AccountID string    `json:"account_id"`
	ScholarID string    `json:"scholar_id"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Reason explains an authorization decision. External callers only see
// allow/deny; reasons are for logs, metrics and the caller's status code
// mapping.
type Reason string

const (
	ReasonGlobalRole      Reason = "global_role"
	ReasonScopedGrant     Reason = "scoped_grant"
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonAccountDisabled Reason = "account_disabled"
	ReasonNoGrant         Reason = "no_grant"
	ReasonCeilingExceeded Reason = "ceiling_exceeded"
	ReasonUnavailable     Reason = "unavailable"
)

// Decision is the terminal outcome of one authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

func allow(reason Reason) Decision {
	return Decision{Allowed: true, Reason: reason}
}

func deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// ScholarAccess summarizes what one grant lets an account do.
type ScholarAccess struct {
	ScholarID    string     `json:"scholar_id"`
	Capabilities Capability `json:"capabilities"`
}

// AccountPermissions is the resolved view of an account's access: its
// global role plus every scholar it holds a grant for.
type AccountPermissions struct {
	AccountID string          `json:"account_id"`
	Role      Role            `json:"role"`
	Scholars  []ScholarAccess `json:"accessible_scholars"`
}
