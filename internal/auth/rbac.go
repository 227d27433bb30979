package auth

import (
	"fmt"
	"strings"
)

// Role is the account-wide permission tier. The set is closed: every
// capability mapping below switches exhaustively over it, so adding a
// role is a deliberate, compiler-visible change.
type Role uint8

const (
	RoleViewer Role = iota
	RoleManager
	RoleOwner
	RoleServiceViewer
	RoleServiceManager
)

var roleNames = map[Role]string{
	RoleViewer:         "viewer",
	RoleManager:        "manager",
	RoleOwner:          "owner",
	RoleServiceViewer:  "service_viewer",
	RoleServiceManager: "service_manager",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// Service reports whether r is a machine-to-machine tier.
func (r Role) Service() bool {
	return r == RoleServiceViewer || r == RoleServiceManager
}

// ParseRole maps a stored or wire role name to the enum. Matching is
// case-insensitive because the upstream database carried mixed-case
// values.
func ParseRole(s string) (Role, error) {
	normalized := strings.TrimSpace(strings.ToLower(s))
	for role, name := range roleNames {
		if name == normalized {
			return role, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

// Capability is a bitset of actions on a scholar's catalogue.
type Capability uint8

const (
	CapRead Capability = 1 << iota
	CapWrite
	CapDelete
	CapManageGrants
)

// Has reports whether every bit of c is present in s.
func (s Capability) Has(c Capability) bool {
	return s&c == c
}

func (s Capability) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	if s.Has(CapRead) {
		parts = append(parts, "read")
	}
	if s.Has(CapWrite) {
		parts = append(parts, "write")
	}
	if s.Has(CapDelete) {
		parts = append(parts, "delete")
	}
	if s.Has(CapManageGrants) {
		parts = append(parts, "manage_grants")
	}
	return strings.Join(parts, "|")
}

// GlobalCapabilities is the capability set a role holds on every scholar
// without any grant. Owner short-circuits scoped checks entirely;
// managers may read everything but need a grant to mutate.
func (r Role) GlobalCapabilities() Capability {
	switch r {
	case RoleOwner:
		return CapRead | CapWrite | CapDelete | CapManageGrants
	case RoleManager:
		return CapRead
	case RoleViewer, RoleServiceViewer, RoleServiceManager:
		return 0
	}
	return 0
}

// ScopedCeiling is the most a grant can confer on a role. A grant never
// lifts an account above its ceiling: granting a viewer-tier account
// write access is a recorded no-op.
func (r Role) ScopedCeiling() Capability {
	switch r {
	case RoleOwner:
		return CapRead | CapWrite | CapDelete | CapManageGrants
	case RoleManager:
		return CapRead | CapWrite | CapDelete | CapManageGrants
	case RoleViewer:
		return CapRead
	case RoleServiceManager:
		return CapRead | CapWrite
	case RoleServiceViewer:
		return CapRead
	}
	return 0
}
