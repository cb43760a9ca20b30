package shared

import (
	"math"
	"strings"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// IDENTIFIERS
// ══════════════════════════════════════════════════════════════════════════════

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether s is a well-formed identifier.
func ValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BRANCH
// ══════════════════════════════════════════════════════════════════════════════

// Branch is a training discipline a student progresses in independently.
type Branch string

const (
	BranchWingTsun Branch = "WING_TSUN"
	BranchEscrima  Branch = "ESCRIMA"
)

// AllBranches returns every known branch in a stable order.
func AllBranches() []Branch {
	return []Branch{BranchWingTsun, BranchEscrima}
}

// IsValid reports whether b is a known branch.
func (b Branch) IsValid() bool {
	return b == BranchWingTsun || b == BranchEscrima
}

func (b Branch) String() string { return string(b) }

// ParseBranch parses a branch name case-insensitively.
func ParseBranch(s string) (Branch, error) {
	b := Branch(strings.ToUpper(strings.TrimSpace(s)))
	if !b.IsValid() {
		return "", Validationf("shared", "ParseBranch", "unknown branch %q", s)
	}
	return b, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ROLES & ACTORS
// ══════════════════════════════════════════════════════════════════════════════

// Role is the closed set of access levels an actor can hold.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleManager    Role = "MANAGER"
	RoleUser       Role = "USER"
	RoleMember     Role = "MEMBER"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleManager, RoleUser, RoleMember:
		return true
	}
	return false
}

// IsAdminOrAbove reports whether the role has global authority.
func (r Role) IsAdminOrAbove() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// IsManagerOrAbove reports whether the role may mutate school data at all.
func (r Role) IsManagerOrAbove() bool {
	return r.IsAdminOrAbove() || r == RoleManager
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", Validationf("shared", "ParseRole", "unknown role %q", s)
	}
	return r, nil
}

// Actor is the authenticated identity performing an operation.
type Actor struct {
	UserID string
	Role   Role
}

// SystemActor is used for operations started by the service itself.
var SystemActor = Actor{UserID: "system", Role: RoleSuperAdmin}

// ══════════════════════════════════════════════════════════════════════════════
// HOURS
// ══════════════════════════════════════════════════════════════════════════════

// RoundHours rounds to the two decimals the store keeps.
func RoundHours(h float64) float64 {
	return math.Round(h*100) / 100
}
