package models

import (
	"fmt"
	"slices"
	"strings"
)

// Role represents the access level carried in a session snapshot.
type Role string

const (
	RoleGuest     Role = "guest"     // anonymous visitor, only ever seen on public pages
	RoleUser      Role = "user"      // regular account, owns its coffees and brew sessions
	RoleModerator Role = "moderator" // can curate shared roasters and coffees
	RoleAdmin     Role = "admin"     // full administrative control
)

// RoleHierarchy defines the privilege level of each role.
// Higher numbers represent higher privileges.
var RoleHierarchy = map[Role]int{
	RoleGuest:     0,
	RoleUser:      20,
	RoleModerator: 50,
	RoleAdmin:     70,
}

// ListRoles returns every known role ordered from the lowest privilege to the highest.
func ListRoles() []string {
	roles := make([]Role, 0, len(RoleHierarchy))
	for r := range RoleHierarchy {
		roles = append(roles, r)
	}
	slices.SortFunc(roles, func(a, b Role) int {
		return RoleHierarchy[a] - RoleHierarchy[b]
	})

	result := make([]string, 0, len(roles))
	for _, r := range roles {
		result = append(result, r.String())
	}
	return result
}

// ParseRole normalises s and returns the matching Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("invalid role: %s", s)
	}
	return r, nil
}

// IsValid checks if the Role is one of the predefined roles.
func (r Role) IsValid() bool {
	_, exists := RoleHierarchy[r]
	return exists
}

func (r Role) String() string {
	return string(r)
}

// UnmarshalText rejects unknown roles so a decoded session can never carry one.
func (r *Role) UnmarshalText(text []byte) error {
	s := Role(text)
	if !s.IsValid() {
		return fmt.Errorf("invalid role: %s", text)
	}
	*r = s
	return nil
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// AtLeast reports whether r grants at least the privileges of min.
// Unknown roles never satisfy the check.
func (r Role) AtLeast(min Role) bool {
	if r.IsValid() && min.IsValid() {
		return RoleHierarchy[r] >= RoleHierarchy[min]
	}
	return false
}
