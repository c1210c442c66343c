package permission

import (
	"errors"
	"strings"
)

// ErrUnknownRole is returned by ParseRole for values outside the role enumeration.
var ErrUnknownRole = errors.New("unknown role")

// Role is the closed set of account roles.
type Role uint8

const (
	// RoleUnknown is the zero value and never satisfies a role requirement.
	RoleUnknown Role = iota
	// RoleAdmin administers the platform.
	RoleAdmin
	// RoleCreator owns and publishes projects.
	RoleCreator
	// RoleParticipant backs and follows projects.
	RoleParticipant
)

var roleNames = [...]string{
	RoleUnknown:     "UNKNOWN",
	RoleAdmin:       "ADMIN",
	RoleCreator:     "CREATOR",
	RoleParticipant: "PARTICIPANT",
}

// String returns the canonical upper-case name.
func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return roleNames[RoleUnknown]
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	return r > RoleUnknown && int(r) < len(roleNames)
}

// ParseRole maps a raw role string to its canonical Role. Matching ignores case
// and surrounding whitespace.
func ParseRole(raw string) (Role, error) {
	v := strings.TrimSpace(raw)
	for r := RoleAdmin; int(r) < len(roleNames); r++ {
		if strings.EqualFold(v, roleNames[r]) {
			return r, nil
		}
	}
	return RoleUnknown, ErrUnknownRole
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrUnknownRole
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
