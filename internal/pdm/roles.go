package pdm

import "fmt"

// Role is the authorization tier of a user. Tiers are strictly ordered:
// each one grants everything below it.
type Role int

const (
	RoleUser Role = iota
	RoleAdmin
	RoleSupervisor
)

// roleNames is the closed set of valid role spellings on the wire.
var roleNames = map[Role]string{
	RoleUser:       "user",
	RoleAdmin:      "admin",
	RoleSupervisor: "supervisor",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// AtLeast reports whether r grants at least the privileges of min.
func (r Role) AtLeast(min Role) bool { return r >= min }

// ParseRole converts a wire spelling back into a Role.
// Anything outside the closed set is an error, never a default.
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if s == name {
			return r, nil
		}
	}
	return RoleUser, fmt.Errorf("unknown role %q", s)
}

// MarshalText implements encoding.TextMarshaler so roles persist as their
// names in JSON records rather than bare integers.
func (r Role) MarshalText() ([]byte, error) {
	name, ok := roleNames[r]
	if !ok {
		return nil, fmt.Errorf("cannot encode invalid role %d", int(r))
	}
	return []byte(name), nil
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

// RoleSet maps usernames to explicitly assigned roles. Users without an
// entry implicitly hold RoleUser.
type RoleSet map[string]Role

// RoleOf returns the user's effective role.
func (s RoleSet) RoleOf(user string) Role {
	if r, ok := s[user]; ok {
		return r
	}
	return RoleUser
}

// Assign returns a copy of the set with the user's role set. The receiver
// is left unmodified.
func (s RoleSet) Assign(user string, role Role) RoleSet {
	next := make(RoleSet, len(s)+1)
	for k, v := range s {
		next[k] = v
	}
	next[user] = role
	return next
}
