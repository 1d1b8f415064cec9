package rotation

import (
	"fmt"
	"strings"
)

// Role is a rotating duty. The set is closed; every role rotates the same way.
type Role int

const (
	RoleDM Role = iota
	RoleFood
)

var allRoles = []Role{RoleDM, RoleFood}

// Roles lists every role in display order.
func Roles() []Role { return append([]Role(nil), allRoles...) }

func (r Role) String() string {
	switch r {
	case RoleDM:
		return "DM"
	case RoleFood:
		return "Food"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Key is the stable storage and command key.
func (r Role) Key() string {
	switch r {
	case RoleDM:
		return "dm"
	case RoleFood:
		return "food"
	default:
		return ""
	}
}

func (r Role) Emoji() string {
	switch r {
	case RoleDM:
		return "🧙"
	case RoleFood:
		return "🍕"
	default:
		return "•"
	}
}

func (r Role) Valid() bool { return r == RoleDM || r == RoleFood }

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dm", "gm":
		return RoleDM, nil
	case "food", "cook":
		return RoleFood, nil
	default:
		return 0, fmt.Errorf("%w: %q (use dm or food)", ErrUnknownRole, s)
	}
}

// ParseRoles parses role keys; "all" selects every role.
func ParseRoles(keys []string) ([]Role, error) {
	out := make([]Role, 0, len(allRoles))
	seen := map[Role]bool{}
	for _, k := range keys {
		if strings.EqualFold(strings.TrimSpace(k), "all") {
			return Roles(), nil
		}
		r, err := ParseRole(k)
		if err != nil {
			return nil, err
		}
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out, nil
}
