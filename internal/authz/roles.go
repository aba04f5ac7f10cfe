package authz

import "strings"

// Role is a staff role carried in the identity claim. Keep these stable;
// they are stored as the creator tag on calls.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleUser       Role = "USER"
	RoleProduccion Role = "PRODUCCION"
	RoleLogistica  Role = "LOGISTICA"
)

// ParseRole normalizes a raw role string. Matching is case-insensitive and
// the accented spelling LOGÍSTICA is accepted.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ADMIN":
		return RoleAdmin, true
	case "USER":
		return RoleUser, true
	case "PRODUCCION", "PRODUCCIÓN":
		return RoleProduccion, true
	case "LOGISTICA", "LOGÍSTICA":
		return RoleLogistica, true
	default:
		return "", false
	}
}

// ParseRoles converts raw claim values, dropping unknown and duplicate roles.
func ParseRoles(raw []string) []Role {
	out := make([]Role, 0, len(raw))
	seen := make(map[Role]struct{}, len(raw))
	for _, r := range raw {
		role, ok := ParseRole(r)
		if !ok {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

// CreatorTag is the role recorded on a call created by someone holding roles.
func CreatorTag(roles []Role) Role {
	for _, r := range roles {
		if r == RoleLogistica {
			return RoleLogistica
		}
	}
	return RoleProduccion
}
