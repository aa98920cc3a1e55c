// Package model contains the domain records passed between layers.
package model

// Rating bounds. Every stored rating is an integer in this range.
const (
	MinRating = 0
	MaxRating = 5000
)

// ClampRating bounds v to [MinRating, MaxRating].
func ClampRating(v int) int {
	if v < MinRating {
		return MinRating
	}
	if v > MaxRating {
		return MaxRating
	}
	return v
}

// Role is a participant's declared or assigned role for a match.
type Role string

// Core roles, the flex wildcard, and the generic fill role handed to
// participants left over after all quota seats are taken.
const (
	RoleTank    Role = "tank"
	RoleDamage  Role = "damage"
	RoleSupport Role = "support"
	RoleFlex    Role = "flex"
	RoleFill    Role = "fill"
)

// IsCore reports whether r is one of the fixed core roles that can carry
// a quota. Flex and fill are not core roles.
func (r Role) IsCore() bool {
	switch r {
	case RoleTank, RoleDamage, RoleSupport:
		return true
	default:
		return false
	}
}

// Participant is an entity waiting to be placed on a team.
// Read-only to the balancer; ratings are clamped at the edges.
type Participant struct {
	ID           string `json:"id"`
	DisplayLabel string `json:"displayLabel"`
	Rating       int    `json:"rating"`
	Role         Role   `json:"declaredRole"`
}

// RoleQuota maps core roles to required seats per team. Seats not covered
// by a quota are implicitly flex seats.
type RoleQuota map[Role]int

// Total returns the number of quota seats per team.
func (q RoleQuota) Total() int {
	total := 0
	for _, n := range q {
		total += n
	}
	return total
}

// Clone returns an independent copy of the quota.
func (q RoleQuota) Clone() RoleQuota {
	out := make(RoleQuota, len(q))
	for role, n := range q {
		out[role] = n
	}
	return out
}
