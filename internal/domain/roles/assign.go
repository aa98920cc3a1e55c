// Package roles maps a balanced team's participants to concrete roles
// given per-team quotas and declared preferences.
package roles

import (
	"fmt"
	"sort"

	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/model"
)

// Assign maps each team member to a concrete role.
//
// Participants whose declared core role still has open quota take that
// role first, in team order. Everyone else joins the flex pool, which
// then fills remaining quota seats in canonical role order; leftovers get
// the generic fill role. An unfillable quota returns ErrInfeasible. The
// balancer validates feasibility up front, so hitting this after a
// balancer-approved split signals an invariant violation and the caller
// must abort match formation.
func Assign(team []model.Participant, quota model.RoleQuota) (map[string]model.Role, error) {
	remaining := quota.Clone()
	assigned := make(map[string]model.Role, len(team))

	var flexPool []model.Participant
	for _, p := range team {
		if p.Role.IsCore() && remaining[p.Role] > 0 {
			assigned[p.ID] = p.Role
			remaining[p.Role]--
			continue
		}
		// No declared core role, or its quota is already exhausted.
		flexPool = append(flexPool, p)
	}

	for _, role := range canonicalOrder(quota) {
		for remaining[role] > 0 {
			if len(flexPool) == 0 {
				return nil, fmt.Errorf("%w: %d %s seat(s) unfilled", ErrInfeasible, remaining[role], role)
			}
			p := flexPool[0]
			flexPool = flexPool[1:]
			assigned[p.ID] = role
			remaining[role]--
		}
	}

	for _, p := range flexPool {
		assigned[p.ID] = model.RoleFill
	}
	return assigned, nil
}

// canonicalOrder lists quota roles in fill order: the fixed core roles
// first, then any additional configured roles sorted by name so the pass
// stays deterministic.
func canonicalOrder(quota model.RoleQuota) []model.Role {
	order := []model.Role{model.RoleTank, model.RoleDamage, model.RoleSupport}
	fixed := map[model.Role]bool{model.RoleTank: true, model.RoleDamage: true, model.RoleSupport: true}

	var extras []model.Role
	for role := range quota {
		if !fixed[role] {
			extras = append(extras, role)
		}
	}
	sort.Slice(extras, func(i, j int) bool { return extras[i] < extras[j] })
	return append(order, extras...)
}
