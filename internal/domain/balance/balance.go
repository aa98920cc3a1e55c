// Package balance partitions a pool of participants into two equal-size
// teams minimizing rating imbalance, optionally honoring per-team role
// quotas.
//
// The search is a deliberate, bounded brute force: it enumerates every
// size-n/2 subset containing a fixed anchor member and keeps the best
// feasible split. Complexity is binomial in the team size, which is
// acceptable for the single-digit team sizes this system forms.
package balance

import (
	"fmt"

	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/model"
)

// Result is a balanced split. RolesEnforced reports whether the role
// feasibility constraints were actually honored; it is false when the
// search had to fall back to an unconstrained split.
type Result struct {
	TeamA         []model.Participant
	TeamB         []model.Participant
	RolesEnforced bool
}

// Balance splits participants into two teams of equal size.
//
// The participant count must be even and at least 2. When enforceRoles is
// set, the quota must fit within a team and every candidate split is
// checked for role feasibility; if no feasible split exists the search is
// retried without role constraints and the result reports
// RolesEnforced=false.
func Balance(participants []model.Participant, enforceRoles bool, quota model.RoleQuota) (Result, error) {
	n := len(participants)
	if n < 2 || n%2 != 0 {
		return Result{}, fmt.Errorf("%w: participant count must be even and at least 2, got %d", ErrInvalidInput, n)
	}
	teamSize := n / 2
	if enforceRoles && quota.Total() > teamSize {
		return Result{}, fmt.Errorf("%w: role quota %d exceeds team size %d", ErrInvalidInput, quota.Total(), teamSize)
	}

	if teamA, teamB, ok := bestSplit(participants, enforceRoles, quota); ok {
		return Result{TeamA: teamA, TeamB: teamB, RolesEnforced: enforceRoles}, nil
	}
	if enforceRoles {
		// Graceful degradation: no feasible split under the quota, so
		// fall back to pure rating balance.
		if teamA, teamB, ok := bestSplit(participants, false, quota); ok {
			return Result{TeamA: teamA, TeamB: teamB, RolesEnforced: false}, nil
		}
	}
	return Result{}, ErrInfeasible
}

// bestSplit scans every split that keeps participants[0] on team A
// (pinning the anchor halves the space by skipping mirror images) and
// returns the one minimizing (abs rating difference, stronger side's
// rating sum), both ascending. The tie-break prefers the overall-weakest
// pairing when several splits balance equally well.
func bestSplit(participants []model.Participant, enforceRoles bool, quota model.RoleQuota) (teamA, teamB []model.Participant, ok bool) {
	n := len(participants)
	teamSize := n / 2
	k := teamSize - 1 // members chosen besides the anchor

	var (
		found        bool
		bestDiff     int
		bestStronger int
		bestMembers  []int
	)

	inA := make([]bool, n)
	evaluate := func(members []int) {
		for i := range inA {
			inA[i] = false
		}
		inA[0] = true
		for _, idx := range members {
			inA[idx] = true
		}

		sumA, sumB := 0, 0
		for i, p := range participants {
			if inA[i] {
				sumA += p.Rating
			} else {
				sumB += p.Rating
			}
		}
		diff := sumA - sumB
		if diff < 0 {
			diff = -diff
		}
		stronger := sumA
		if sumB > stronger {
			stronger = sumB
		}
		if found && (diff > bestDiff || (diff == bestDiff && stronger >= bestStronger)) {
			return
		}

		if enforceRoles {
			if !roleFeasible(participants, inA, true, quota) || !roleFeasible(participants, inA, false, quota) {
				return
			}
		}

		found = true
		bestDiff = diff
		bestStronger = stronger
		bestMembers = append(bestMembers[:0], members...)
	}

	// Lexicographic k-combinations over indices 1..n-1.
	combo := make([]int, k)
	for i := range combo {
		combo[i] = i + 1
	}
	for {
		evaluate(combo)
		i := k - 1
		for i >= 0 && combo[i] == n-k+i {
			i--
		}
		if i < 0 {
			break
		}
		combo[i]++
		for j := i + 1; j < k; j++ {
			combo[j] = combo[j-1] + 1
		}
	}

	if !found {
		return nil, nil, false
	}

	for i := range inA {
		inA[i] = false
	}
	inA[0] = true
	for _, idx := range bestMembers {
		inA[idx] = true
	}
	teamA = make([]model.Participant, 0, teamSize)
	teamB = make([]model.Participant, 0, teamSize)
	for i, p := range participants {
		if inA[i] {
			teamA = append(teamA, p)
		} else {
			teamB = append(teamB, p)
		}
	}
	return teamA, teamB, true
}

// roleFeasible checks one side of a candidate split against the quota.
// A team is infeasible when some core role has more declared players than
// quota seats, or when the quota seats left uncovered by declarations
// outnumber the team's flex players.
func roleFeasible(participants []model.Participant, inA []bool, sideA bool, quota model.RoleQuota) bool {
	declared := make(map[model.Role]int, len(quota))
	flex := 0
	for i, p := range participants {
		if inA[i] != sideA {
			continue
		}
		if p.Role.IsCore() {
			declared[p.Role]++
		} else {
			flex++
		}
	}

	uncovered := 0
	for role, want := range quota {
		have := declared[role]
		if have > want {
			return false
		}
		uncovered += want - have
	}
	// Declared core roles with no quota seats at all overflow immediately.
	for role, have := range declared {
		if quota[role] == 0 && have > 0 {
			return false
		}
	}
	return uncovered <= flex
}
