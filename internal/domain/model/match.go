package model

import (
	"errors"
	"math"
	"time"
)

// Team display names. These are part of the persisted record format.
const (
	TeamAName = "Team A"
	TeamBName = "Team B"
)

// ErrInvalidWinner is returned when a reported winner is not one of
// Team A, Team B, or Draw.
var ErrInvalidWinner = errors.New("invalid winner team")

// Winner identifies the reported outcome of a match.
type Winner string

const (
	WinnerTeamA Winner = TeamAName
	WinnerTeamB Winner = TeamBName
	WinnerDraw  Winner = "Draw"
)

// ParseWinner validates a reported winner value.
func ParseWinner(s string) (Winner, error) {
	switch Winner(s) {
	case WinnerTeamA, WinnerTeamB, WinnerDraw:
		return Winner(s), nil
	default:
		return "", ErrInvalidWinner
	}
}

// Score returns the Elo score for the named team under this outcome:
// 1 for a win, 0 for a loss, 0.5 for a draw.
func (w Winner) Score(teamName string) float64 {
	if w == WinnerDraw {
		return 0.5
	}
	if string(w) == teamName {
		return 1.0
	}
	return 0.0
}

// AssignedParticipant is a participant frozen into a match snapshot with
// the role it was actually given. The JSON field set must round-trip
// losslessly; historical matches are re-read for stats and correction.
type AssignedParticipant struct {
	ID           string `json:"id"`
	DisplayLabel string `json:"displayLabel"`
	Rating       int    `json:"rating"`
	DeclaredRole Role   `json:"declaredRole"`
	AssignedRole Role   `json:"assignedRole"`
}

// Team is one side of a formed match. Membership never changes after
// creation; rating correction reads it but does not rewrite it.
type Team struct {
	Name    string                `json:"name"`
	Players []AssignedParticipant `json:"players"`
}

// AverageRating returns the rounded average of the members' clamped
// snapshot ratings (round half to even). Zero for an empty team.
func (t Team) AverageRating() int {
	if len(t.Players) == 0 {
		return 0
	}
	total := 0
	for _, p := range t.Players {
		total += ClampRating(p.Rating)
	}
	return int(math.RoundToEven(float64(total) / float64(len(t.Players))))
}

// MemberIDs returns the participant IDs in team order.
func (t Team) MemberIDs() []string {
	ids := make([]string, 0, len(t.Players))
	for _, p := range t.Players {
		ids = append(ids, p.ID)
	}
	return ids
}

// MatchRecord is the immutable snapshot of a formed match. Seq is the
// store-assigned monotonic ordering key; calibration counting relies on
// it rather than on timestamps.
type MatchRecord struct {
	ID            string    `json:"id"`
	Seq           int64     `json:"seq"`
	CreatedAt     time.Time `json:"createdAt"`
	TeamA         Team      `json:"teamA"`
	TeamB         Team      `json:"teamB"`
	RolesEnforced bool      `json:"rolesEnforced"`
}

// TeamOf returns the team name a participant played on, or "" when the
// participant is not part of the match.
func (m MatchRecord) TeamOf(participantID string) string {
	for _, p := range m.TeamA.Players {
		if p.ID == participantID {
			return m.TeamA.Name
		}
	}
	for _, p := range m.TeamB.Players {
		if p.ID == participantID {
			return m.TeamB.Name
		}
	}
	return ""
}

// MatchResult is the recorded outcome of a match. Rewritten when a result
// is overturned; the rating ledger is corrected separately.
type MatchResult struct {
	MatchID    string    `json:"matchId"`
	Winner     Winner    `json:"winner"`
	ReportedAt time.Time `json:"reportedAt"`
}

// RatingChange is one ledger row per (match, participant). Presence of
// any row for a match means ratings were applied for that match.
type RatingChange struct {
	MatchID       string `json:"matchId"`
	MatchSeq      int64  `json:"matchSeq"`
	ParticipantID string `json:"participantId"`
	DisplayLabel  string `json:"displayLabel"`
	Team          string `json:"team"`
	RatingBefore  int    `json:"ratingBefore"`
	Delta         int    `json:"delta"`
	RatingAfter   int    `json:"ratingAfter"`
}
