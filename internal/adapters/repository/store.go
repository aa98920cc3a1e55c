// Package repository defines the persistence interface for participants,
// matches, results and the rating-change ledger, plus its errors.
package repository

import (
	"context"

	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/model"
)

// Entry represents a leaderboard row.
type Entry struct {
	Rank          int
	ParticipantID string
	DisplayLabel  string
	Rating        int
	GamesPlayed   int
}

// Amendment rewrites one ledger row during a result correction.
// The service computes the new frozen values; the store applies them
// together with the live-rating adjustment in one atomic step.
type Amendment struct {
	ParticipantID string
	Delta         int // new frozen delta for the row
	RatingAfter   int // new frozen post-match rating for the row
	LiveAdjust    int // signed correction applied to the live rating
}

// Store provides read/write access to matchmaking state.
//
// ApplyChanges and AmendChanges are atomic: either every row and every
// live-rating update lands, or none do.
type Store interface {
	// UpsertParticipant creates or refreshes a tracked participant.
	// An existing participant keeps its live rating; only the display
	// label and declared role are refreshed.
	UpsertParticipant(ctx context.Context, p model.Participant) error

	// Participant returns a tracked participant by ID.
	// Returns ErrNotFound when unknown.
	Participant(ctx context.Context, id string) (model.Participant, error)

	// RecordMatch persists a formed match and assigns its sequence
	// number. The store fills m.Seq and m.CreatedAt.
	RecordMatch(ctx context.Context, m *model.MatchRecord) error

	// Match returns a recorded match by ID.
	// Returns ErrNotFound when unknown.
	Match(ctx context.Context, id string) (model.MatchRecord, error)

	// RecentMatches returns up to limit matches, newest first.
	RecentMatches(ctx context.Context, limit int) ([]model.MatchRecord, error)

	// SetResult stores or replaces the reported result for a match.
	SetResult(ctx context.Context, r model.MatchResult) error

	// Result returns the reported result for a match.
	// Returns ErrNotFound when no result has been applied.
	Result(ctx context.Context, matchID string) (model.MatchResult, error)

	// ApplyChanges inserts the ledger rows for a match and moves every
	// affected live rating to the row's RatingAfter, atomically.
	// Returns ErrDuplicateChange when the match already has rows.
	ApplyChanges(ctx context.Context, matchID string, changes []model.RatingChange) error

	// AmendChanges rewrites existing ledger rows and adjusts live
	// ratings, atomically. Returns ErrNotFound when the match has no
	// rows or an amendment names a participant without one.
	AmendChanges(ctx context.Context, matchID string, amendments []Amendment) error

	// ChangesByMatch returns the ledger rows for a match in insertion
	// order. An applied match always has rows; an empty slice means the
	// match result has not been applied.
	ChangesByMatch(ctx context.Context, matchID string) ([]model.RatingChange, error)

	// ChangesByParticipant returns up to limit ledger rows for one
	// participant, newest match first.
	ChangesByParticipant(ctx context.Context, participantID string, limit int) ([]model.RatingChange, error)

	// CountChangesBefore counts the participant's ledger rows from
	// matches sequenced strictly before beforeSeq. This is the prior
	// games figure that drives calibration.
	CountChangesBefore(ctx context.Context, participantID string, beforeSeq int64) (int, error)

	// Rank returns the leaderboard entry for a participant.
	// Returns ErrNotFound when the participant is unknown.
	Rank(ctx context.Context, participantID string) (Entry, error)

	// TopN returns the top-N entries ordered by rating desc,
	// participant ID asc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of tracked participants.
	Count(ctx context.Context) int

	// Close releases the store's resources.
	Close() error
}
