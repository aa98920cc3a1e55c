package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/model"
	"github.com/maxaitel/overwatch-server-discord-bot/pkg/metrics"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// pgForeignKeyViolation is the PostgreSQL error code for a missing
// referenced row.
const pgForeignKeyViolation = "23503"

// PostgresStore is the PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL, applies pending migrations
// and returns a ready store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// runMigrations applies embedded SQL files in lexicographic order and
// tracks them in a schema_migrations table.
func (s *PostgresStore) runMigrations(ctx context.Context) error {
	const createTracker = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`
	if _, err := s.pool.Exec(ctx, createTracker); err != nil {
		return fmt.Errorf("postgres: create schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var exists bool
		err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)",
			entry.Name(),
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("postgres: check migration %s: %w", entry.Name(), err)
		}
		if exists {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("postgres: read migration %s: %w", entry.Name(), err)
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("postgres: begin tx for %s: %w", entry.Name(), err)
		}
		if _, err := tx.Exec(ctx, string(data)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("postgres: exec migration %s: %w", entry.Name(), err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (filename) VALUES ($1)",
			entry.Name(),
		); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("postgres: record migration %s: %w", entry.Name(), err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("postgres: commit migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// UpsertParticipant creates or refreshes a tracked participant. An
// existing row keeps its live rating.
func (s *PostgresStore) UpsertParticipant(ctx context.Context, p model.Participant) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	const query = `
		INSERT INTO participants (id, display_label, declared_role, rating, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET display_label = EXCLUDED.display_label,
		    declared_role = EXCLUDED.declared_role,
		    updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.DisplayLabel, string(p.Role), model.ClampRating(p.Rating))
	if err != nil {
		return fmt.Errorf("postgres: upsert participant %s: %w", p.ID, err)
	}
	return nil
}

// Participant returns a tracked participant by ID.
func (s *PostgresStore) Participant(ctx context.Context, id string) (model.Participant, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	var p model.Participant
	var role string
	err := s.pool.QueryRow(ctx,
		`SELECT id, display_label, declared_role, rating FROM participants WHERE id = $1`, id,
	).Scan(&p.ID, &p.DisplayLabel, &role, &p.Rating)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			metrics.RecordErrorByComponent("repository", "not_found")
			return model.Participant{}, ErrNotFound
		}
		return model.Participant{}, fmt.Errorf("postgres: get participant %s: %w", id, err)
	}
	p.Role = model.Role(role)
	return p, nil
}

// RecordMatch persists a formed match. The seq column assigns the
// sequence number.
func (s *PostgresStore) RecordMatch(ctx context.Context, m *model.MatchRecord) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	teamA, err := json.Marshal(m.TeamA.Players)
	if err != nil {
		return fmt.Errorf("postgres: marshal team a: %w", err)
	}
	teamB, err := json.Marshal(m.TeamB.Players)
	if err != nil {
		return fmt.Errorf("postgres: marshal team b: %w", err)
	}

	const query = `
		INSERT INTO matches (id, roles_enforced, team_a, team_b)
		VALUES ($1, $2, $3, $4)
		RETURNING seq, created_at`

	err = s.pool.QueryRow(ctx, query, m.ID, m.RolesEnforced, teamA, teamB).
		Scan(&m.Seq, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: record match %s: %w", m.ID, err)
	}
	return nil
}

// matchSelectCols lists the columns selected when reading matches.
const matchSelectCols = `id, seq, created_at, roles_enforced, team_a, team_b`

func scanMatchFromRow(scanner interface{ Scan(dest ...any) error }) (model.MatchRecord, error) {
	var m model.MatchRecord
	var teamA, teamB []byte

	if err := scanner.Scan(&m.ID, &m.Seq, &m.CreatedAt, &m.RolesEnforced, &teamA, &teamB); err != nil {
		return model.MatchRecord{}, err
	}

	m.TeamA.Name = model.TeamAName
	if err := json.Unmarshal(teamA, &m.TeamA.Players); err != nil {
		return model.MatchRecord{}, fmt.Errorf("unmarshal team a: %w", err)
	}
	m.TeamB.Name = model.TeamBName
	if err := json.Unmarshal(teamB, &m.TeamB.Players); err != nil {
		return model.MatchRecord{}, fmt.Errorf("unmarshal team b: %w", err)
	}
	return m, nil
}

// Match returns a recorded match by ID.
func (s *PostgresStore) Match(ctx context.Context, id string) (model.MatchRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	row := s.pool.QueryRow(ctx,
		`SELECT `+matchSelectCols+` FROM matches WHERE id = $1`, id)
	m, err := scanMatchFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			metrics.RecordErrorByComponent("repository", "not_found")
			return model.MatchRecord{}, ErrNotFound
		}
		return model.MatchRecord{}, fmt.Errorf("postgres: get match %s: %w", id, err)
	}
	return m, nil
}

// RecentMatches returns up to limit matches, newest first.
func (s *PostgresStore) RecentMatches(ctx context.Context, limit int) ([]model.MatchRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if limit < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+matchSelectCols+` FROM matches ORDER BY seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent matches: %w", err)
	}
	defer rows.Close()

	var out []model.MatchRecord
	for rows.Next() {
		m, err := scanMatchFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetResult stores or replaces the reported result for a match.
func (s *PostgresStore) SetResult(ctx context.Context, r model.MatchResult) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	const query = `
		INSERT INTO match_results (match_id, winner, reported_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (match_id) DO UPDATE
		SET winner = EXCLUDED.winner, reported_at = EXCLUDED.reported_at`

	_, err := s.pool.Exec(ctx, query, r.MatchID, string(r.Winner), r.ReportedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			metrics.RecordErrorByComponent("repository", "not_found")
			return ErrNotFound
		}
		return fmt.Errorf("postgres: set result for match %s: %w", r.MatchID, err)
	}
	return nil
}

// Result returns the reported result for a match.
func (s *PostgresStore) Result(ctx context.Context, matchID string) (model.MatchResult, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	var r model.MatchResult
	var winner string
	err := s.pool.QueryRow(ctx,
		`SELECT match_id, winner, reported_at FROM match_results WHERE match_id = $1`, matchID,
	).Scan(&r.MatchID, &winner, &r.ReportedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			metrics.RecordErrorByComponent("repository", "not_found")
			return model.MatchResult{}, ErrNotFound
		}
		return model.MatchResult{}, fmt.Errorf("postgres: get result for match %s: %w", matchID, err)
	}
	r.Winner = model.Winner(winner)
	return r, nil
}

// ApplyChanges inserts the ledger rows for a match and moves the
// affected live ratings in one transaction.
func (s *PostgresStore) ApplyChanges(ctx context.Context, matchID string, changes []model.RatingChange) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin apply tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM rating_changes WHERE match_id = $1)", matchID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: check existing changes for match %s: %w", matchID, err)
	}
	if exists {
		return ErrDuplicateChange
	}

	const insertRow = `
		INSERT INTO rating_changes (
			match_id, match_seq, participant_id, display_label,
			team, rating_before, delta, rating_after
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	const updateRating = `UPDATE participants SET rating = $1, updated_at = NOW() WHERE id = $2`

	for _, c := range changes {
		if _, err := tx.Exec(ctx, insertRow,
			c.MatchID, c.MatchSeq, c.ParticipantID, c.DisplayLabel,
			c.Team, c.RatingBefore, c.Delta, c.RatingAfter,
		); err != nil {
			return fmt.Errorf("postgres: insert change for %s: %w", c.ParticipantID, err)
		}

		tag, err := tx.Exec(ctx, updateRating, model.ClampRating(c.RatingAfter), c.ParticipantID)
		if err != nil {
			return fmt.Errorf("postgres: update rating for %s: %w", c.ParticipantID, err)
		}
		if tag.RowsAffected() == 0 {
			metrics.RecordErrorByComponent("repository", "not_found")
			return ErrNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit apply tx: %w", err)
	}
	metrics.AddRatingChangeRows(len(changes))
	return nil
}

// AmendChanges rewrites existing ledger rows and adjusts live ratings in
// one transaction.
func (s *PostgresStore) AmendChanges(ctx context.Context, matchID string, amendments []Amendment) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin amend tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM rating_changes WHERE match_id = $1)", matchID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: check existing changes for match %s: %w", matchID, err)
	}
	if !exists {
		metrics.RecordErrorByComponent("repository", "not_found")
		return ErrNotFound
	}

	const updateRow = `
		UPDATE rating_changes SET delta = $1, rating_after = $2
		WHERE match_id = $3 AND participant_id = $4`
	const adjustRating = `
		UPDATE participants
		SET rating = LEAST($1, GREATEST($2, rating + $3)), updated_at = NOW()
		WHERE id = $4`

	for _, a := range amendments {
		tag, err := tx.Exec(ctx, updateRow, a.Delta, a.RatingAfter, matchID, a.ParticipantID)
		if err != nil {
			return fmt.Errorf("postgres: amend change for %s: %w", a.ParticipantID, err)
		}
		if tag.RowsAffected() == 0 {
			metrics.RecordErrorByComponent("repository", "not_found")
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx, adjustRating,
			model.MaxRating, model.MinRating, a.LiveAdjust, a.ParticipantID,
		); err != nil {
			return fmt.Errorf("postgres: adjust rating for %s: %w", a.ParticipantID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit amend tx: %w", err)
	}
	return nil
}

// changeSelectCols lists the columns selected when reading ledger rows.
const changeSelectCols = `match_id, match_seq, participant_id, display_label,
	team, rating_before, delta, rating_after`

func scanChangeRows(rows pgx.Rows) ([]model.RatingChange, error) {
	var out []model.RatingChange
	for rows.Next() {
		var c model.RatingChange
		if err := rows.Scan(
			&c.MatchID, &c.MatchSeq, &c.ParticipantID, &c.DisplayLabel,
			&c.Team, &c.RatingBefore, &c.Delta, &c.RatingAfter,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChangesByMatch returns the ledger rows for a match in insertion order.
func (s *PostgresStore) ChangesByMatch(ctx context.Context, matchID string) ([]model.RatingChange, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	rows, err := s.pool.Query(ctx,
		`SELECT `+changeSelectCols+` FROM rating_changes WHERE match_id = $1 ORDER BY row_id`, matchID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list changes for match %s: %w", matchID, err)
	}
	defer rows.Close()

	out, err := scanChangeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan changes for match %s: %w", matchID, err)
	}
	return out, nil
}

// ChangesByParticipant returns up to limit ledger rows for one
// participant, newest match first.
func (s *PostgresStore) ChangesByParticipant(ctx context.Context, participantID string, limit int) ([]model.RatingChange, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if limit < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+changeSelectCols+` FROM rating_changes
		 WHERE participant_id = $1 ORDER BY match_seq DESC LIMIT $2`,
		participantID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list changes for participant %s: %w", participantID, err)
	}
	defer rows.Close()

	out, err := scanChangeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan changes for participant %s: %w", participantID, err)
	}
	return out, nil
}

// CountChangesBefore counts the participant's ledger rows from matches
// sequenced strictly before beforeSeq.
func (s *PostgresStore) CountChangesBefore(ctx context.Context, participantID string, beforeSeq int64) (int, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM rating_changes WHERE participant_id = $1 AND match_seq < $2`,
		participantID, beforeSeq,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count changes for %s: %w", participantID, err)
	}
	return count, nil
}

// Rank returns the leaderboard entry for a participant using
// competition ranking.
func (s *PostgresStore) Rank(ctx context.Context, participantID string) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	const query = `
		SELECT p.id, p.display_label, p.rating,
		       1 + (SELECT COUNT(*) FROM participants h WHERE h.rating > p.rating),
		       (SELECT COUNT(*) FROM rating_changes rc WHERE rc.participant_id = p.id)
		FROM participants p WHERE p.id = $1`

	var e Entry
	err := s.pool.QueryRow(ctx, query, participantID).
		Scan(&e.ParticipantID, &e.DisplayLabel, &e.Rating, &e.Rank, &e.GamesPlayed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			metrics.RecordErrorByComponent("repository", "not_found")
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("postgres: rank for %s: %w", participantID, err)
	}
	return e, nil
}

// TopN returns the top-N entries ordered by rating desc, ID asc.
func (s *PostgresStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	const query = `
		SELECT p.id, p.display_label, p.rating,
		       (SELECT COUNT(*) FROM rating_changes rc WHERE rc.participant_id = p.id)
		FROM participants p ORDER BY p.rating DESC, p.id ASC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("postgres: top-n: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ParticipantID, &e.DisplayLabel, &e.Rating, &e.GamesPlayed); err != nil {
			return nil, fmt.Errorf("postgres: scan top-n: %w", err)
		}
		e.Rank = len(out) + 1
		if len(out) > 0 && out[len(out)-1].Rating == e.Rating {
			e.Rank = out[len(out)-1].Rank
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of tracked participants.
func (s *PostgresStore) Count(ctx context.Context) int {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM participants`).Scan(&count); err != nil {
		return 0
	}
	return count
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
