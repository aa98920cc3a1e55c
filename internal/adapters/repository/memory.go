package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/model"
	"github.com/maxaitel/overwatch-server-discord-bot/pkg/metrics"
)

// MemoryStore is the mutex-guarded in-memory Store implementation. A
// treap over (rating desc, id asc) keeps leaderboard queries O(log n)
// expected; everything else lives in plain maps.
type MemoryStore struct {
	mu sync.RWMutex

	participants map[string]model.Participant
	root         *node

	nextSeq int64
	matches map[string]model.MatchRecord
	bySeq   []string // match IDs in sequence order
	results map[string]model.MatchResult

	changesByMatch map[string][]model.RatingChange
	changesByPart  map[string][]model.RatingChange
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		participants:   make(map[string]model.Participant),
		matches:        make(map[string]model.MatchRecord),
		results:        make(map[string]model.MatchResult),
		changesByMatch: make(map[string][]model.RatingChange),
		changesByPart:  make(map[string][]model.RatingChange),
	}
}

// UpsertParticipant creates or refreshes a tracked participant.
func (s *MemoryStore) UpsertParticipant(_ context.Context, p model.Participant) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	p.Rating = model.ClampRating(p.Rating)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.participants[p.ID]; ok {
		// Live rating is owned by the ledger; only refresh metadata.
		existing.DisplayLabel = p.DisplayLabel
		existing.Role = p.Role
		s.participants[p.ID] = existing
		return nil
	}

	s.participants[p.ID] = p
	s.root = insertNode(s.root, p.ID, p.Rating)
	metrics.UpdateParticipantsTracked(len(s.participants))
	return nil
}

// Participant returns a tracked participant by ID.
func (s *MemoryStore) Participant(_ context.Context, id string) (model.Participant, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Participant{}, ErrNotFound
	}
	return p, nil
}

// RecordMatch persists a formed match and assigns its sequence number.
func (s *MemoryStore) RecordMatch(_ context.Context, m *model.MatchRecord) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	m.Seq = s.nextSeq
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.matches[m.ID] = *m
	s.bySeq = append(s.bySeq, m.ID)
	metrics.UpdateMatchesRecorded(len(s.matches))
	return nil
}

// Match returns a recorded match by ID.
func (s *MemoryStore) Match(_ context.Context, id string) (model.MatchRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.MatchRecord{}, ErrNotFound
	}
	return m, nil
}

// RecentMatches returns up to limit matches, newest first.
func (s *MemoryStore) RecentMatches(_ context.Context, limit int) ([]model.MatchRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if limit < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.MatchRecord, 0, limit)
	for i := len(s.bySeq) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.matches[s.bySeq[i]])
	}
	return out, nil
}

// SetResult stores or replaces the reported result for a match.
func (s *MemoryStore) SetResult(_ context.Context, r model.MatchResult) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.matches[r.MatchID]; !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return ErrNotFound
	}
	s.results[r.MatchID] = r
	return nil
}

// Result returns the reported result for a match.
func (s *MemoryStore) Result(_ context.Context, matchID string) (model.MatchResult, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[matchID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.MatchResult{}, ErrNotFound
	}
	return r, nil
}

// ApplyChanges inserts the ledger rows for a match and moves the
// affected live ratings, atomically.
func (s *MemoryStore) ApplyChanges(_ context.Context, matchID string, changes []model.RatingChange) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.changesByMatch[matchID]) > 0 {
		return ErrDuplicateChange
	}
	for _, c := range changes {
		if _, ok := s.participants[c.ParticipantID]; !ok {
			metrics.RecordErrorByComponent("repository", "not_found")
			return ErrNotFound
		}
	}

	rows := make([]model.RatingChange, len(changes))
	copy(rows, changes)
	s.changesByMatch[matchID] = rows

	for _, c := range rows {
		s.changesByPart[c.ParticipantID] = append(s.changesByPart[c.ParticipantID], c)
		s.setRatingLocked(c.ParticipantID, model.ClampRating(c.RatingAfter))
	}
	metrics.AddRatingChangeRows(len(rows))
	return nil
}

// AmendChanges rewrites existing ledger rows and adjusts live ratings,
// atomically.
func (s *MemoryStore) AmendChanges(_ context.Context, matchID string, amendments []Amendment) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.changesByMatch[matchID]
	if len(rows) == 0 {
		metrics.RecordErrorByComponent("repository", "not_found")
		return ErrNotFound
	}

	// Validate the whole batch before mutating anything.
	rowIdx := make(map[string]int, len(rows))
	for i, r := range rows {
		rowIdx[r.ParticipantID] = i
	}
	for _, a := range amendments {
		if _, ok := rowIdx[a.ParticipantID]; !ok {
			metrics.RecordErrorByComponent("repository", "not_found")
			return ErrNotFound
		}
	}

	for _, a := range amendments {
		i := rowIdx[a.ParticipantID]
		rows[i].Delta = a.Delta
		rows[i].RatingAfter = a.RatingAfter

		hist := s.changesByPart[a.ParticipantID]
		for j := range hist {
			if hist[j].MatchID == matchID {
				hist[j].Delta = a.Delta
				hist[j].RatingAfter = a.RatingAfter
				break
			}
		}

		p := s.participants[a.ParticipantID]
		s.setRatingLocked(a.ParticipantID, model.ClampRating(p.Rating+a.LiveAdjust))
	}
	return nil
}

// ChangesByMatch returns the ledger rows for a match in insertion order.
func (s *MemoryStore) ChangesByMatch(_ context.Context, matchID string) ([]model.RatingChange, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.changesByMatch[matchID]
	out := make([]model.RatingChange, len(rows))
	copy(out, rows)
	return out, nil
}

// ChangesByParticipant returns up to limit ledger rows for one
// participant, newest match first.
func (s *MemoryStore) ChangesByParticipant(_ context.Context, participantID string, limit int) ([]model.RatingChange, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if limit < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.changesByPart[participantID]
	out := make([]model.RatingChange, len(hist))
	copy(out, hist)
	sort.Slice(out, func(i, j int) bool { return out[i].MatchSeq > out[j].MatchSeq })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountChangesBefore counts the participant's ledger rows from matches
// sequenced strictly before beforeSeq.
func (s *MemoryStore) CountChangesBefore(_ context.Context, participantID string, beforeSeq int64) (int, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, c := range s.changesByPart[participantID] {
		if c.MatchSeq < beforeSeq {
			count++
		}
	}
	return count, nil
}

// Rank returns the leaderboard entry for a participant.
func (s *MemoryStore) Rank(_ context.Context, participantID string) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[participantID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, ErrNotFound
	}
	return Entry{
		Rank:          countRankedBefore(s.root, p.Rating, "") + 1,
		ParticipantID: p.ID,
		DisplayLabel:  p.DisplayLabel,
		Rating:        p.Rating,
		GamesPlayed:   len(s.changesByPart[p.ID]),
	}, nil
}

// TopN returns the top-N entries ordered by rating desc, ID asc.
func (s *MemoryStore) TopN(_ context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, n)
	collectTopN(s.root, n, &ids)

	out := make([]Entry, 0, len(ids))
	for i, id := range ids {
		p := s.participants[id]
		e := Entry{
			Rank:          i + 1,
			ParticipantID: p.ID,
			DisplayLabel:  p.DisplayLabel,
			Rating:        p.Rating,
			GamesPlayed:   len(s.changesByPart[p.ID]),
		}
		// Competition ranking: tied ratings share the earlier rank.
		if i > 0 && out[i-1].Rating == e.Rating {
			e.Rank = out[i-1].Rank
		}
		out = append(out, e)
	}
	return out, nil
}

// Count returns the number of tracked participants.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants)
}

// Close releases the store's resources.
func (s *MemoryStore) Close() error { return nil }

// setRatingLocked moves a participant's live rating and reindexes the
// treap. Callers hold the write lock.
func (s *MemoryStore) setRatingLocked(id string, rating int) {
	p, ok := s.participants[id]
	if !ok {
		return
	}
	if p.Rating == rating {
		return
	}
	s.root = deleteNode(s.root, id, p.Rating)
	p.Rating = rating
	s.participants[id] = p
	s.root = insertNode(s.root, id, rating)
}
