// Package service orchestrates the matchmaking flows: pool -> balancer ->
// role assignment -> match store, plus the apply/correct rating flows over
// the rating-change ledger.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maxaitel/overwatch-server-discord-bot/internal/adapters/pool"
	"github.com/maxaitel/overwatch-server-discord-bot/internal/adapters/repository"
	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/balance"
	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/model"
	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/rating"
	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/roles"
	"github.com/maxaitel/overwatch-server-discord-bot/pkg/logger"
	"github.com/maxaitel/overwatch-server-discord-bot/pkg/metrics"
)

// Status reports the outcome of an apply or correct flow. Idempotent
// no-ops are statuses, not errors.
type Status string

// Apply/correct outcome statuses.
const (
	StatusApplied        Status = "applied"
	StatusAlreadyApplied Status = "already_applied"
	StatusCorrected      Status = "corrected"
	StatusAlreadyMatches Status = "already_matches"
)

// ParticipantStats aggregates one participant's recorded history.
type ParticipantStats struct {
	Entry       repository.Entry
	Wins        int
	Losses      int
	Draws       int
	RolesPlayed map[model.Role]int
}

// Service implements the matchmaking and rating operations. A coarse
// mutex serializes every state-changing flow; reads go straight to the
// store.
type Service struct {
	mu sync.Mutex

	store   repository.Store
	waiting pool.Pool

	// Configuration
	playersPerMatch int
	enforceRoles    bool
	quota           model.RoleQuota
	elo             rating.Config
	defaultRating   int
	poolCapacity    int

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the backing store. Defaults to the in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPlayersPerMatch sets the number of participants consumed per match.
func WithPlayersPerMatch(n int) Option {
	return func(s *Service) {
		if n >= 2 && n%2 == 0 {
			s.playersPerMatch = n
		}
	}
}

// WithRoleQuota sets the per-team core-role quota.
func WithRoleQuota(quota model.RoleQuota) Option {
	return func(s *Service) {
		if len(quota) > 0 {
			s.quota = quota.Clone()
		}
	}
}

// WithEnforceRoles toggles role-aware balancing.
func WithEnforceRoles(enforce bool) Option {
	return func(s *Service) {
		s.enforceRoles = enforce
	}
}

// WithRatingConfig sets the rating engine parameters.
func WithRatingConfig(cfg rating.Config) Option {
	return func(s *Service) {
		s.elo = cfg
	}
}

// WithDefaultRating sets the rating given to unknown participants.
func WithDefaultRating(r int) Option {
	return func(s *Service) {
		if r > 0 {
			s.defaultRating = model.ClampRating(r)
		}
	}
}

// WithPoolCapacity bounds the waiting pool.
func WithPoolCapacity(capacity int) Option {
	return func(s *Service) {
		if capacity > 0 {
			s.poolCapacity = capacity
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		playersPerMatch: 10,
		enforceRoles:    true,
		quota: model.RoleQuota{
			model.RoleTank:    1,
			model.RoleDamage:  2,
			model.RoleSupport: 2,
		},
		elo:           rating.New(),
		defaultRating: 2500,
		poolCapacity:  1000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory store")
	}
	s.waiting = pool.NewInMemoryPool(pool.WithCapacity(s.poolCapacity))

	s.started = true
	s.logger.Info(ctx, "matchmaking service started",
		logger.Int("playersPerMatch", s.playersPerMatch),
		logger.Bool("enforceRoles", s.enforceRoles),
		logger.Int("kFactor", s.elo.K),
		logger.Int("poolCapacity", s.poolCapacity),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(context.Background(), "closing store", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "matchmaking service stopped")
}

// JoinPool adds a participant to the waiting pool. A tracked participant
// joins with its live rating; an unknown one gets the default rating
// unless the caller provided one. Returns false when already waiting or
// the pool is full.
func (s *Service) JoinPool(ctx context.Context, p model.Participant) (bool, error) {
	if p.Role == "" {
		p.Role = model.RoleFlex
	}

	stored, err := s.store.Participant(ctx, p.ID)
	switch {
	case err == nil:
		p.Rating = stored.Rating
		if p.DisplayLabel == "" {
			p.DisplayLabel = stored.DisplayLabel
		}
	case errors.Is(err, repository.ErrNotFound):
		if p.Rating == 0 {
			p.Rating = s.defaultRating
		}
	default:
		return false, fmt.Errorf("looking up participant %s: %w", p.ID, err)
	}

	return s.waiting.Join(ctx, p), nil
}

// LeavePool removes a participant from the waiting pool.
func (s *Service) LeavePool(ctx context.Context, id string) bool {
	return s.waiting.Leave(ctx, id)
}

// PoolSize returns the number of waiting participants.
func (s *Service) PoolSize(ctx context.Context) int {
	return s.waiting.Len(ctx)
}

// FormMatch consumes the first PlayersPerMatch waiters and records a
// balanced match. Nothing is consumed when balancing or role assignment
// fails.
func (s *Service) FormMatch(ctx context.Context) (model.MatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.waiting.Snapshot(ctx)
	metrics.UpdateBalancePoolSize(len(snapshot))
	if len(snapshot) < s.playersPerMatch {
		return model.MatchRecord{}, ErrPoolTooSmall
	}
	group := snapshot[:s.playersPerMatch]

	start := time.Now()
	res, err := balance.Balance(group, s.enforceRoles, s.quota)
	metrics.RecordBalanceDuration(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordFormationError()
		metrics.RecordErrorByComponent("service", "balance")
		return model.MatchRecord{}, fmt.Errorf("balancing %d participants: %w", len(group), err)
	}

	playersA, err := s.assignTeam(res.TeamA, res.RolesEnforced)
	if err != nil {
		metrics.RecordFormationError()
		metrics.RecordErrorByComponent("service", "assign_roles")
		return model.MatchRecord{}, err
	}
	playersB, err := s.assignTeam(res.TeamB, res.RolesEnforced)
	if err != nil {
		metrics.RecordFormationError()
		metrics.RecordErrorByComponent("service", "assign_roles")
		return model.MatchRecord{}, err
	}

	m := model.MatchRecord{
		ID:            uuid.NewString(),
		TeamA:         model.Team{Name: model.TeamAName, Players: playersA},
		TeamB:         model.Team{Name: model.TeamBName, Players: playersB},
		RolesEnforced: res.RolesEnforced,
	}
	if err := s.store.RecordMatch(ctx, &m); err != nil {
		metrics.RecordFormationError()
		return model.MatchRecord{}, fmt.Errorf("recording match: %w", err)
	}

	consumed := append(m.TeamA.MemberIDs(), m.TeamB.MemberIDs()...)
	s.waiting.RemoveMany(ctx, consumed)

	metrics.RecordMatchFormed()
	if s.enforceRoles && !res.RolesEnforced {
		metrics.RecordMatchDegraded()
	}
	s.logger.Info(ctx, "match formed",
		logger.String("matchID", m.ID),
		logger.Int64("seq", m.Seq),
		logger.Int("teamAAvg", m.TeamA.AverageRating()),
		logger.Int("teamBAvg", m.TeamB.AverageRating()),
		logger.Bool("rolesEnforced", m.RolesEnforced),
	)
	return m, nil
}

// assignTeam maps a balanced side to assigned roles. Infeasibility after
// a balancer-approved split is an invariant violation, so the error is
// surfaced rather than degraded.
func (s *Service) assignTeam(team []model.Participant, enforced bool) ([]model.AssignedParticipant, error) {
	roleByID := make(map[string]model.Role, len(team))
	if enforced {
		assigned, err := roles.Assign(team, s.quota)
		if err != nil {
			return nil, fmt.Errorf("assigning roles to balanced team: %w", err)
		}
		roleByID = assigned
	} else {
		for _, p := range team {
			roleByID[p.ID] = p.Role
		}
	}

	out := make([]model.AssignedParticipant, 0, len(team))
	for _, p := range team {
		out = append(out, model.AssignedParticipant{
			ID:           p.ID,
			DisplayLabel: p.DisplayLabel,
			Rating:       model.ClampRating(p.Rating),
			DeclaredRole: p.Role,
			AssignedRole: roleByID[p.ID],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ApplyResult applies a reported match result to the ledger. The call is
// idempotent: a match with existing ledger rows reports
// StatusAlreadyApplied and returns the stored rows untouched.
func (s *Service) ApplyResult(ctx context.Context, matchID, winner string) ([]model.RatingChange, Status, error) {
	w, err := model.ParseWinner(winner)
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.store.Match(ctx, matchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", fmt.Errorf("match %s: %w", matchID, ErrMatchNotFound)
		}
		return nil, "", fmt.Errorf("loading match %s: %w", matchID, err)
	}

	existing, err := s.store.ChangesByMatch(ctx, m.ID)
	if err != nil {
		return nil, "", fmt.Errorf("loading changes for match %s: %w", m.ID, err)
	}
	if len(existing) > 0 {
		metrics.RecordRatingNoop()
		return existing, StatusAlreadyApplied, nil
	}

	changes, err := s.computeApply(ctx, m, w)
	if err != nil {
		return nil, "", err
	}

	if err := s.store.ApplyChanges(ctx, m.ID, changes); err != nil {
		if errors.Is(err, repository.ErrDuplicateChange) {
			rows, readErr := s.store.ChangesByMatch(ctx, m.ID)
			if readErr != nil {
				return nil, "", fmt.Errorf("loading changes for match %s: %w", m.ID, readErr)
			}
			metrics.RecordRatingNoop()
			return rows, StatusAlreadyApplied, nil
		}
		return nil, "", fmt.Errorf("applying changes for match %s: %w", m.ID, err)
	}
	if err := s.store.SetResult(ctx, model.MatchResult{
		MatchID:    m.ID,
		Winner:     w,
		ReportedAt: time.Now().UTC(),
	}); err != nil {
		return nil, "", fmt.Errorf("recording result for match %s: %w", m.ID, err)
	}

	metrics.RecordRatingApply()
	s.logger.Info(ctx, "match result applied",
		logger.String("matchID", m.ID),
		logger.String("winner", string(w)),
		logger.Int("changes", len(changes)),
	)
	return changes, StatusApplied, nil
}

// computeApply builds the ledger rows for a first-time result. Deltas
// use each participant's live rating against the frozen snapshot average
// of the opposing side.
func (s *Service) computeApply(ctx context.Context, m model.MatchRecord, w model.Winner) ([]model.RatingChange, error) {
	sides := []struct {
		team, opp model.Team
	}{
		{m.TeamA, m.TeamB},
		{m.TeamB, m.TeamA},
	}

	changes := make([]model.RatingChange, 0, len(m.TeamA.Players)+len(m.TeamB.Players))
	for _, side := range sides {
		oppAvg := side.opp.AverageRating()
		score := w.Score(side.team.Name)
		for _, pl := range side.team.Players {
			before, err := s.liveRating(ctx, pl)
			if err != nil {
				return nil, err
			}
			prior, err := s.store.CountChangesBefore(ctx, pl.ID, m.Seq)
			if err != nil {
				return nil, fmt.Errorf("counting prior games for %s: %w", pl.ID, err)
			}
			delta := s.elo.Delta(before, oppAvg, score, prior)
			changes = append(changes, model.RatingChange{
				MatchID:       m.ID,
				MatchSeq:      m.Seq,
				ParticipantID: pl.ID,
				DisplayLabel:  pl.DisplayLabel,
				Team:          side.team.Name,
				RatingBefore:  before,
				Delta:         delta,
				RatingAfter:   rating.Apply(before, delta),
			})
		}
	}
	return changes, nil
}

// liveRating returns the participant's current rating, seeding unknown
// participants from the match snapshot.
func (s *Service) liveRating(ctx context.Context, pl model.AssignedParticipant) (int, error) {
	stored, err := s.store.Participant(ctx, pl.ID)
	if err == nil {
		return stored.Rating, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return 0, fmt.Errorf("looking up participant %s: %w", pl.ID, err)
	}

	seed := model.Participant{
		ID:           pl.ID,
		DisplayLabel: pl.DisplayLabel,
		Rating:       model.ClampRating(pl.Rating),
		Role:         pl.DeclaredRole,
	}
	if err := s.store.UpsertParticipant(ctx, seed); err != nil {
		return 0, fmt.Errorf("seeding participant %s: %w", pl.ID, err)
	}
	return seed.Rating, nil
}

// CorrectResult recomputes an applied match under a different winner.
// Frozen before-ratings and snapshot averages keep the correction
// independent of rating movement since the original application; live
// ratings receive only the effective (clamp-aware) difference.
func (s *Service) CorrectResult(ctx context.Context, matchID, winner string) ([]model.RatingChange, Status, error) {
	w, err := model.ParseWinner(winner)
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.store.Match(ctx, matchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", fmt.Errorf("match %s: %w", matchID, ErrMatchNotFound)
		}
		return nil, "", fmt.Errorf("loading match %s: %w", matchID, err)
	}

	rows, err := s.store.ChangesByMatch(ctx, m.ID)
	if err != nil {
		return nil, "", fmt.Errorf("loading changes for match %s: %w", m.ID, err)
	}
	if len(rows) == 0 {
		return nil, "", fmt.Errorf("match %s: %w", m.ID, ErrNotApplied)
	}

	updated := make([]model.RatingChange, len(rows))
	copy(updated, rows)

	var amendments []repository.Amendment
	for i, row := range rows {
		opp := m.TeamB
		if row.Team == m.TeamB.Name {
			opp = m.TeamA
		}
		oppAvg := opp.AverageRating()
		score := w.Score(row.Team)

		prior, err := s.store.CountChangesBefore(ctx, row.ParticipantID, m.Seq)
		if err != nil {
			return nil, "", fmt.Errorf("counting prior games for %s: %w", row.ParticipantID, err)
		}
		desired := s.elo.Delta(row.RatingBefore, oppAvg, score, prior)
		after := rating.Apply(row.RatingBefore, desired)
		// The correction is the effective difference. A clamped row whose
		// after-rating already matches needs no amendment even when the raw
		// delta differs.
		if after == row.RatingAfter {
			continue
		}

		amendments = append(amendments, repository.Amendment{
			ParticipantID: row.ParticipantID,
			Delta:         desired,
			RatingAfter:   after,
			LiveAdjust:    after - row.RatingAfter,
		})
		updated[i].Delta = desired
		updated[i].RatingAfter = after
	}

	result := model.MatchResult{MatchID: m.ID, Winner: w, ReportedAt: time.Now().UTC()}
	if len(amendments) == 0 {
		if err := s.store.SetResult(ctx, result); err != nil {
			return nil, "", fmt.Errorf("recording result for match %s: %w", m.ID, err)
		}
		metrics.RecordRatingNoop()
		return rows, StatusAlreadyMatches, nil
	}

	if err := s.store.AmendChanges(ctx, m.ID, amendments); err != nil {
		return nil, "", fmt.Errorf("amending changes for match %s: %w", m.ID, err)
	}
	if err := s.store.SetResult(ctx, result); err != nil {
		return nil, "", fmt.Errorf("recording result for match %s: %w", m.ID, err)
	}

	metrics.RecordRatingCorrection()
	s.logger.Info(ctx, "match result corrected",
		logger.String("matchID", m.ID),
		logger.String("winner", string(w)),
		logger.Int("amendments", len(amendments)),
	)
	return updated, StatusCorrected, nil
}

// Leaderboard returns the top-n rating entries.
func (s *Service) Leaderboard(ctx context.Context, n int) ([]repository.Entry, error) {
	return s.store.TopN(ctx, n)
}

// ParticipantRank returns the leaderboard entry for one participant.
func (s *Service) ParticipantRank(ctx context.Context, id string) (repository.Entry, error) {
	return s.store.Rank(ctx, id)
}

// MatchHistory returns the participant's ledger rows, newest match first.
func (s *Service) MatchHistory(ctx context.Context, participantID string, limit int) ([]model.RatingChange, error) {
	return s.store.ChangesByParticipant(ctx, participantID, limit)
}

// RecentMatches returns the latest recorded matches, newest first.
func (s *Service) RecentMatches(ctx context.Context, limit int) ([]model.MatchRecord, error) {
	return s.store.RecentMatches(ctx, limit)
}

// Match returns one recorded match.
func (s *Service) Match(ctx context.Context, id string) (model.MatchRecord, error) {
	m, err := s.store.Match(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.MatchRecord{}, fmt.Errorf("match %s: %w", id, ErrMatchNotFound)
	}
	return m, err
}

// Stats recomputes a participant's aggregate record from the ledger, the
// stored match snapshots and the recorded results.
func (s *Service) Stats(ctx context.Context, participantID string) (ParticipantStats, error) {
	entry, err := s.store.Rank(ctx, participantID)
	if err != nil {
		return ParticipantStats{}, err
	}

	stats := ParticipantStats{
		Entry:       entry,
		RolesPlayed: make(map[model.Role]int),
	}
	if entry.GamesPlayed == 0 {
		return stats, nil
	}

	rows, err := s.store.ChangesByParticipant(ctx, participantID, entry.GamesPlayed)
	if err != nil {
		return ParticipantStats{}, err
	}
	for _, row := range rows {
		res, err := s.store.Result(ctx, row.MatchID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return ParticipantStats{}, err
		}
		switch {
		case res.Winner == model.WinnerDraw:
			stats.Draws++
		case string(res.Winner) == row.Team:
			stats.Wins++
		default:
			stats.Losses++
		}

		m, err := s.store.Match(ctx, row.MatchID)
		if err != nil {
			return ParticipantStats{}, err
		}
		for _, pl := range append(m.TeamA.Players, m.TeamB.Players...) {
			if pl.ID == participantID {
				stats.RolesPlayed[pl.AssignedRole]++
				break
			}
		}
	}
	return stats, nil
}

// ServiceStats returns operational counters for monitoring.
func (s *Service) ServiceStats(ctx context.Context) map[string]any {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	stats := map[string]any{
		"started":         started,
		"playersPerMatch": s.playersPerMatch,
		"enforceRoles":    s.enforceRoles,
		"kFactor":         s.elo.K,
	}
	if started {
		stats["poolSize"] = s.waiting.Len(ctx)
		stats["participants"] = s.store.Count(ctx)
	}
	return stats
}
