// Package worker runs the background matchmaking loop. A single
// goroutine polls the waiting pool and forms matches, so a group of
// waiters can never be consumed twice.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/model"
	"github.com/maxaitel/overwatch-server-discord-bot/pkg/logger"
	"github.com/maxaitel/overwatch-server-discord-bot/pkg/metrics"
)

// defaultTickInterval is how often the loop checks the pool.
const defaultTickInterval = 2 * time.Second

// Former is the slice of the service the matchmaker drives.
type Former interface {
	// PoolSize returns the number of waiting participants.
	PoolSize(ctx context.Context) int

	// FormMatch consumes waiters and records a match. Returns
	// service.ErrPoolTooSmall when not enough waiters remain.
	FormMatch(ctx context.Context) (model.MatchRecord, error)
}

// Matchmaker is the serialized match-formation loop.
type Matchmaker struct {
	former          Former
	playersPerMatch int
	tickInterval    time.Duration
	benign          []error

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewMatchmaker creates a matchmaker with configuration options.
func NewMatchmaker(former Former, playersPerMatch int, opts ...Option) *Matchmaker {
	m := &Matchmaker{
		former:          former,
		playersPerMatch: playersPerMatch,
		tickInterval:    defaultTickInterval,
		shutdown:        make(chan struct{}),
		done:            make(chan struct{}),
		logger:          logger.Get().Named("matchmaker"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run starts the loop until the context is canceled or Shutdown is
// called.
func (m *Matchmaker) Run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.shutdown:
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick drains the pool into matches while enough waiters remain. One
// failed formation stops the pass; the same group would fail again.
func (m *Matchmaker) tick(ctx context.Context) {
	for m.former.PoolSize(ctx) >= m.playersPerMatch {
		match, err := m.former.FormMatch(ctx)
		if err != nil {
			if !m.isBenign(err) {
				metrics.RecordErrorByComponent("matchmaker", "form_match")
				m.logger.Error(ctx, "match formation failed", logger.Error(err))
			}
			return
		}
		m.logger.Debug(ctx, "formed match",
			logger.String("matchID", match.ID),
			logger.Int64("seq", match.Seq),
		)
	}
}

// isBenign reports whether the error is an expected, non-loggable
// formation outcome (configured via WithBenignErrors).
func (m *Matchmaker) isBenign(err error) bool {
	for _, b := range m.benign {
		if errors.Is(err, b) {
			return true
		}
	}
	return false
}

// Shutdown gracefully stops the loop.
func (m *Matchmaker) Shutdown(ctx context.Context) error {
	close(m.shutdown)

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		m.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
