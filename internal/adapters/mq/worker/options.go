package worker

import (
	"time"

	"github.com/maxaitel/overwatch-server-discord-bot/pkg/logger"
)

// Option applies a configuration option to the Matchmaker.
type Option func(*Matchmaker)

// WithTickInterval sets how often the loop checks the pool.
func WithTickInterval(interval time.Duration) Option {
	return func(m *Matchmaker) {
		if interval > 0 {
			m.tickInterval = interval
		}
	}
}

// WithLogger sets a custom logger for the matchmaker.
func WithLogger(l logger.Logger) Option {
	return func(m *Matchmaker) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithBenignErrors marks formation errors that end a pass silently,
// such as the pool emptying between the size check and the formation.
func WithBenignErrors(errs ...error) Option {
	return func(m *Matchmaker) {
		m.benign = append(m.benign, errs...)
	}
}
