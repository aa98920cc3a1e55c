// Package rating implements the Elo-style arithmetic behind the rating
// engine: expected scores, calibration multipliers, and integer deltas.
//
// All intermediate math is floating point, but every delta and stored
// rating is an integer produced by round-half-to-even and then clamped to
// the model rating bounds. The rounding mode is load-bearing: changing it
// silently shifts historical corrections.
package rating

import (
	"math"

	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/model"
)

// Default engine parameters.
const (
	DefaultKFactor               = 24
	DefaultCalibrationGames      = 5
	DefaultCalibrationMultiplier = 2.0
)

// Config holds the tunable engine parameters.
type Config struct {
	// K scales every rating swing.
	K int
	// CalibrationGames is the number of recorded games below which the
	// calibration multiplier applies. Zero disables calibration.
	CalibrationGames int
	// CalibrationMultiplier boosts swings for participants still
	// calibrating. Values at or below 1 disable the boost.
	CalibrationMultiplier float64
}

// Option applies a configuration option to a Config.
type Option func(*Config)

// WithKFactor overrides the K factor.
func WithKFactor(k int) Option {
	return func(c *Config) {
		if k > 0 {
			c.K = k
		}
	}
}

// WithCalibration overrides the calibration window and multiplier.
func WithCalibration(games int, multiplier float64) Option {
	return func(c *Config) {
		if games >= 0 {
			c.CalibrationGames = games
		}
		if multiplier > 0 {
			c.CalibrationMultiplier = multiplier
		}
	}
}

// New builds a Config from defaults and options.
func New(opts ...Option) Config {
	c := Config{
		K:                     DefaultKFactor,
		CalibrationGames:      DefaultCalibrationGames,
		CalibrationMultiplier: DefaultCalibrationMultiplier,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Expected returns the probability that a participant rated self scores
// against an opposing side averaging opponentAvg.
func Expected(self, opponentAvg int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(opponentAvg-self)/400.0))
}

// Multiplier returns the calibration multiplier for a participant with
// the given number of prior recorded games.
func (c Config) Multiplier(priorGames int) float64 {
	if c.CalibrationGames > 0 && c.CalibrationMultiplier > 1.0 && priorGames < c.CalibrationGames {
		return c.CalibrationMultiplier
	}
	return 1.0
}

// Delta computes the raw integer rating delta for one participant:
// round-half-even of K * (score - expected) * calibration multiplier.
// The caller clamps before+delta into the rating bounds when storing.
func (c Config) Delta(before, opponentAvg int, score float64, priorGames int) int {
	expected := Expected(before, opponentAvg)
	return int(math.RoundToEven(float64(c.K) * (score - expected) * c.Multiplier(priorGames)))
}

// Apply returns the stored after-rating for a raw delta.
func Apply(before, delta int) int {
	return model.ClampRating(before + delta)
}
