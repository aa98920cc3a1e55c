package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/model"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if OWBOT_CONFIG is set
//  3. env (prefix OWBOT_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("OWBOT_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: OWBOT_ADDR, OWBOT_PLAYERS_PER_MATCH, ...
	// Map env keys like OWBOT_K_FACTOR -> k_factor (flat keys, underscores
	// preserved to match the koanf tags on the struct).
	envProvider := env.Provider("OWBOT_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "owbot_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.PlayersPerMatch < 2 || c.PlayersPerMatch%2 != 0 {
		return fmt.Errorf("%w: players_per_match must be even and >= 2, got %d",
			ErrInvalidConfig, c.PlayersPerMatch)
	}
	if c.TanksPerTeam < 0 || c.DamagePerTeam < 0 || c.SupportsPerTeam < 0 {
		return fmt.Errorf("%w: role quotas must not be negative", ErrInvalidConfig)
	}
	teamSize := c.PlayersPerMatch / 2
	if quota := c.TanksPerTeam + c.DamagePerTeam + c.SupportsPerTeam; quota > teamSize {
		return fmt.Errorf("%w: role quota %d exceeds team size %d",
			ErrInvalidConfig, quota, teamSize)
	}
	if c.KFactor <= 0 {
		return fmt.Errorf("%w: k_factor must be positive, got %d", ErrInvalidConfig, c.KFactor)
	}
	if c.CalibrationGames < 0 {
		return fmt.Errorf("%w: calibration_games must not be negative, got %d",
			ErrInvalidConfig, c.CalibrationGames)
	}
	if c.CalibrationMultiplier < 1.0 {
		return fmt.Errorf("%w: calibration_multiplier must be >= 1, got %g",
			ErrInvalidConfig, c.CalibrationMultiplier)
	}
	if c.DefaultRating < 0 || c.DefaultRating > 5000 {
		return fmt.Errorf("%w: default_rating must be within [0, 5000], got %d",
			ErrInvalidConfig, c.DefaultRating)
	}
	if c.PoolCapacity < c.PlayersPerMatch {
		return fmt.Errorf("%w: pool_capacity %d below players_per_match %d",
			ErrInvalidConfig, c.PoolCapacity, c.PlayersPerMatch)
	}
	switch c.StoreBackend {
	case "memory":
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres backend requires postgres_dsn", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	}
	return nil
}

// RoleQuota assembles the per-team quota map from the scalar fields.
func (c *Config) RoleQuota() model.RoleQuota {
	return model.RoleQuota{
		model.RoleTank:    c.TanksPerTeam,
		model.RoleDamage:  c.DamagePerTeam,
		model.RoleSupport: c.SupportsPerTeam,
	}
}
