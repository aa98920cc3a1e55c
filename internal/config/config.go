// Package config defines service configuration structures and loading.
package config

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address for /metrics and /healthz.
	Addr string `koanf:"addr"`

	// PlayersPerMatch is the number of participants consumed per match.
	// Must be even and at least 2.
	PlayersPerMatch int `koanf:"players_per_match"`

	// EnforceRoles toggles role-aware balancing.
	EnforceRoles bool `koanf:"enforce_roles"`

	// Per-team core-role quota.
	TanksPerTeam    int `koanf:"tanks_per_team"`
	DamagePerTeam   int `koanf:"damage_per_team"`
	SupportsPerTeam int `koanf:"supports_per_team"`

	// KFactor scales every rating swing.
	KFactor int `koanf:"k_factor"`

	// CalibrationGames is the recorded-games threshold below which the
	// calibration multiplier applies. Zero disables calibration.
	CalibrationGames int `koanf:"calibration_games"`

	// CalibrationMultiplier boosts swings for calibrating participants.
	CalibrationMultiplier float64 `koanf:"calibration_multiplier"`

	// DefaultRating seeds participants without a recorded rating.
	DefaultRating int `koanf:"default_rating"`

	// PoolCapacity bounds the waiting pool.
	PoolCapacity int `koanf:"pool_capacity"`

	// MatchmakerIntervalMS is how often the matchmaker checks the pool.
	MatchmakerIntervalMS int `koanf:"matchmaker_interval_ms"`

	// StoreBackend selects the persistence layer: memory or postgres.
	StoreBackend string `koanf:"store_backend"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `koanf:"postgres_dsn"`

	// MaxLeaderboardLimit caps leaderboard queries.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		PlayersPerMatch:       10,
		EnforceRoles:          true,
		TanksPerTeam:          1,
		DamagePerTeam:         2,
		SupportsPerTeam:       2,
		KFactor:               24,
		CalibrationGames:      5,
		CalibrationMultiplier: 2.0,
		DefaultRating:         2500,
		PoolCapacity:          1000,
		MatchmakerIntervalMS:  2000,
		StoreBackend:          "memory",
		MaxLeaderboardLimit:   100,
	}
}
