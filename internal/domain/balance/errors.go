package balance

import "errors"

// Sentinel kinds for balancer errors.
var (
	// ErrInvalidInput covers odd or too-small pools and quotas that
	// exceed the team size. Surfaced to the caller, never retried.
	ErrInvalidInput = errors.New("invalid balancer input")

	// ErrInfeasible means no split exists even without role constraints.
	// The caller should leave participants in the pool and retry later.
	ErrInfeasible = errors.New("no feasible team split")
)
