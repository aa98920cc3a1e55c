package roles

import "errors"

// ErrInfeasible means quota seats remained unfilled after exhausting the
// flex pool. After a balancer-approved split this is a defect, not a
// recoverable condition.
var ErrInfeasible = errors.New("role assignment infeasible")
