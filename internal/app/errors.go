package service

import (
	"errors"
)

// Sentinel kinds for service errors.
var (
	ErrMatchNotFound = errors.New("match not found")
	ErrNotApplied    = errors.New("match result not applied")
	ErrPoolTooSmall  = errors.New("not enough waiting participants")
)
