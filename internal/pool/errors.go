package pool

import "errors"

var (
	// ErrNoEligibleKey means every candidate was excluded, cooling down, or
	// at its concurrency limit. The caller decides whether to fall back to a
	// direct endpoint; the engine never retries internally.
	ErrNoEligibleKey = errors.New("no eligible key for target model")

	// ErrPoolDisabled means the pool configuration is switched off entirely.
	// Distinct from ErrNoEligibleKey so callers can tell "no pool configured"
	// from "pool exhausted".
	ErrPoolDisabled = errors.New("embedding pool is disabled")
)
