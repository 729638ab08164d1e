package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Job pipeline errors
	ErrInvalidConfig     = errors.New("invalid job configuration")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrAnalysisDegraded  = errors.New("analysis degraded to default enrichment")
	ErrJobFailed         = errors.New("job failed")
	ErrJobNotReady       = errors.New("job has no analyzed posts yet")

	// Oracle errors
	ErrOracleUnavailable = errors.New("analysis oracle unavailable")
	ErrMalformedOutput   = errors.New("malformed oracle output")
	ErrRateLimited       = errors.New("rate limited")
)
