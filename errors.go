package gateway

import "errors"

var (
	// Construction errors.
	ErrNoCatalog  = errors.New("gateway: no catalog configured")
	ErrNoChannels = errors.New("gateway: no channel pair configured")

	// ErrRetriesExhausted means a background submission gave up after
	// the configured number of transport retries.
	ErrRetriesExhausted = errors.New("gateway: transport retries exhausted")
)
