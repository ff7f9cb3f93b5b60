package domain

import "errors"

var (
	// ErrNotFound indicates a missing store or cache entry.
	ErrNotFound = errors.New("not found")

	// ErrNoQuote indicates that no fresh price is available: the provider
	// either returned a well-formed response without usable data (a soft
	// failure, e.g. an embedded rate-limit notice) or exhausted its
	// transport retries.
	ErrNoQuote = errors.New("no quote available")

	// ErrQueueClosed indicates a submission to a fetch queue that has
	// already shut down.
	ErrQueueClosed = errors.New("fetch queue closed")
)
