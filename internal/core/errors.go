package core

import "errors"

// Fatal conditions for a single event. Anything else a handler encounters is
// either a soft skip (unlisted or denylisted market) or a recovered contract
// read, neither of which surfaces as an error.
var (
	// ErrComptrollerNotInitialized: a governance event assumed the singleton
	// already exists. Skipping silently would desynchronize derived
	// aggregates from the journal, so this aborts the event.
	ErrComptrollerNotInitialized = errors.New("comptroller singleton not initialized")

	// ErrMarketNotListed: a position event referenced a market that was
	// never listed.
	ErrMarketNotListed = errors.New("market not listed")
)
