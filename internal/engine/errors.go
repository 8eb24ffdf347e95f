package engine

import "errors"

// Operation errors surfaced to the transport layer. Each maps to a distinct
// user-facing message there; the engine only classifies the condition.
var (
	// ErrNoActiveSession is returned when an operation requires an active
	// adventure and the owner has none.
	ErrNoActiveSession = errors.New("no active adventure")

	// ErrNoResumableAdventure is returned by resume when no non-completed
	// adventure qualifies as a target.
	ErrNoResumableAdventure = errors.New("no resumable adventure")

	// ErrAdventureNotFound is returned when an explicitly named adventure
	// does not exist for the owner.
	ErrAdventureNotFound = errors.New("adventure not found")

	// ErrSessionTimedOut is returned when an action arrives after the idle
	// threshold. The adventure has already been paused when this is returned.
	ErrSessionTimedOut = errors.New("session timed out and was paused")

	// ErrProviderUnavailable is returned when no text provider is configured.
	ErrProviderUnavailable = errors.New("no text provider configured")

	// ErrProviderFailure is returned when the provider call fails. The
	// adventure has already been paused when this is returned.
	ErrProviderFailure = errors.New("provider request failed")

	// ErrStorageFailure is returned when a write-through could not reach the
	// store. In-memory state stays consistent; the caller may retry.
	ErrStorageFailure = errors.New("storage write failed")
)
