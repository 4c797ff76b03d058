package logics

import "errors"

var (
	// ErrChallengeNotFound is returned when no live session matches the
	// submitted opaque hash
	ErrChallengeNotFound = errors.New("challenge session not found")

	// ErrChallengeReplayed is returned when the session was already validated
	ErrChallengeReplayed = errors.New("challenge session already validated")

	// ErrChallengeExpired is returned when the session is older than the
	// session lifetime
	ErrChallengeExpired = errors.New("challenge session expired")

	// ErrSaltUnavailable is returned when no salt could be read or created
	ErrSaltUnavailable = errors.New("identity salt unavailable")

	// ErrPoolEmpty is returned by Take when no live pool entry exists
	ErrPoolEmpty = errors.New("challenge pool is empty")

	// ErrTooManyChallenges is returned when an IP exceeds the challenge
	// generation cap
	ErrTooManyChallenges = errors.New("too many challenge requests from this client")
)
