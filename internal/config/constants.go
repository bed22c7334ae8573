package config

import "time"

const (
	// Session clock
	SessionWindow = 10 * time.Minute
	ClockTick     = time.Second

	// Matchmaking
	OpenSessionFanOut = 5

	// Read retries
	ReadRetryInitial = 100 * time.Millisecond
	ReadRetryMax     = 2 * time.Second
	ReadRetryElapsed = 5 * time.Second

	// Release of presence on disconnect must not depend on the request context.
	ReleaseTimeout = 5 * time.Second
)

// SessionWindowSeconds is the full countdown in whole seconds.
const SessionWindowSeconds = int(SessionWindow / time.Second)
