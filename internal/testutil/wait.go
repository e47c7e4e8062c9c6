package testutil

import "time"

// Bounds for assert.Eventually in tests that wait on goroutines.
const (
	WaitTimeout = 5 * time.Second
	WaitTick    = 5 * time.Millisecond
)
