package lifecycle

import "sync/atomic"

var draining atomic.Bool

// SetShuttingDown marks the process as draining. main sets it on
// SIGTERM/SIGINT before the server stops accepting connections, so load
// balancers polling /health see 503 and stop sending hazard requests while
// in-flight batches finish.
func SetShuttingDown(v bool) {
	draining.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return draining.Load()
}
