// Package valkey provides the shared rate-limit store: window counters,
// block markers and suspicious flags in Valkey, so every instance of the
// application enforces one counter per (action, identifier).
//
// Key layout (under the configured prefix, default "shield:"):
//
//	shield:<window key>   INCR counter, expires with the window
//	shield:<block key>    "1", expires with the block
//	shield:<flag key>     "1", expires with the flag
//
// Key names below the prefix are chosen by the rate limiter and are opaque
// here. All state is TTL-bound; there is no cleanup job to run.
package valkey
