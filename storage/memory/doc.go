// Package memory provides an in-process storage backend.
//
// It implements every store interface the guard library consumes:
// audit.Store, verification.Store and ratelimit.SharedStore. State lives in
// maps guarded by a mutex and a background janitor purges expired window
// counters, blocks and flags.
//
// Use it for development and tests, or as a single-instance deployment
// backend where losing audit events on restart is acceptable. Production
// deployments should persist audit and verification state in postgres and
// point the shared rate limiter at valkey.
package memory
