// Package storage defines the composed backend contract for the guard
// library and hosts its implementations.
//
// The individual store interfaces live next to their consumers
// (audit.Store, verification.Store, ratelimit.SharedStore); this package
// only composes them for backends that implement several at once.
//
// Available implementations:
//   - memory: in-process storage for development and tests
//   - postgres: durable storage for audit events and verification state
//   - valkey: shared rate-limit counters, blocks and suspicious flags
//   - mock: hand-written test doubles with call recording
package storage
