package storage

import (
	"github.com/onedrip/shield/audit"
	"github.com/onedrip/shield/verification"
)

// Backend is the full persistence contract: audit event storage plus
// verification state. The shared rate-limit store is deliberately not part
// of Backend; counters belong in a fast TTL store (valkey), not next to
// durable rows.
type Backend interface {
	audit.Store
	verification.Store

	// Close releases the backend's resources.
	Close() error
}
