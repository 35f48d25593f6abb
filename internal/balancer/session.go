package balancer

import "time"

// SessionTTL is the duration after which a session is eligible for sweeping,
// measured from its last access.
const SessionTTL = time.Hour

// Session binds a gateway API key identity to a chosen instance within one
// provider type.
type Session struct {
	InstanceName string
	LastAccess   time.Time
}

func (s Session) expired(now time.Time) bool {
	return now.Sub(s.LastAccess) > SessionTTL
}

// SessionStore is the interchangeable backing store for sticky-session
// bindings. The in-process segmented map (segmap.go) is the default; a
// Redis-backed implementation (redisstore.go) is available for multi-replica
// deployments behind the same interface.
type SessionStore interface {
	// Get returns the session bound to (providerType, apiKeyID), if any.
	Get(providerType, apiKeyID string) (Session, bool)
	// Touch refreshes last_access for an existing binding; callers only
	// invoke this after confirming the bound instance is still usable.
	Touch(providerType, apiKeyID string, now time.Time)
	// Set creates or replaces the binding.
	Set(providerType, apiKeyID, instanceName string, now time.Time)
	// Delete removes a binding, e.g. because its instance went unhealthy or
	// was dropped by a config reload.
	Delete(providerType, apiKeyID string)
	// Sweep removes every binding whose last_access is older than
	// SessionTTL relative to now. The in-process store needs this driven
	// externally; a TTL-native store (Redis) may implement it as a no-op.
	Sweep(now time.Time)
}
