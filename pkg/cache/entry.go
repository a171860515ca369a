package cache

import (
	"time"
)

// Entry is a cached converted page artifact.
type Entry struct {
	// Artifact is the converted page output
	Artifact []byte `json:"artifact"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when the artifact was stored
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry creates an entry expiring after ttl.
func NewEntry(artifact []byte, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Artifact: artifact,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
