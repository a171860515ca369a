// Package cache stores converted page artifacts in Redis so unchanged pages
// skip the remote conversion call entirely.
//
// Keys are derived from the document name, the page index, and a checksum of
// the page payload: a page is only ever served from cache when its bytes are
// identical to the run that produced the artifact. Entries carry their own
// expiry and are additionally bounded by a Redis TTL.
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create cache manager
//	manager := cache.NewManager(redisClient)
//
//	// Create cache key for a page payload
//	key := cache.NewKey("report.pdf", 3, payload)
//
//	// Get from cache
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// convert remotely, then:
//		err = manager.Set(ctx, key, cache.NewEntry(artifact, ttl))
//	}
//
// All operations record Prometheus hit/miss/error metrics.
package cache
