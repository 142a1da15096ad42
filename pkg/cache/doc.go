// Package cache provides an optional Redis-backed response cache for the
// NikoHealth transport.
//
// The NikoHealth external API sends no cache-control metadata, so entries
// are stored with a fixed TTL chosen by the transport. Caching is purely an
// optimization: a missing or failing Redis never fails a request, the
// transport falls through to the network.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{
//		Domain:   "acme",
//		Endpoint: "v1/patients",
//		Query:    url.Values{"pageSize": []string{"100"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from the API, then manager.Set(ctx, key, entry)
//	}
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - niko_cache_hits_total - Cache hits
//   - niko_cache_misses_total - Cache misses
//   - niko_cache_errors_total{operation} - Cache operation errors
package cache
