// Package cache memoizes analysis results per uploaded file.
//
// Keys have the form analysis:{fingerprint}:{kind}, where the fingerprint is
// the BLAKE2b-128 digest of the raw upload. Values are JSON documents stored
// in one of three backends selected by configuration:
//
//   - MemoryStore: in-process map with a size bound and a TTL sweeper
//   - RedisStore: shared Redis database, TTL handled by Redis
//   - BadgerStore: embedded on-disk database with per-entry TTL
//
// ResultCache sits on top of a Store and never lets a backend failure reach
// the analysis path: a failed read is a miss, a failed write is dropped.
// GetOrCompute is the memoization entry point used by the services layer.
package cache
