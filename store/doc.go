// Package store holds the user directory behind the gateway: the identity
// lookup consumed by token verification and the profile records served by
// the user routes.
//
// Backends: [MemoryStore] for tests and single-process development,
// [RedisStore] and [PostgresStore] for deployments. [Cached] puts an
// expiring LRU in front of any backend's identity lookups.
//
// Every backend reports missing records with [ErrNotFound], which is the
// same sentinel the engine expects from an IdentityProvider.
package store
