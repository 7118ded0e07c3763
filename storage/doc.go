// Package storage defines how OAuth states and provider tokens are persisted.
//
// The package declares the two stores used by the service:
//   - StateStore: one anti-forgery state per provider, valid for DefaultStateTTL
//   - TokenStore: one TokenRecord per provider, plus "most recently authenticated" lookup
//
// It also provides the record helpers shared by all backends: expiry derivation,
// latest-record selection and sealing token values with a security.Encryptor.
//
// Implementations are provided in subpackages:
//   - storage/file: JSON documents on disk (tokens.json, states.json), the default
//   - storage/bolt: embedded bbolt database
//   - storage/redis: Redis via rueidis, for deployments with several replicas
//   - storage/memory: in-memory storage for development and testing
//   - storage/backend: builds one of the above from configuration
//   - storage/mock: per-method overridable store for tests
//   - storage/storagetest: behaviour tests every backend runs
package storage
