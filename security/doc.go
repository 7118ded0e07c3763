// Package security holds the security primitives of the CRM connector.
//
// # State
//
// GenerateState returns the anti-forgery value embedded in authorization URLs:
// StateLength characters drawn from crypto/rand over ASCII letters and digits.
//
// # Encryption at rest
//
// Encryptor seals token values with AES-256-GCM before a store writes them.
// A nil key yields a disabled Encryptor whose IsEnabled reports false.
// DeriveKey stretches an operator secret into a 32 byte key with HKDF-SHA256:
//
//	key, err := security.DeriveKey(os.Getenv("CRM_ENCRYPTION_SECRET"), "crm-oauth")
//	enc, err := security.NewEncryptor(key)
//
// # Rate limiting
//
// KeyedLimiter keeps one token bucket per identifier (a client IP or a CRM
// name) and evicts the least recently used bucket once DefaultMaxLimiterEntries
// is reached. NewKeyedLimiter returns nil when requestsPerSecond is not
// positive; a nil limiter allows everything.
//
// # Audit logging
//
// Auditor writes security events (authorization started, token issued, invalid
// state) to slog. State values are hashed before they are logged and token
// values are never logged.
//
// # HTTP helpers
//
// RequestIDMiddleware, HeadersMiddleware and GetClientIP are used by the
// integrations HTTP API.
package security
