package security

import "time"

const (
	// DefaultClockSkewGracePeriod is the default grace period for token expiration checks.
	// It absorbs small clock differences between this process and the provider.
	DefaultClockSkewGracePeriod = 5 * time.Second
)

// IsTokenExpired checks if a token is expired at now with the default clock skew grace period
func IsTokenExpired(expiresAt, now time.Time) bool {
	return IsTokenExpiredWithGracePeriod(expiresAt, now, DefaultClockSkewGracePeriod)
}

// IsTokenExpiredWithGracePeriod checks if a token is expired at now with a custom grace period
func IsTokenExpiredWithGracePeriod(expiresAt, now time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false // No expiration
	}

	return now.After(expiresAt.Add(gracePeriod))
}
