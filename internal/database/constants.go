package database

// Verification audit listing limits.
const (
	// DefaultVerificationLimit is used when the caller passes a non-positive limit.
	DefaultVerificationLimit = 50

	// MaxVerificationLimit caps a single listing.
	MaxVerificationLimit = 1000
)

// ClampVerificationLimit maps limit into 1..MaxVerificationLimit.
func ClampVerificationLimit(limit int) int {
	if limit <= 0 {
		return DefaultVerificationLimit
	}
	return min(limit, MaxVerificationLimit)
}
