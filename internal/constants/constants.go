// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Upload constants
const (
	// MaxUploadSize caps a single request body (raw image or multipart form)
	MaxUploadSize = 20 << 20

	// MaxMultipartMemory is the part of a multipart form kept in memory
	// before spilling to temporary files
	MaxMultipartMemory = 8 << 20

	// MaxImagePixels caps width*height of a decoded upload. A small
	// compressed file can declare a huge grid.
	MaxImagePixels = 40_000_000
)

// Matching constants
const (
	// MaxCandidates caps k on ranking requests
	MaxCandidates = 100
)

// Liveness constants
const (
	// MinFrameDifference is the mean absolute RGB difference two liveness
	// frames must exceed. Identical frames indicate a replayed still image.
	MinFrameDifference = 10.0

	// ChallengeTTL is the validity advertised with a liveness challenge
	ChallengeTTL = 15 * time.Second
)

// Processing constants
const (
	// WorkerPoolSize is the default number of parallel workers for batch enrollment
	WorkerPoolSize = 8

	// StatsCacheTTL is how long the stats endpoint reuses a computed response
	StatsCacheTTL = 30 * time.Second
)

// Server constants
const (
	// RequestTimeout bounds a single HTTP request
	RequestTimeout = time.Minute

	// ShutdownTimeout is the grace period for in-flight requests on SIGINT/SIGTERM
	ShutdownTimeout = 30 * time.Second
)
