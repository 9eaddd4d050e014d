package constants

import "time"

// Handler limits
const (
	// DefaultActivityLimit is the number of recent attendance rows returned by default
	DefaultActivityLimit = 10

	// MaxActivityLimit caps the limit query parameter on listing endpoints
	MaxActivityLimit = 100

	// DefaultLogLimit is the number of recognition log rows returned by default
	DefaultLogLimit = 50

	// MaxRequestBodyBytes bounds JSON request bodies (a 5 MB image grows by a third in base64)
	MaxRequestBodyBytes = 8 * 1024 * 1024
)

// Rate limiting defaults
const (
	// DefaultRateLimit is the number of requests a client may make per window
	DefaultRateLimit = 10

	// DefaultRateWindow is the fixed window length
	DefaultRateWindow = 60 * time.Second

	// DefaultSweepInterval is how often expired windows are dropped from memory
	DefaultSweepInterval = 5 * time.Minute
)

// Replay constants
const (
	// DefaultReplayConcurrency is the number of captures matched in parallel by the replay command
	DefaultReplayConcurrency = 4
)
