// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Matching thresholds
const (
	// DefaultAcceptThreshold is the minimum best score for an identification to be accepted
	DefaultAcceptThreshold = 0.05

	// DefaultAutoMarkThreshold is the score above which attendance is written automatically
	DefaultAutoMarkThreshold = 0.6

	// HighConfidenceScore is the score above which a match is reported as high confidence
	HighConfidenceScore = 0.8

	// MediumConfidenceScore is the score above which a match is reported as medium confidence
	MediumConfidenceScore = 0.6
)

// Pixel fallback constants
const (
	// PixelCanvasSize is the width and height both images are resampled to
	PixelCanvasSize = 100

	// PixelChannelThreshold is the summed per-channel absolute difference above which a pixel differs
	PixelChannelThreshold = 100

	// PixelMatchSimilarity is the similarity above which the pixel tier reports a match
	PixelMatchSimilarity = 0.1

	// PixelScoreBoost scales matched pixel similarity into a score
	PixelScoreBoost = 1.5

	// PixelScoreCap caps the boosted pixel score unless the images are identical
	PixelScoreCap = 0.95
)

// Size fallback constants
const (
	// SizeMatchSimilarity is the similarity above which the size tier reports a match
	SizeMatchSimilarity = 0.5

	// SizeScoreCap caps the matched size score
	SizeScoreCap = 0.8

	// SizeMissPenalty scales unmatched size similarity
	SizeMissPenalty = 0.5
)

// Primary recognizer constants
const (
	// DefaultRecognizerTimeout bounds one invocation of the external comparison process
	DefaultRecognizerTimeout = 30 * time.Second

	// RecognizerMatchDistance is the distance below which the process output counts as a match
	// when the process omits the match flag
	RecognizerMatchDistance = 0.8

	// DefaultPythonExecutable is used when PYTHON_EXECUTABLE is not set
	DefaultPythonExecutable = "python3"
)

// Capture constants
const (
	// MaxCaptureBytes is the maximum decoded size of a captured image (5 MB)
	MaxCaptureBytes = 5 * 1024 * 1024
)

// Gateway constants
const (
	// DefaultGatewayTimeout bounds requests to the fingerprint device
	DefaultGatewayTimeout = 30 * time.Second

	// DisplayTimeout bounds the fire-and-forget display request
	DisplayTimeout = 5 * time.Second
)

// Recognition log constants
const (
	// LogWriteTimeout bounds one audit row write. It is not tied to the request
	// deadline, so rows of interrupted requests are still written.
	LogWriteTimeout = 5 * time.Second
)

// HTTP server constants
const (
	// DefaultRequestTimeout bounds reporting and device requests
	DefaultRequestTimeout = 30 * time.Second

	// DefaultIdentifyTimeout bounds one identification request, which may run
	// every tier for every candidate sample
	DefaultIdentifyTimeout = 5 * time.Minute
)
