// Package recognizer implements the biometric comparison tiers and the
// fallback chain that orders them.
package recognizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance-engine/internal/constants"
)

// ErrUnavailable is returned by an Adapter that could not produce a result
// for a pair. The chain treats it as a signal to try the next tier.
var ErrUnavailable = errors.New("recognizer unavailable")

// Method identifies which strategy produced a MatchResult.
type Method string

const (
	MethodPrimary        Method = "primary_recognizer"
	MethodPixel          Method = "pixel_fallback"
	MethodSize           Method = "size_fallback"
	MethodSensorIdentify Method = "sensor_identify"
	// MethodNone marks log rows for requests where no comparison ran.
	MethodNone Method = "none"
)

// Confidence is the coarse bucket derived from a score.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ConfidenceFor maps a score to its confidence bucket.
func ConfidenceFor(score float64) Confidence {
	switch {
	case score > constants.HighConfidenceScore:
		return ConfidenceHigh
	case score > constants.MediumConfidenceScore:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// MatchResult is the normalized outcome of one comparison.
type MatchResult struct {
	Matched    bool       `json:"matched"`
	Score      float64    `json:"score"`
	Distance   float64    `json:"distance"`
	Method     Method     `json:"method"`
	Confidence Confidence `json:"confidence"`

	// Similarity is the raw tier similarity before scoring, when the tier has one.
	Similarity *float64 `json:"similarity,omitempty"`
}

// newResult builds a MatchResult with distance and confidence derived from score.
func newResult(method Method, matched bool, score float64) MatchResult {
	score = clamp01(score)
	return MatchResult{
		Matched:    matched,
		Score:      score,
		Distance:   1 - score,
		Method:     method,
		Confidence: ConfidenceFor(score),
	}
}

// SensorMatch is the result of a sensor-side identification. The sensor
// reports no score, so an exact id match counts as a perfect one.
func SensorMatch() MatchResult {
	return newResult(MethodSensorIdentify, true, 1)
}

// Sample is a captured biometric image on disk.
type Sample struct {
	Ref  string
	Path string
	Size int64
}

// Adapter wraps exactly one comparison strategy.
type Adapter interface {
	// Method names the strategy for logging.
	Method() Method
	// Compare compares the captured sample with one enrolled template file.
	// It returns an error wrapping ErrUnavailable when it cannot decide.
	Compare(ctx context.Context, sample Sample, templatePath string) (MatchResult, error)
}

// unavailable wraps ErrUnavailable with a reason.
func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
