package recognizer

import (
	"context"
	"os"

	"github.com/kozaktomas/attendance-engine/internal/constants"
)

// SizeRecognizer compares file sizes only. It is the last tier and decides for
// every pair where both files exist and are non-empty.
type SizeRecognizer struct{}

// NewSizeRecognizer creates the size comparison tier.
func NewSizeRecognizer() *SizeRecognizer {
	return &SizeRecognizer{}
}

func (s *SizeRecognizer) Method() Method { return MethodSize }

func (s *SizeRecognizer) Compare(ctx context.Context, sample Sample, templatePath string) (MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return MatchResult{}, unavailable("%v", err)
	}

	captureSize := sample.Size
	if captureSize <= 0 {
		info, err := os.Stat(sample.Path)
		if err != nil {
			return MatchResult{}, unavailable("capture: %v", err)
		}
		captureSize = info.Size()
	}

	info, err := os.Stat(templatePath)
	if err != nil {
		return MatchResult{}, unavailable("template: %v", err)
	}

	if captureSize <= 0 || info.Size() <= 0 {
		return MatchResult{}, unavailable("empty file")
	}

	return scoreSize(SizeSimilarity(captureSize, info.Size())), nil
}

// SizeSimilarity returns 1 - |a-b| / max(a,b).
func SizeSimilarity(a, b int64) float64 {
	larger := max(a, b)
	if larger <= 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return 1 - float64(diff)/float64(larger)
}

func scoreSize(similarity float64) MatchResult {
	matched := similarity > constants.SizeMatchSimilarity

	score := similarity * constants.SizeMissPenalty
	if matched {
		score = min(constants.SizeScoreCap, similarity)
	}

	result := newResult(MethodSize, matched, score)
	result.Similarity = &similarity
	return result
}
