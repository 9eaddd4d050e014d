package recognizer

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestSizeSimilarity(t *testing.T) {
	tests := []struct {
		a, b     int64
		expected float64
	}{
		{1000, 1000, 1.0},
		{1000, 500, 0.5},
		{500, 1000, 0.5},
		{1000, 750, 0.75},
		{0, 0, 0},
	}

	for _, tt := range tests {
		got := SizeSimilarity(tt.a, tt.b)
		if math.Abs(got-tt.expected) > 0.0001 {
			t.Errorf("SizeSimilarity(%d, %d) = %v, want %v", tt.a, tt.b, got, tt.expected)
		}
	}
}

func TestScoreSize(t *testing.T) {
	tests := []struct {
		name       string
		similarity float64
		matched    bool
		score      float64
	}{
		{"identical capped", 1.0, true, 0.8},
		{"matched", 0.7, true, 0.7},
		{"at threshold", 0.5, false, 0.25},
		{"low", 0.2, false, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := scoreSize(tt.similarity)
			if r.Matched != tt.matched {
				t.Errorf("Matched = %v, want %v", r.Matched, tt.matched)
			}
			if math.Abs(r.Score-tt.score) > 0.0001 {
				t.Errorf("Score = %v, want %v", r.Score, tt.score)
			}
		})
	}
}

func TestSizeRecognizer_Compare(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.bin", make([]byte, 1000))
	b := writeFile(t, dir, "b.bin", make([]byte, 750))
	empty := writeFile(t, dir, "empty.bin", nil)

	result, err := NewSizeRecognizer().Compare(context.Background(), sampleAt(t, a), b)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !result.Matched || math.Abs(result.Score-0.75) > 0.0001 {
		t.Errorf("got matched=%v score=%v, want matched=true score=0.75", result.Matched, result.Score)
	}

	if _, err := NewSizeRecognizer().Compare(context.Background(), sampleAt(t, a), empty); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for empty template, got %v", err)
	}
	if _, err := NewSizeRecognizer().Compare(context.Background(), sampleAt(t, a), dir+"/nope"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for missing template, got %v", err)
	}
}

func TestSizeRecognizer_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.bin", make([]byte, 1000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewSizeRecognizer().Compare(ctx, sampleAt(t, a), a); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable after cancel, got %v", err)
	}
}
