package recognition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/database"
	"github.com/kozaktomas/attendance-engine/internal/database/mock"
	"github.com/kozaktomas/attendance-engine/internal/recognizer"
)

type countingObserver struct{ failures int }

func (c *countingObserver) ObserveLogFailure() { c.failures++ }

var testSample = recognizer.Sample{Ref: "capture:abc", Path: "/tmp/capture_abc.png", Size: 2048}

func TestRecordOutcome_OneRowPerAttempt(t *testing.T) {
	store := mock.NewMockRecognitionLog()
	l := NewLogger(store, nil)

	sim := 0.9
	pixel := recognizer.MatchResult{Matched: true, Score: 0.95, Distance: 0.05, Method: recognizer.MethodPixel, Confidence: recognizer.ConfidenceHigh, Similarity: &sim}
	outcome := recognizer.Outcome{
		Result: &pixel,
		Attempts: []recognizer.Attempt{
			{Method: recognizer.MethodPrimary, Err: fmt.Errorf("%w: no face detected", recognizer.ErrUnavailable)},
			{Method: recognizer.MethodPixel, Result: &pixel},
		},
	}
	candidate := &database.EnrolledTemplate{PersonID: 7, Kind: database.KindTest, ReferenceCode: "T-7"}

	l.RecordOutcome(context.Background(), "req-1", testSample, candidate, "/uploads/t7.jpg", outcome)

	rows := store.Entries()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	primary := rows[0]
	if primary.Method != "primary_recognizer" || primary.Matched || primary.Score != 0 || primary.Distance != 1 {
		t.Errorf("unexpected unavailable row %+v", primary)
	}
	if !strings.Contains(primary.Detail, "no face detected") || !strings.Contains(primary.Detail, "/uploads/t7.jpg") {
		t.Errorf("expected reason and template in detail, got %q", primary.Detail)
	}

	got := rows[1]
	if got.Method != "pixel_fallback" || !got.Matched || got.Score != 0.95 || got.Confidence != "high" {
		t.Errorf("unexpected pixel row %+v", got)
	}
	if got.PixelSimilarity == nil || *got.PixelSimilarity != 0.9 || got.SizeSimilarity != nil {
		t.Errorf("expected pixel similarity only, got %v / %v", got.PixelSimilarity, got.SizeSimilarity)
	}
	for _, row := range rows {
		if row.RequestID != "req-1" || row.SampleRef != "capture:abc" || row.SampleSize != 2048 {
			t.Errorf("sample fields not propagated: %+v", row)
		}
		if row.PersonID == nil || *row.PersonID != 7 || row.PersonKind != database.KindTest || row.ReferenceCode != "T-7" {
			t.Errorf("candidate fields not propagated: %+v", row)
		}
	}
}

func TestRecordNone(t *testing.T) {
	store := mock.NewMockRecognitionLog()
	l := NewLogger(store, nil)

	l.RecordNone(context.Background(), "req-2", testSample, "no candidates in scope")

	rows := store.Entries()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.Method != "none" || row.Matched || row.PersonID != nil {
		t.Errorf("unexpected row %+v", row)
	}
	if row.Detail != "no candidates in scope" {
		t.Errorf("unexpected detail %q", row.Detail)
	}
}

func TestRecord_SwallowsWriteFailure(t *testing.T) {
	store := mock.NewMockRecognitionLog()
	store.AppendError = errors.New("disk full")
	observer := &countingObserver{}
	l := NewLogger(store, observer)

	// must not panic or return anything
	l.Record(context.Background(), Entry{RequestID: "req-3", Sample: testSample, Method: recognizer.MethodSize})
	l.Record(context.Background(), Entry{RequestID: "req-3", Sample: testSample, Method: recognizer.MethodSize})

	if observer.failures != 2 {
		t.Errorf("expected 2 observed failures, got %d", observer.failures)
	}
}

// ctxWriter fails like a database driver does once its context is done.
type ctxWriter struct {
	*mock.MockRecognitionLog
}

func (w ctxWriter) AppendRecognition(ctx context.Context, entry database.RecognitionLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.MockRecognitionLog.AppendRecognition(ctx, entry)
}

func TestRecord_WritesAfterRequestContextEnds(t *testing.T) {
	store := mock.NewMockRecognitionLog()
	observer := &countingObserver{}
	l := NewLogger(ctxWriter{store}, observer)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	l.RecordNone(ctx, "req-4", testSample, "stopped after 3 comparisons: context deadline exceeded")

	if observer.failures != 0 {
		t.Errorf("expected no write failures, got %d", observer.failures)
	}
	if rows := store.Entries(); len(rows) != 1 || rows[0].RequestID != "req-4" {
		t.Errorf("expected the row to be written, got %+v", rows)
	}
}

func TestToRow_SizeSimilarityAndFallbackRef(t *testing.T) {
	sim := 0.6
	result := recognizer.MatchResult{Matched: true, Score: 0.6, Distance: 0.4, Method: recognizer.MethodSize, Confidence: recognizer.ConfidenceLow, Similarity: &sim}

	row := toRow(Entry{
		Sample: recognizer.Sample{Path: "/tmp/x.jpg", Size: 10},
		Method: recognizer.MethodSize,
		Result: &result,
	})

	if row.SampleRef != "/tmp/x.jpg" {
		t.Errorf("expected path as ref, got %q", row.SampleRef)
	}
	if row.SizeSimilarity == nil || *row.SizeSimilarity != 0.6 || row.PixelSimilarity != nil {
		t.Errorf("expected size similarity only, got %v / %v", row.SizeSimilarity, row.PixelSimilarity)
	}
	if row.Detail != "" {
		t.Errorf("expected empty detail, got %q", row.Detail)
	}
}
