// Package recognition writes the recognition audit trail. Write failures are
// reported on a diagnostic channel and never reach the caller.
package recognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance-engine/internal/constants"
	"github.com/kozaktomas/attendance-engine/internal/database"
	"github.com/kozaktomas/attendance-engine/internal/logger"
	"github.com/kozaktomas/attendance-engine/internal/recognizer"
)

// FailureObserver counts swallowed write failures. It may be nil.
type FailureObserver interface {
	ObserveLogFailure()
}

// Entry is one comparison attempt to be logged.
type Entry struct {
	RequestID    string
	Sample       recognizer.Sample
	Candidate    *database.EnrolledTemplate // nil when no candidate was involved
	TemplatePath string
	Method       recognizer.Method
	Result       *recognizer.MatchResult // nil when the tier was unavailable
	Err          error
}

// Logger appends Entries to a RecognitionLogWriter.
type Logger struct {
	writer   database.RecognitionLogWriter
	diag     logger.Logger
	observer FailureObserver
}

// NewLogger creates a recognition logger over writer.
func NewLogger(writer database.RecognitionLogWriter, observer FailureObserver) *Logger {
	return &Logger{
		writer:   writer,
		diag:     logger.Named("recognition"),
		observer: observer,
	}
}

// Record writes one row. It never fails, and the write is not canceled with
// ctx: a request that ran out of time still leaves its rows.
func (l *Logger) Record(ctx context.Context, e Entry) {
	row := toRow(e)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.LogWriteTimeout)
	defer cancel()

	if err := l.writer.AppendRecognition(writeCtx, row); err != nil {
		l.diag.Error(ctx, "failed to write recognition log",
			logger.String("request_id", e.RequestID),
			logger.String("sample_ref", row.SampleRef),
			logger.String("method", row.Method),
			logger.Error(err),
		)
		if l.observer != nil {
			l.observer.ObserveLogFailure()
		}
	}
}

// RecordOutcome writes one row per tier that ran for a (candidate, sample) pair.
func (l *Logger) RecordOutcome(ctx context.Context, requestID string, sample recognizer.Sample, candidate *database.EnrolledTemplate, templatePath string, outcome recognizer.Outcome) {
	for _, attempt := range outcome.Attempts {
		l.Record(ctx, Entry{
			RequestID:    requestID,
			Sample:       sample,
			Candidate:    candidate,
			TemplatePath: templatePath,
			Method:       attempt.Method,
			Result:       attempt.Result,
			Err:          attempt.Err,
		})
	}
}

// RecordNone writes the single row of a request that ran no comparison.
func (l *Logger) RecordNone(ctx context.Context, requestID string, sample recognizer.Sample, reason string) {
	l.Record(ctx, Entry{
		RequestID: requestID,
		Sample:    sample,
		Method:    recognizer.MethodNone,
		Err:       errors.New(reason),
	})
}

func toRow(e Entry) database.RecognitionLogEntry {
	row := database.RecognitionLogEntry{
		RequestID:  e.RequestID,
		SampleRef:  e.Sample.Ref,
		SampleSize: e.Sample.Size,
		Method:     string(e.Method),
		Score:      0,
		Distance:   1,
		Confidence: string(recognizer.ConfidenceLow),
	}
	if row.SampleRef == "" {
		row.SampleRef = e.Sample.Path
	}

	if c := e.Candidate; c != nil {
		id := c.PersonID
		row.PersonID = &id
		row.ReferenceCode = c.ReferenceCode
		row.PersonKind = c.Kind
	}

	if r := e.Result; r != nil {
		row.Score = r.Score
		row.Distance = r.Distance
		row.Matched = r.Matched
		row.Confidence = string(r.Confidence)
		if r.Similarity != nil {
			sim := *r.Similarity
			switch e.Method {
			case recognizer.MethodPixel:
				row.PixelSimilarity = &sim
			case recognizer.MethodSize:
				row.SizeSimilarity = &sim
			}
		}
	}

	switch {
	case e.Err != nil && e.TemplatePath != "":
		row.Detail = fmt.Sprintf("template %s: %v", e.TemplatePath, e.Err)
	case e.Err != nil:
		row.Detail = e.Err.Error()
	case e.TemplatePath != "":
		row.Detail = "template " + e.TemplatePath
	}
	return row
}
