// Package engine runs identification requests end to end: capture, candidate
// enumeration, matching, the recognition audit trail, attendance and the
// device display.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/attendance-engine/internal/attendance"
	"github.com/kozaktomas/attendance-engine/internal/capture"
	"github.com/kozaktomas/attendance-engine/internal/constants"
	"github.com/kozaktomas/attendance-engine/internal/database"
	"github.com/kozaktomas/attendance-engine/internal/gateway"
	"github.com/kozaktomas/attendance-engine/internal/logger"
	"github.com/kozaktomas/attendance-engine/internal/matcher"
	"github.com/kozaktomas/attendance-engine/internal/recognition"
	"github.com/kozaktomas/attendance-engine/internal/recognizer"
)

var (
	// ErrUnknownSession is returned when session_id names no session.
	ErrUnknownSession = errors.New("invalid or inactive session")
	// ErrAttendanceWrite wraps a failed attendance write, the only storage
	// failure that fails a request.
	ErrAttendanceWrite = errors.New("attendance write failed")
	// ErrTimedOut is returned when the request context ended before every
	// candidate sample was compared. Nothing is written to attendance.
	ErrTimedOut = errors.New("identification timed out")
)

// Outcome labels an identification for metrics and logs.
type Outcome string

const (
	OutcomeMarked         Outcome = "marked"
	OutcomeMatched        Outcome = "matched" // accepted, attendance not written (dry run)
	OutcomeLowConfidence  Outcome = "low_confidence"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeNoMatch        Outcome = "no_match"
	OutcomeBelowThreshold Outcome = "below_threshold"
	OutcomeNotEnrolled    Outcome = "not_enrolled"
	OutcomeWrongScope     Outcome = "wrong_scope"
	OutcomeGatewayFailed  Outcome = "gateway_unreachable"
	OutcomeTimedOut       Outcome = "timed_out"
	OutcomeError          Outcome = "error"
)

// Caller-facing messages.
const (
	MessageNoMatch        = "No matching face found"
	MessageLowConfidence  = "Low confidence match, confirm manually"
	MessageMatched        = "Match found"
	MessageNotEnrolled    = "Fingerprint not enrolled"
	MessageWrongScope     = "Fingerprint enrolled in a different class"
	MessageGatewayFailed  = "Fingerprint identification failed"
	MessageCheckedIn      = "Check-in recorded"
	MessageCheckedOut     = "Check-out recorded"
	MessageAttendanceFail = "Failed to record attendance"
	MessageTimedOut       = "Identification timed out, please try again"
)

// PersonRef identifies the recognized person in a Result.
type PersonRef struct {
	ID            int64               `json:"id"`
	Kind          database.PersonKind `json:"kind"`
	ReferenceCode string              `json:"reference_code"`
	DisplayName   string              `json:"display_name"`
}

// Result is the caller-facing outcome of one identification request.
type Result struct {
	RequestID         string            `json:"request_id"`
	Recognized        bool              `json:"recognized"`
	PersonRef         *PersonRef        `json:"person_ref,omitempty"`
	ConfidencePercent *float64          `json:"confidence_percent,omitempty"`
	ConfidenceLevel   string            `json:"confidence_level,omitempty"`
	AutoMark          *bool             `json:"auto_mark,omitempty"`
	Method            string            `json:"method,omitempty"`
	Action            attendance.Action `json:"action"`
	Reason            string            `json:"reason,omitempty"`
	Message           string            `json:"message"`

	Outcome Outcome `json:"-"`
}

// Options apply to both modalities.
type Options struct {
	Mode      attendance.Mode
	Scope     database.Scope
	SessionID *int64
	DryRun    bool // identify without writing attendance
}

// Gateway is the part of the device client the engine uses.
type Gateway interface {
	Identify(ctx context.Context) (*gateway.Identification, error)
	DisplayAsync(message string, timeout time.Duration)
}

// Observer receives per-request counters. It may be nil.
type Observer interface {
	ObserveIdentification(outcome string)
	ObserveTransition(action string)
	ObserveDuplicate(reason string)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Decoder    *capture.Decoder
	Candidates database.CandidateReader
	Sessions   database.SessionReader // nil disables session_id
	Attendance database.AttendanceStore
	LogReader  database.RecognitionLogReader
	Aggregator *matcher.Aggregator
	Recorder   *recognition.Logger
	Machine    *attendance.Machine
	Gateway    Gateway // nil disables the fingerprint path and the display
	Observer   Observer
	Now        func() time.Time
}

type Service struct {
	decoder    *capture.Decoder
	candidates database.CandidateReader
	sessions   database.SessionReader
	store      database.AttendanceStore
	logs       database.RecognitionLogReader
	aggregator *matcher.Aggregator
	recorder   *recognition.Logger
	machine    *attendance.Machine
	gateway    Gateway
	observer   Observer
	now        func() time.Time
	log        logger.Logger
}

func NewService(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		decoder:    d.Decoder,
		candidates: d.Candidates,
		sessions:   d.Sessions,
		store:      d.Attendance,
		logs:       d.LogReader,
		aggregator: d.Aggregator,
		recorder:   d.Recorder,
		machine:    d.Machine,
		gateway:    d.Gateway,
		observer:   d.Observer,
		now:        now,
		log:        logger.Named("engine"),
	}
}

// IdentifyFace decodes a data URI capture and identifies it. Capture errors
// are returned as-is; the request is still logged.
func (s *Service) IdentifyFace(ctx context.Context, image string, opts Options) (Result, error) {
	requestID := uuid.NewString()
	sample, err := s.decoder.DecodeDataURI(image)
	if err != nil {
		s.recorder.RecordNone(ctx, requestID, recognizer.Sample{Ref: "capture:" + requestID}, "capture rejected: "+err.Error())
		return Result{RequestID: requestID, Action: attendance.ActionNone, Message: err.Error(), Outcome: OutcomeError}, err
	}
	defer s.closeSample(ctx, sample)

	return s.identify(ctx, requestID, sample, opts)
}

// IdentifyCapture identifies a sample that is already on disk. The caller
// keeps ownership of sample.
func (s *Service) IdentifyCapture(ctx context.Context, sample *capture.Sample, opts Options) (Result, error) {
	return s.identify(ctx, uuid.NewString(), sample, opts)
}

func (s *Service) identify(ctx context.Context, requestID string, sample *capture.Sample, opts Options) (Result, error) {
	rs := sample.Recognizer()
	res := Result{RequestID: requestID, Action: attendance.ActionNone}

	scope, err := s.resolveScope(ctx, opts)
	if err != nil {
		s.recorder.RecordNone(ctx, requestID, rs, err.Error())
		return s.finish(res, OutcomeError, err.Error()), err
	}

	candidates, err := s.candidates.ListCandidates(ctx, scope)
	if err != nil {
		s.recorder.RecordNone(ctx, requestID, rs, "candidate enumeration failed")
		return s.finish(res, OutcomeError, err.Error()), fmt.Errorf("list candidates: %w", err)
	}

	d, err := s.aggregator.Identify(ctx, requestID, rs, candidates)
	switch {
	case errors.Is(err, matcher.ErrNoCandidate):
		return s.finish(res, OutcomeNoMatch, MessageNoMatch), nil
	case errors.Is(err, matcher.ErrBelowThreshold):
		s.log.Debug(ctx, "best match below threshold",
			logger.String("request_id", requestID),
			logger.Float64("score", d.Result.Score),
			logger.String("method", string(d.Result.Method)),
		)
		return s.finish(res, OutcomeBelowThreshold, MessageNoMatch), nil
	case errors.Is(err, matcher.ErrInterrupted):
		s.log.Warn(ctx, "identification interrupted",
			logger.String("request_id", requestID),
			logger.Int("comparisons", d.Comparisons),
			logger.Error(err),
		)
		return s.finish(res, OutcomeTimedOut, MessageTimedOut), fmt.Errorf("%w: %w", ErrTimedOut, err)
	case err != nil:
		return s.finish(res, OutcomeError, err.Error()), err
	}

	return s.settle(ctx, res, d, opts)
}

// ScanFingerprint asks the sensor for a finger and resolves its id.
func (s *Service) ScanFingerprint(ctx context.Context, opts Options) (Result, error) {
	requestID := uuid.NewString()
	res := Result{RequestID: requestID, Action: attendance.ActionNone}
	scan := recognizer.Sample{Ref: "fingerprint:" + requestID}

	if s.gateway == nil {
		s.recorder.RecordNone(ctx, requestID, scan, "gateway not configured")
		return s.finish(res, OutcomeGatewayFailed, MessageGatewayFailed), nil
	}

	ident, err := s.gateway.Identify(ctx)
	switch {
	case errors.Is(err, gateway.ErrNotEnrolled):
		s.recorder.RecordNone(ctx, requestID, scan, "sensor found no enrolled finger")
		return s.finish(res, OutcomeNotEnrolled, MessageNotEnrolled), nil
	case err != nil:
		s.recorder.RecordNone(ctx, requestID, scan, err.Error())
		return s.finish(res, OutcomeGatewayFailed, MessageGatewayFailed), nil
	}
	scan.Ref = fmt.Sprintf("fingerprint:%d", ident.FingerprintID)

	scope, err := s.resolveScope(ctx, opts)
	if err != nil {
		s.recorder.RecordNone(ctx, requestID, scan, err.Error())
		return s.finish(res, OutcomeError, err.Error()), err
	}

	d, err := s.aggregator.ResolveFingerprint(ctx, s.candidates, ident.FingerprintID, scope)
	switch {
	case errors.Is(err, matcher.ErrNoCandidate):
		s.recorder.RecordNone(ctx, requestID, scan, err.Error())
		return s.finish(res, OutcomeNotEnrolled, MessageNotEnrolled), nil
	case errors.Is(err, matcher.ErrWrongScope):
		s.recorder.Record(ctx, recognition.Entry{
			RequestID: requestID,
			Sample:    scan,
			Candidate: d.Candidate,
			Method:    recognizer.MethodSensorIdentify,
			Err:       err,
		})
		res.Reason = string(OutcomeWrongScope)
		return s.finish(res, OutcomeWrongScope, MessageWrongScope), nil
	case err != nil:
		s.recorder.RecordNone(ctx, requestID, scan, "fingerprint lookup failed")
		return s.finish(res, OutcomeError, err.Error()), err
	}

	result := d.Result
	s.recorder.Record(ctx, recognition.Entry{
		RequestID: requestID,
		Sample:    scan,
		Candidate: d.Candidate,
		Method:    recognizer.MethodSensorIdentify,
		Result:    &result,
	})
	return s.settle(ctx, res, d, opts)
}

// settle turns an accepted decision into the caller-facing result, writing
// attendance when the decision allows it.
func (s *Service) settle(ctx context.Context, res Result, d matcher.Decision, opts Options) (Result, error) {
	c := d.Candidate
	confidence := d.ConfidencePercent
	autoMark := d.AutoMark
	res.Recognized = true
	res.PersonRef = &PersonRef{ID: c.PersonID, Kind: c.Kind, ReferenceCode: c.ReferenceCode, DisplayName: c.DisplayName}
	res.ConfidencePercent = &confidence
	res.ConfidenceLevel = string(d.Result.Confidence)
	res.AutoMark = &autoMark
	res.Method = string(d.Result.Method)

	if !d.AutoMark {
		return s.finish(res, OutcomeLowConfidence, MessageLowConfidence), nil
	}
	if opts.DryRun {
		return s.finish(res, OutcomeMatched, MessageMatched), nil
	}

	tr, err := s.machine.Apply(ctx, attendance.Event{
		Person:        c.Key(),
		ReferenceCode: c.ReferenceCode,
		DisplayName:   c.DisplayName,
		SessionID:     opts.SessionID,
		Method:        string(d.Result.Method),
		Confidence:    confidence,
	}, opts.Mode)

	var dup *attendance.DuplicateError
	switch {
	case errors.As(err, &dup):
		if s.observer != nil {
			s.observer.ObserveDuplicate(string(dup.Reason))
		}
		res.Reason = string(dup.Reason)
		return s.finish(res, OutcomeDuplicate, dup.Reason.Message()), nil
	case err != nil:
		s.log.Error(ctx, "attendance write failed",
			logger.String("request_id", res.RequestID),
			logger.String("reference_code", c.ReferenceCode),
			logger.Error(err),
		)
		return s.finish(res, OutcomeError, MessageAttendanceFail), fmt.Errorf("%w: %w", ErrAttendanceWrite, err)
	}

	res.Action = tr.Action
	if s.observer != nil {
		s.observer.ObserveTransition(string(tr.Action))
	}

	message, display := MessageCheckedIn, "Check-in OK"
	if tr.Action == attendance.ActionCheckOut {
		message, display = MessageCheckedOut, "Check-out OK"
	}
	if s.gateway != nil {
		s.gateway.DisplayAsync(display+" "+c.DisplayName, constants.DisplayTimeout)
	}
	return s.finish(res, OutcomeMarked, message+" for "+c.DisplayName), nil
}

func (s *Service) finish(res Result, outcome Outcome, message string) Result {
	res.Outcome = outcome
	res.Message = message
	if s.observer != nil {
		s.observer.ObserveIdentification(string(outcome))
	}
	return res
}

// resolveScope returns the session's scope when a session is given,
// otherwise the requested one.
func (s *Service) resolveScope(ctx context.Context, opts Options) (database.Scope, error) {
	if opts.SessionID == nil {
		return opts.Scope, nil
	}
	if s.sessions == nil {
		return database.Scope{}, fmt.Errorf("%w: %d", ErrUnknownSession, *opts.SessionID)
	}
	session, err := s.sessions.GetSession(ctx, *opts.SessionID)
	if err != nil {
		return database.Scope{}, fmt.Errorf("load session %d: %w", *opts.SessionID, err)
	}
	if session == nil {
		return database.Scope{}, fmt.Errorf("%w: %d", ErrUnknownSession, *opts.SessionID)
	}
	return session.Scope(), nil
}

func (s *Service) closeSample(ctx context.Context, sample *capture.Sample) {
	if err := sample.Close(); err != nil {
		s.log.Warn(ctx, "failed to remove capture", logger.String("path", sample.Path), logger.Error(err))
	}
}

// RecentActivity returns today's attendance, newest event first.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]database.ActivityEntry, error) {
	limit = ClampLimit(limit, constants.DefaultActivityLimit, constants.MaxActivityLimit)
	return s.store.RecentActivity(ctx, database.DayOf(s.now()), limit)
}

// RecentRecognitions returns the newest recognition log rows.
func (s *Service) RecentRecognitions(ctx context.Context, limit int) ([]database.RecognitionLogEntry, error) {
	limit = ClampLimit(limit, constants.DefaultLogLimit, constants.MaxActivityLimit)
	return s.logs.RecentRecognitions(ctx, limit)
}

// ClampLimit returns def for non-positive limits and caps the rest at maxLimit.
func ClampLimit(limit, def, maxLimit int) int {
	switch {
	case limit <= 0:
		return def
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}
