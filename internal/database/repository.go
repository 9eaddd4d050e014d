package database

import (
	"context"
	"time"
)

// CandidateReader provides read-only access to enrolled templates
type CandidateReader interface {
	// ListCandidates returns active enrollments in scope, regular before test,
	// then by person id, each with its samples in enrollment order
	ListCandidates(ctx context.Context, scope Scope) ([]EnrolledTemplate, error)
	// FindByFingerprint returns the enrollment holding the sensor id regardless of scope,
	// or nil if none does
	FindByFingerprint(ctx context.Context, fingerprintID int) (*EnrolledTemplate, error)
}

// FingerprintAssigner links a sensor-assigned id to a person
type FingerprintAssigner interface {
	// AssignFingerprint stores the sensor id on the person and marks them enrolled
	AssignFingerprint(ctx context.Context, person PersonKey, fingerprintID int) error
}

// SessionReader reads externally managed attendance sessions
type SessionReader interface {
	// GetSession returns the session, or nil if it does not exist
	GetSession(ctx context.Context, id int64) (*AttendanceSession, error)
}

// AttendanceStore persists attendance records. CheckIn and CheckOut must be
// atomic with respect to concurrent callers for the same person and day
type AttendanceStore interface {
	// LatestRecord returns the person's record for the day, or nil if none exists
	LatestRecord(ctx context.Context, person PersonKey, day string) (*AttendanceRecord, error)
	// CheckIn inserts a new open record, failing with ErrRecordExists when
	// the person already has one for the day
	CheckIn(ctx context.Context, rec AttendanceRecord) (*AttendanceRecord, error)
	// CheckOut closes the open record for the day, failing with ErrNoOpenRecord
	// when there is none
	CheckOut(ctx context.Context, person PersonKey, day string, at time.Time) (*AttendanceRecord, error)
	// RecentActivity returns the day's records ordered by their last event, newest first
	RecentActivity(ctx context.Context, day string, limit int) ([]ActivityEntry, error)
}

// RecognitionLogWriter appends recognition audit rows
type RecognitionLogWriter interface {
	AppendRecognition(ctx context.Context, entry RecognitionLogEntry) error
}

// RecognitionLogReader reads recognition audit rows
type RecognitionLogReader interface {
	// RecentRecognitions returns the newest rows first
	RecentRecognitions(ctx context.Context, limit int) ([]RecognitionLogEntry, error)
}
