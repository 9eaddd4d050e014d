package database

import (
	"time"
)

// PersonKind distinguishes regular enrollments from test enrollments.
type PersonKind string

const (
	KindRegular PersonKind = "regular"
	KindTest    PersonKind = "test"
)

// Scope narrows candidate enumeration to one class. Zero fields match
// everything, and test enrollments belong to no class so every scope holds them.
type Scope struct {
	OptionID  int64  `json:"option_id,omitempty"`
	YearLevel string `json:"year_level,omitempty"`
}

// IsZero reports whether the scope matches every active person.
func (s Scope) IsZero() bool {
	return s.OptionID == 0 && s.YearLevel == ""
}

// Contains reports whether an enrollment falls inside the scope.
func (s Scope) Contains(t *EnrolledTemplate) bool {
	if t.Kind == KindTest {
		return true
	}
	if s.OptionID != 0 && t.OptionID != s.OptionID {
		return false
	}
	if s.YearLevel != "" && t.YearLevel != s.YearLevel {
		return false
	}
	return true
}

// EnrolledTemplate is one enrolled person and their reference samples.
type EnrolledTemplate struct {
	PersonID      int64
	Kind          PersonKind
	ReferenceCode string // registration number
	DisplayName   string
	OptionID      int64
	YearLevel     string
	Samples       []string // image paths in enrollment order
	FingerprintID *int     // sensor-assigned id, nil when not enrolled on the sensor
}

// PersonKey identifies a person across both enrollment kinds.
type PersonKey struct {
	Kind     PersonKind
	PersonID int64
}

// Key returns the template's PersonKey.
func (t *EnrolledTemplate) Key() PersonKey {
	return PersonKey{Kind: t.Kind, PersonID: t.PersonID}
}

// AttendanceSession is the externally managed session a scan may belong to.
type AttendanceSession struct {
	ID        int64
	Day       string // YYYY-MM-DD
	OptionID  int64
	YearLevel string
}

// Scope returns the class scope of the session.
func (s *AttendanceSession) Scope() Scope {
	return Scope{OptionID: s.OptionID, YearLevel: s.YearLevel}
}

// AttendanceStatus values.
const (
	StatusPresent = "present"
)

// AttendanceRecord is one person's attendance for one day. ReferenceCode
// and DisplayName are copied from the enrollment at check-in, so records
// stay readable when enrollments live in another database.
type AttendanceRecord struct {
	ID            int64
	Person        PersonKey
	ReferenceCode string
	DisplayName   string
	Day           string // YYYY-MM-DD
	SessionID     *int64
	CheckIn       time.Time
	CheckOut      *time.Time
	Status        string
	Method        string
	Confidence    float64 // percent, 0-100
}

// IsOpen reports whether the record is checked in and not yet checked out.
func (r *AttendanceRecord) IsOpen() bool {
	return r.CheckOut == nil
}

// LastEventAt returns check-out time if set, otherwise check-in time.
func (r *AttendanceRecord) LastEventAt() time.Time {
	if r.CheckOut != nil {
		return *r.CheckOut
	}
	return r.CheckIn
}

// ActivityEntry is an attendance record joined with the person's identity.
type ActivityEntry struct {
	Record        AttendanceRecord
	ReferenceCode string
	DisplayName   string
}

// RecognitionLogEntry is one audit row per comparison attempt.
type RecognitionLogEntry struct {
	ID              int64
	RequestID       string
	SampleRef       string
	SampleSize      int64
	PersonID        *int64
	ReferenceCode   string
	PersonKind      PersonKind
	Score           float64
	Confidence      string
	Method          string
	Distance        float64
	Matched         bool
	PixelSimilarity *float64
	SizeSimilarity  *float64
	Detail          string
	CreatedAt       time.Time
}

// DayLayout is the format of Day fields.
const DayLayout = "2006-01-02"

// DayOf returns the day key of t in t's location.
func DayOf(t time.Time) string {
	return t.Format(DayLayout)
}
