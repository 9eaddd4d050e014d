// Package mock provides in-memory implementations of database interfaces for testing.
package mock

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/database"
)

// MockCandidateReader is a mock implementation of database.CandidateReader
type MockCandidateReader struct {
	mu        sync.RWMutex
	templates []database.EnrolledTemplate

	// Error injection
	ListError error
	FindError error

	// ListCalls counts ListCandidates invocations
	ListCalls int
}

// NewMockCandidateReader creates a new mock candidate reader
func NewMockCandidateReader(templates ...database.EnrolledTemplate) *MockCandidateReader {
	return &MockCandidateReader{templates: templates}
}

// AddTemplate adds an enrollment to the mock store
func (m *MockCandidateReader) AddTemplate(t database.EnrolledTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates = append(m.templates, t)
}

// ListCandidates returns templates in scope ordered regular first, then by person id
func (m *MockCandidateReader) ListCandidates(ctx context.Context, scope database.Scope) ([]database.EnrolledTemplate, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++

	var out []database.EnrolledTemplate
	for i := range m.templates {
		if scope.Contains(&m.templates[i]) {
			out = append(out, m.templates[i])
		}
	}
	slices.SortStableFunc(out, func(a, b database.EnrolledTemplate) int {
		if a.Kind != b.Kind {
			if a.Kind == database.KindRegular {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.PersonID, b.PersonID)
	})
	return out, nil
}

// FindByFingerprint returns the template holding the sensor id
func (m *MockCandidateReader) FindByFingerprint(ctx context.Context, fingerprintID int) (*database.EnrolledTemplate, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.templates {
		if fp := m.templates[i].FingerprintID; fp != nil && *fp == fingerprintID {
			t := m.templates[i]
			return &t, nil
		}
	}
	return nil, nil
}

// AssignFingerprint stores the sensor id on the matching template
func (m *MockCandidateReader) AssignFingerprint(ctx context.Context, person database.PersonKey, fingerprintID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.templates {
		if m.templates[i].Key() == person {
			id := fingerprintID
			m.templates[i].FingerprintID = &id
			return nil
		}
	}
	return database.ErrNotFound
}

// MockAttendanceStore is a mock implementation of database.AttendanceStore.
// A single mutex makes CheckIn and CheckOut atomic.
type MockAttendanceStore struct {
	mu      sync.Mutex
	records []database.AttendanceRecord
	nextID  int64
	people  map[database.PersonKey]database.EnrolledTemplate

	// Error injection
	CheckInError  error
	CheckOutError error
	LatestError   error
}

// NewMockAttendanceStore creates a new mock attendance store
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{people: make(map[database.PersonKey]database.EnrolledTemplate)}
}

// AddPerson registers identity data RecentActivity uses for records without their own
func (m *MockAttendanceStore) AddPerson(t database.EnrolledTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people[t.Key()] = t
}

// Records returns a copy of every stored record
func (m *MockAttendanceStore) Records() []database.AttendanceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.records)
}

func (m *MockAttendanceStore) find(person database.PersonKey, day string) int {
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].Person == person && m.records[i].Day == day {
			return i
		}
	}
	return -1
}

// LatestRecord returns the person's record for the day
func (m *MockAttendanceStore) LatestRecord(ctx context.Context, person database.PersonKey, day string) (*database.AttendanceRecord, error) {
	if m.LatestError != nil {
		return nil, m.LatestError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.find(person, day); i >= 0 {
		rec := m.records[i]
		return &rec, nil
	}
	return nil, nil
}

// CheckIn inserts a record unless one exists for the day
func (m *MockAttendanceStore) CheckIn(ctx context.Context, rec database.AttendanceRecord) (*database.AttendanceRecord, error) {
	if m.CheckInError != nil {
		return nil, m.CheckInError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.find(rec.Person, rec.Day) >= 0 {
		return nil, database.ErrRecordExists
	}
	m.nextID++
	rec.ID = m.nextID
	rec.CheckOut = nil
	m.records = append(m.records, rec)
	return &rec, nil
}

// CheckOut closes the open record for the day
func (m *MockAttendanceStore) CheckOut(ctx context.Context, person database.PersonKey, day string, at time.Time) (*database.AttendanceRecord, error) {
	if m.CheckOutError != nil {
		return nil, m.CheckOutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(person, day)
	if i < 0 || !m.records[i].IsOpen() {
		return nil, database.ErrNoOpenRecord
	}
	m.records[i].CheckOut = &at
	rec := m.records[i]
	return &rec, nil
}

// RecentActivity returns the day's records, newest event first
func (m *MockAttendanceStore) RecentActivity(ctx context.Context, day string, limit int) ([]database.ActivityEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []database.ActivityEntry
	for _, rec := range m.records {
		if rec.Day != day {
			continue
		}
		entry := database.ActivityEntry{Record: rec, ReferenceCode: rec.ReferenceCode, DisplayName: rec.DisplayName}
		if p, ok := m.people[rec.Person]; ok && entry.ReferenceCode == "" {
			entry.ReferenceCode, entry.DisplayName = p.ReferenceCode, p.DisplayName
		}
		out = append(out, entry)
	}
	slices.SortStableFunc(out, func(a, b database.ActivityEntry) int {
		return b.Record.LastEventAt().Compare(a.Record.LastEventAt())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MockRecognitionLog is a mock implementation of the recognition log writer and reader
type MockRecognitionLog struct {
	mu      sync.Mutex
	entries []database.RecognitionLogEntry

	// AppendError makes every append fail
	AppendError error
}

// NewMockRecognitionLog creates a new mock recognition log
func NewMockRecognitionLog() *MockRecognitionLog {
	return &MockRecognitionLog{}
}

// AppendRecognition stores an entry
func (m *MockRecognitionLog) AppendRecognition(ctx context.Context, entry database.RecognitionLogEntry) error {
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.entries) + 1)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.entries = append(m.entries, entry)
	return nil
}

// Entries returns a copy of every stored entry in append order
func (m *MockRecognitionLog) Entries() []database.RecognitionLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

// RecentRecognitions returns the newest entries first
func (m *MockRecognitionLog) RecentRecognitions(ctx context.Context, limit int) ([]database.RecognitionLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.entries)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MockSessionReader is a mock implementation of database.SessionReader
type MockSessionReader struct {
	Sessions map[int64]database.AttendanceSession
}

// GetSession returns the session with the given id
func (m *MockSessionReader) GetSession(ctx context.Context, id int64) (*database.AttendanceSession, error) {
	s, ok := m.Sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// NewBackend wires mocks into a database.Backend
func NewBackend(c *MockCandidateReader, a *MockAttendanceStore, l *MockRecognitionLog) *database.Backend {
	return &database.Backend{
		Name:       "mock",
		Candidates: c,
		Sessions:   &MockSessionReader{},
		Attendance: a,
		LogWriter:  l,
		LogReader:  l,
		Assigner:   c,
	}
}
