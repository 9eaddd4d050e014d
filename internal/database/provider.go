package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Backend bundles the repositories of one storage driver.
type Backend struct {
	Name       string
	Candidates CandidateReader
	Sessions   SessionReader
	Attendance AttendanceStore
	LogWriter  RecognitionLogWriter
	LogReader  RecognitionLogReader
	// Assigner is nil when the candidate source is read-only.
	Assigner FingerprintAssigner

	closers []func() error
}

// OnClose registers fn to run when the backend is closed, in reverse order.
func (b *Backend) OnClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

// Close releases every resource registered with OnClose.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

var (
	backendMu sync.RWMutex
	backend   *Backend
)

// RegisterBackend installs b as the active storage backend.
// This is called by cmd after opening a driver to avoid import cycles.
func RegisterBackend(b *Backend) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backend = b
}

// IsInitialized returns whether a backend has been registered.
func IsInitialized() bool {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return backend != nil
}

func active() (*Backend, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if backend == nil {
		return nil, errors.New("storage backend not initialized: DATABASE_URL or database.sqlite_path is required")
	}
	return backend, nil
}

// GetCandidateReader returns the CandidateReader of the active backend
func GetCandidateReader(ctx context.Context) (CandidateReader, error) {
	b, err := active()
	if err != nil {
		return nil, err
	}
	if b.Candidates == nil {
		return nil, fmt.Errorf("%s candidate reader not registered", b.Name)
	}
	return b.Candidates, nil
}

// GetAttendanceStore returns the AttendanceStore of the active backend
func GetAttendanceStore(ctx context.Context) (AttendanceStore, error) {
	b, err := active()
	if err != nil {
		return nil, err
	}
	if b.Attendance == nil {
		return nil, fmt.Errorf("%s attendance store not registered", b.Name)
	}
	return b.Attendance, nil
}

// GetRecognitionLogReader returns the RecognitionLogReader of the active backend
func GetRecognitionLogReader(ctx context.Context) (RecognitionLogReader, error) {
	b, err := active()
	if err != nil {
		return nil, err
	}
	if b.LogReader == nil {
		return nil, fmt.Errorf("%s recognition log reader not registered", b.Name)
	}
	return b.LogReader, nil
}

// GetFingerprintAssigner returns the FingerprintAssigner of the active backend
func GetFingerprintAssigner(ctx context.Context) (FingerprintAssigner, error) {
	b, err := active()
	if err != nil {
		return nil, err
	}
	if b.Assigner == nil {
		return nil, fmt.Errorf("%s backend cannot assign fingerprints", b.Name)
	}
	return b.Assigner, nil
}
