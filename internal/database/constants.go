package database

import "errors"

// Storage errors shared by every backend.
var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("not found")

	// ErrRecordExists is returned by CheckIn when the person already has a record for the day
	ErrRecordExists = errors.New("attendance record already exists for day")

	// ErrNoOpenRecord is returned by CheckOut when no open record exists for the day
	ErrNoOpenRecord = errors.New("no open attendance record for day")
)
