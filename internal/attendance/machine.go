// Package attendance turns accepted identifications into check-in and
// check-out records. Per person and day the states are NONE, OPEN and
// CLOSED, and CLOSED is terminal until the date changes.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/database"
)

// Mode selects how an event is interpreted.
type Mode string

const (
	ModeAuto     Mode = "auto"     // check in when absent, check out when open
	ModeCheckIn  Mode = "checkin"  // only check in
	ModeCheckOut Mode = "checkout" // only check out
)

// ParseMode parses a mode name. The empty string means ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeCheckIn, ModeCheckOut:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown attendance mode %q", s)
}

// Action is what the machine did.
type Action string

const (
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
	ActionNone     Action = "none"
)

// Reason explains a rejected event.
type Reason string

const (
	ReasonAlreadyCheckedIn  Reason = "already_checked_in"
	ReasonNotCheckedIn      Reason = "not_checked_in"
	ReasonAlreadyCheckedOut Reason = "already_checked_out"
)

// ErrDuplicate matches every *DuplicateError.
var ErrDuplicate = errors.New("duplicate attendance")

// DuplicateError rejects an event that would violate the day's state.
type DuplicateError struct {
	Reason Reason
	Record *database.AttendanceRecord // the day's existing record, if known
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate attendance: %s", e.Reason)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// Message is the caller-facing text for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonAlreadyCheckedIn:
		return "already checked in"
	case ReasonNotCheckedIn:
		return "not checked in yet"
	case ReasonAlreadyCheckedOut:
		return "attendance already completed for today"
	}
	return string(r)
}

// Event is an accepted identification of one person.
type Event struct {
	Person        database.PersonKey
	ReferenceCode string
	DisplayName   string
	SessionID     *int64
	Method        string
	Confidence    float64 // percent
}

// Transition is a written state change.
type Transition struct {
	Action Action
	Record *database.AttendanceRecord
}

// Machine applies events to an AttendanceStore.
type Machine struct {
	store database.AttendanceStore
	now   func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces time.Now. The day key is taken in the clock's location.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

func NewMachine(store database.AttendanceStore, opts ...Option) *Machine {
	m := &Machine{store: store, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type state int

const (
	stateNone state = iota
	stateOpen
	stateClosed
)

func stateOf(rec *database.AttendanceRecord) state {
	switch {
	case rec == nil:
		return stateNone
	case rec.IsOpen():
		return stateOpen
	default:
		return stateClosed
	}
}

// Apply writes at most one check-in or check-out for ev. Rejections are
// returned as *DuplicateError; any other error is a storage failure.
func (m *Machine) Apply(ctx context.Context, ev Event, mode Mode) (Transition, error) {
	now := m.now()
	day := database.DayOf(now)

	latest, err := m.store.LatestRecord(ctx, ev.Person, day)
	if err != nil {
		return Transition{Action: ActionNone}, fmt.Errorf("read attendance: %w", err)
	}

	switch st := stateOf(latest); {
	case st == stateClosed:
		return m.reject(ReasonAlreadyCheckedOut, latest)
	case st == stateOpen && mode == ModeCheckIn:
		return m.reject(ReasonAlreadyCheckedIn, latest)
	case st == stateNone && mode == ModeCheckOut:
		return m.reject(ReasonNotCheckedIn, nil)
	case st == stateOpen:
		return m.checkOut(ctx, ev, day, now)
	default:
		return m.checkIn(ctx, ev, day, now)
	}
}

func (m *Machine) checkIn(ctx context.Context, ev Event, day string, now time.Time) (Transition, error) {
	rec, err := m.store.CheckIn(ctx, database.AttendanceRecord{
		Person:        ev.Person,
		ReferenceCode: ev.ReferenceCode,
		DisplayName:   ev.DisplayName,
		Day:           day,
		SessionID:     ev.SessionID,
		CheckIn:       now,
		Status:        database.StatusPresent,
		Method:        ev.Method,
		Confidence:    ev.Confidence,
	})
	if errors.Is(err, database.ErrRecordExists) {
		// a concurrent event created the day's record first
		return m.reject(ReasonAlreadyCheckedIn, nil)
	}
	if err != nil {
		return Transition{Action: ActionNone}, fmt.Errorf("check in: %w", err)
	}
	return Transition{Action: ActionCheckIn, Record: rec}, nil
}

func (m *Machine) checkOut(ctx context.Context, ev Event, day string, now time.Time) (Transition, error) {
	rec, err := m.store.CheckOut(ctx, ev.Person, day, now)
	if errors.Is(err, database.ErrNoOpenRecord) {
		return m.reject(ReasonAlreadyCheckedOut, nil)
	}
	if err != nil {
		return Transition{Action: ActionNone}, fmt.Errorf("check out: %w", err)
	}
	return Transition{Action: ActionCheckOut, Record: rec}, nil
}

func (m *Machine) reject(reason Reason, rec *database.AttendanceRecord) (Transition, error) {
	return Transition{Action: ActionNone, Record: rec}, &DuplicateError{Reason: reason, Record: rec}
}
