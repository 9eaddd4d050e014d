package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/database"
	"github.com/kozaktomas/attendance-engine/internal/database/mock"
)

var alice = database.PersonKey{Kind: database.KindRegular, PersonID: 1}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMachine() (*Machine, *mock.MockAttendanceStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)}
	store := mock.NewMockAttendanceStore()
	return NewMachine(store, WithClock(clock.Now)), store, clock
}

func event(person database.PersonKey) Event {
	return Event{Person: person, ReferenceCode: "REG-1", DisplayName: "Alice", Method: "pixel_fallback", Confidence: 91.5}
}

func wantDuplicate(t *testing.T, err error, reason Reason) {
	t.Helper()
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected *DuplicateError, got %T", err)
	}
	if dup.Reason != reason {
		t.Errorf("expected reason %s, got %s", reason, dup.Reason)
	}
}

func TestApply_AutoLifecycle(t *testing.T) {
	m, store, clock := newTestMachine()
	ctx := context.Background()

	tr, err := m.Apply(ctx, event(alice), ModeAuto)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if tr.Action != ActionCheckIn {
		t.Errorf("expected check_in, got %s", tr.Action)
	}
	if tr.Record == nil || tr.Record.Day != "2026-03-09" || !tr.Record.IsOpen() {
		t.Fatalf("unexpected record after check in: %+v", tr.Record)
	}
	if tr.Record.Method != "pixel_fallback" || tr.Record.Confidence != 91.5 {
		t.Errorf("method and confidence not stored: %+v", tr.Record)
	}
	if tr.Record.ReferenceCode != "REG-1" || tr.Record.DisplayName != "Alice" {
		t.Errorf("identity not stored: %+v", tr.Record)
	}

	clock.Advance(4 * time.Hour)
	tr, err = m.Apply(ctx, event(alice), ModeAuto)
	if err != nil {
		t.Fatalf("check out: %v", err)
	}
	if tr.Action != ActionCheckOut {
		t.Errorf("expected check_out, got %s", tr.Action)
	}
	if tr.Record.CheckOut == nil || !tr.Record.CheckOut.Equal(clock.Now()) {
		t.Errorf("expected check out at %v, got %v", clock.Now(), tr.Record.CheckOut)
	}

	tr, err = m.Apply(ctx, event(alice), ModeAuto)
	wantDuplicate(t, err, ReasonAlreadyCheckedOut)
	if tr.Action != ActionNone {
		t.Errorf("expected none, got %s", tr.Action)
	}

	if n := len(store.Records()); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}

func TestApply_NextDayStartsOver(t *testing.T) {
	m, store, clock := newTestMachine()
	ctx := context.Background()

	for range 2 {
		if _, err := m.Apply(ctx, event(alice), ModeAuto); err != nil {
			t.Fatal(err)
		}
	}
	clock.Advance(24 * time.Hour)

	tr, err := m.Apply(ctx, event(alice), ModeAuto)
	if err != nil {
		t.Fatalf("next day: %v", err)
	}
	if tr.Action != ActionCheckIn || tr.Record.Day != "2026-03-10" {
		t.Errorf("expected check in on 2026-03-10, got %s on %s", tr.Action, tr.Record.Day)
	}
	if n := len(store.Records()); n != 2 {
		t.Errorf("expected 2 records, got %d", n)
	}
}

func TestApply_ExplicitModes(t *testing.T) {
	tests := []struct {
		name   string
		setup  []Mode
		mode   Mode
		action Action
		reason Reason
	}{
		{"checkin from none", nil, ModeCheckIn, ActionCheckIn, ""},
		{"checkin while open", []Mode{ModeCheckIn}, ModeCheckIn, ActionNone, ReasonAlreadyCheckedIn},
		{"checkin when closed", []Mode{ModeCheckIn, ModeCheckOut}, ModeCheckIn, ActionNone, ReasonAlreadyCheckedOut},
		{"checkout from none", nil, ModeCheckOut, ActionNone, ReasonNotCheckedIn},
		{"checkout while open", []Mode{ModeCheckIn}, ModeCheckOut, ActionCheckOut, ""},
		{"checkout when closed", []Mode{ModeCheckIn, ModeCheckOut}, ModeCheckOut, ActionNone, ReasonAlreadyCheckedOut},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, _, _ := newTestMachine()
			ctx := context.Background()
			for _, mode := range tc.setup {
				if _, err := m.Apply(ctx, event(alice), mode); err != nil {
					t.Fatalf("setup %s: %v", mode, err)
				}
			}

			tr, err := m.Apply(ctx, event(alice), tc.mode)
			if tc.reason != "" {
				wantDuplicate(t, err, tc.reason)
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tr.Action != tc.action {
				t.Errorf("expected action %s, got %s", tc.action, tr.Action)
			}
		})
	}
}

func TestApply_PeopleAreIndependent(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()
	testBob := database.PersonKey{Kind: database.KindTest, PersonID: 1}

	if _, err := m.Apply(ctx, event(alice), ModeAuto); err != nil {
		t.Fatal(err)
	}
	tr, err := m.Apply(ctx, event(testBob), ModeAuto)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Action != ActionCheckIn {
		t.Errorf("test person with the same id should check in, got %s", tr.Action)
	}
}

func TestApply_StorageErrors(t *testing.T) {
	boom := errors.New("connection reset")

	t.Run("latest", func(t *testing.T) {
		m, store, _ := newTestMachine()
		store.LatestError = boom
		_, err := m.Apply(context.Background(), event(alice), ModeAuto)
		if !errors.Is(err, boom) || errors.Is(err, ErrDuplicate) {
			t.Errorf("expected wrapped storage error, got %v", err)
		}
	})

	t.Run("check in", func(t *testing.T) {
		m, store, _ := newTestMachine()
		store.CheckInError = boom
		tr, err := m.Apply(context.Background(), event(alice), ModeAuto)
		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped storage error, got %v", err)
		}
		if tr.Action != ActionNone {
			t.Errorf("expected none, got %s", tr.Action)
		}
	})

	t.Run("check out", func(t *testing.T) {
		m, store, _ := newTestMachine()
		if _, err := m.Apply(context.Background(), event(alice), ModeAuto); err != nil {
			t.Fatal(err)
		}
		store.CheckOutError = boom
		_, err := m.Apply(context.Background(), event(alice), ModeAuto)
		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped storage error, got %v", err)
		}
	})
}

func TestApply_RaceLosersAreDuplicates(t *testing.T) {
	ctx := context.Background()
	now := func() time.Time { return time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC) }

	t.Run("check in", func(t *testing.T) {
		store := &racingStore{MockAttendanceStore: mock.NewMockAttendanceStore(), checkInErr: database.ErrRecordExists}
		m := NewMachine(store, WithClock(now))
		_, err := m.Apply(ctx, event(alice), ModeAuto)
		wantDuplicate(t, err, ReasonAlreadyCheckedIn)
	})

	t.Run("check out", func(t *testing.T) {
		store := &racingStore{MockAttendanceStore: mock.NewMockAttendanceStore(), checkOutErr: database.ErrNoOpenRecord}
		m := NewMachine(store, WithClock(now))
		if _, err := m.Apply(ctx, event(alice), ModeCheckIn); err != nil {
			t.Fatal(err)
		}
		_, err := m.Apply(ctx, event(alice), ModeAuto)
		wantDuplicate(t, err, ReasonAlreadyCheckedOut)
	})
}

// racingStore reports the storage-level conflicts a concurrent writer would cause.
type racingStore struct {
	*mock.MockAttendanceStore
	checkInErr  error
	checkOutErr error
}

func (s *racingStore) CheckIn(ctx context.Context, rec database.AttendanceRecord) (*database.AttendanceRecord, error) {
	if s.checkInErr != nil {
		return nil, s.checkInErr
	}
	return s.MockAttendanceStore.CheckIn(ctx, rec)
}

func (s *racingStore) CheckOut(ctx context.Context, person database.PersonKey, day string, at time.Time) (*database.AttendanceRecord, error) {
	if s.checkOutErr != nil {
		return nil, s.checkOutErr
	}
	return s.MockAttendanceStore.CheckOut(ctx, person, day, at)
}

func TestApply_ConcurrentCheckIns(t *testing.T) {
	m, store, _ := newTestMachine()
	ctx := context.Background()

	const workers = 16
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		checkIns   int
		duplicates int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr, err := m.Apply(ctx, event(alice), ModeCheckIn)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && tr.Action == ActionCheckIn:
				checkIns++
			case errors.Is(err, ErrDuplicate):
				duplicates++
			default:
				t.Errorf("unexpected result %s, %v", tr.Action, err)
			}
		}()
	}
	wg.Wait()

	if checkIns != 1 {
		t.Errorf("expected exactly 1 check in, got %d", checkIns)
	}
	if duplicates != workers-1 {
		t.Errorf("expected %d duplicates, got %d", workers-1, duplicates)
	}
	if n := len(store.Records()); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeAuto, false},
		{"auto", ModeAuto, false},
		{"checkin", ModeCheckIn, false},
		{"checkout", ModeCheckOut, false},
		{"toggle", "", true},
	}
	for _, tc := range tests {
		got, err := ParseMode(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseMode(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestReasonMessage(t *testing.T) {
	if got := ReasonAlreadyCheckedOut.Message(); got != "attendance already completed for today" {
		t.Errorf("unexpected message %q", got)
	}
	err := &DuplicateError{Reason: ReasonNotCheckedIn}
	if err.Error() != "duplicate attendance: not_checked_in" {
		t.Errorf("unexpected error text %q", err.Error())
	}
}
