package database

import (
	"errors"
	"testing"
	"time"
)

func TestScope_Contains(t *testing.T) {
	tmpl := &EnrolledTemplate{OptionID: 3, YearLevel: "2"}

	tests := []struct {
		name  string
		scope Scope
		want  bool
	}{
		{"zero scope", Scope{}, true},
		{"same option", Scope{OptionID: 3}, true},
		{"other option", Scope{OptionID: 4}, false},
		{"same option and year", Scope{OptionID: 3, YearLevel: "2"}, true},
		{"other year", Scope{OptionID: 3, YearLevel: "1"}, false},
		{"year only", Scope{YearLevel: "2"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.scope.Contains(tmpl); got != tc.want {
				t.Errorf("Contains() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestScope_ContainsTestEnrollments(t *testing.T) {
	tmpl := &EnrolledTemplate{Kind: KindTest}

	for _, scope := range []Scope{{}, {OptionID: 4}, {OptionID: 4, YearLevel: "1"}, {YearLevel: "3"}} {
		if !scope.Contains(tmpl) {
			t.Errorf("scope %+v should hold test enrollments", scope)
		}
	}
}

func TestAttendanceRecord_LastEventAt(t *testing.T) {
	in := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	out := in.Add(7 * time.Hour)

	open := AttendanceRecord{CheckIn: in}
	if !open.IsOpen() || !open.LastEventAt().Equal(in) {
		t.Errorf("open record: IsOpen=%v LastEventAt=%v", open.IsOpen(), open.LastEventAt())
	}

	closed := AttendanceRecord{CheckIn: in, CheckOut: &out}
	if closed.IsOpen() || !closed.LastEventAt().Equal(out) {
		t.Errorf("closed record: IsOpen=%v LastEventAt=%v", closed.IsOpen(), closed.LastEventAt())
	}
}

func TestDayOf(t *testing.T) {
	loc := time.FixedZone("CAT", 2*60*60)
	ts := time.Date(2026, 3, 2, 23, 30, 0, 0, loc)
	if got := DayOf(ts); got != "2026-03-02" {
		t.Errorf("DayOf = %s, want 2026-03-02", got)
	}
}

func TestBackend_CloseRunsInReverse(t *testing.T) {
	var order []string
	b := &Backend{Name: "test"}
	b.OnClose(func() error { order = append(order, "pool"); return nil })
	b.OnClose(func() error { order = append(order, "worker"); return errors.New("boom") })

	err := b.Close()
	if err == nil {
		t.Error("expected joined error")
	}
	if len(order) != 2 || order[0] != "worker" || order[1] != "pool" {
		t.Errorf("close order = %v", order)
	}
}
