package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSetLevelString(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"INFO", false},
		{"", false},
		{"warning", false},
		{" error ", false},
		{"verbose", true},
	}

	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			err := SetLevelString(tc.level)
			if (err != nil) != tc.wantErr {
				t.Errorf("SetLevelString(%q) error = %v, wantErr %v", tc.level, err, tc.wantErr)
			}
		})
	}
	_ = SetLevelString("info")
}

func TestLogger_WritesFields(t *testing.T) {
	_ = SetLevelString("info")
	var buf bytes.Buffer
	l := New(&buf).Named("recognition").With(String("request_id", "r1"))

	l.Warn(context.Background(), "log write failed", Error(errors.New("disk full")), Int("attempt", 2))

	out := buf.String()
	for _, want := range []string{"log write failed", "request_id=r1", "disk full", "attempt=2", "level=WARN"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestLogger_RespectsLevel(t *testing.T) {
	_ = SetLevelString("error")
	defer SetLevelString("info")

	var buf bytes.Buffer
	l := New(&buf)
	l.Info(context.Background(), "hidden")

	if buf.Len() != 0 {
		t.Errorf("expected no output below level, got %q", buf.String())
	}
}

func TestGet_BeforeInit(t *testing.T) {
	if Get() == nil {
		t.Fatal("Get returned nil")
	}
}
