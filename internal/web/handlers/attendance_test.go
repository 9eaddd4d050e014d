package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/attendance"
	"github.com/kozaktomas/attendance-engine/internal/capture"
	"github.com/kozaktomas/attendance-engine/internal/database"
	"github.com/kozaktomas/attendance-engine/internal/engine"
)

// stubService records the options it was called with and returns canned values
type stubService struct {
	result   engine.Result
	err      error
	lastOpts engine.Options
	image    string
	activity []database.ActivityEntry
	logs     []database.RecognitionLogEntry
	limit    int
}

func (s *stubService) IdentifyFace(ctx context.Context, image string, opts engine.Options) (engine.Result, error) {
	s.image = image
	s.lastOpts = opts
	return s.result, s.err
}

func (s *stubService) ScanFingerprint(ctx context.Context, opts engine.Options) (engine.Result, error) {
	s.lastOpts = opts
	return s.result, s.err
}

func (s *stubService) RecentActivity(ctx context.Context, limit int) ([]database.ActivityEntry, error) {
	s.limit = limit
	return s.activity, s.err
}

func (s *stubService) RecentRecognitions(ctx context.Context, limit int) ([]database.RecognitionLogEntry, error) {
	s.limit = limit
	return s.logs, s.err
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestIdentifyFace_PassesOptions(t *testing.T) {
	svc := &stubService{result: engine.Result{Recognized: true, Action: attendance.ActionCheckIn, Message: "Check-in recorded for Alice"}}
	handler := NewAttendanceHandler(svc)

	body := `{"image":"data:image/png;base64,AAAA","mode":"checkout","scope":{"option_id":3,"year_level":"Y2"},"session_id":9}`
	recorder := httptest.NewRecorder()
	handler.IdentifyFace(recorder, postJSON("/api/v1/attendance/face", body))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	if svc.image != "data:image/png;base64,AAAA" {
		t.Errorf("unexpected image %q", svc.image)
	}
	if svc.lastOpts.Mode != attendance.ModeCheckOut {
		t.Errorf("expected mode checkout, got %q", svc.lastOpts.Mode)
	}
	if svc.lastOpts.Scope != (database.Scope{OptionID: 3, YearLevel: "Y2"}) {
		t.Errorf("unexpected scope %+v", svc.lastOpts.Scope)
	}
	if svc.lastOpts.SessionID == nil || *svc.lastOpts.SessionID != 9 {
		t.Errorf("expected session 9, got %v", svc.lastOpts.SessionID)
	}

	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result["recognized"] != true || result["action"] != "check_in" {
		t.Errorf("unexpected body %v", result)
	}
}

func TestIdentifyFace_DefaultModeIsAuto(t *testing.T) {
	svc := &stubService{}
	handler := NewAttendanceHandler(svc)

	recorder := httptest.NewRecorder()
	handler.IdentifyFace(recorder, postJSON("/api/v1/attendance/face", `{"image":"AAAA"}`))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if svc.lastOpts.Mode != attendance.ModeAuto {
		t.Errorf("expected auto mode, got %q", svc.lastOpts.Mode)
	}
}

func TestIdentifyFace_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"malformed json", `{"image":`, errInvalidRequestBody},
		{"missing image", `{"mode":"auto"}`, "image: required"},
		{"unknown mode", `{"image":"AAAA","mode":"toggle"}`, "mode: oneof=auto checkin checkout"},
		{"negative option", `{"image":"AAAA","scope":{"option_id":-1}}`, "option_id: gte=0"},
		{"zero session", `{"image":"AAAA","session_id":0}`, "session_id: gt=0"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewAttendanceHandler(&stubService{})
			recorder := httptest.NewRecorder()
			handler.IdentifyFace(recorder, postJSON("/api/v1/attendance/face", tc.body))

			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
			}
			var result map[string]string
			if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if !strings.Contains(result["error"], tc.wantErr) {
				t.Errorf("expected error containing %q, got %q", tc.wantErr, result["error"])
			}
		})
	}
}

func TestIdentifyFace_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		result engine.Result
		status int
		msg    string
	}{
		{"too large", fmt.Errorf("%w: 5242880 bytes allowed", capture.ErrTooLarge), engine.Result{}, http.StatusBadRequest, "capture exceeds size limit: 5242880 bytes allowed"},
		{"invalid image", capture.ErrInvalidImage, engine.Result{}, http.StatusBadRequest, "invalid image data"},
		{"unknown session", fmt.Errorf("%w: 4", engine.ErrUnknownSession), engine.Result{}, http.StatusBadRequest, "invalid or inactive session: 4"},
		{"attendance write", fmt.Errorf("%w: disk full", engine.ErrAttendanceWrite), engine.Result{Message: engine.MessageAttendanceFail}, http.StatusInternalServerError, engine.MessageAttendanceFail},
		{"timed out", fmt.Errorf("%w: context deadline exceeded", engine.ErrTimedOut), engine.Result{Message: engine.MessageTimedOut}, http.StatusGatewayTimeout, engine.MessageTimedOut},
		{"other", errors.New("connection reset"), engine.Result{}, http.StatusInternalServerError, "identification failed"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewAttendanceHandler(&stubService{err: tc.err, result: tc.result})
			recorder := httptest.NewRecorder()
			handler.IdentifyFace(recorder, postJSON("/api/v1/attendance/face", `{"image":"AAAA"}`))

			if recorder.Code != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, recorder.Code)
			}
			var result map[string]string
			if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if result["error"] != tc.msg {
				t.Errorf("expected error %q, got %q", tc.msg, result["error"])
			}
		})
	}
}

func TestIdentifyFace_NoMatchIsOK(t *testing.T) {
	svc := &stubService{result: engine.Result{Recognized: false, Action: attendance.ActionNone, Message: engine.MessageNoMatch}}
	handler := NewAttendanceHandler(svc)

	recorder := httptest.NewRecorder()
	handler.IdentifyFace(recorder, postJSON("/api/v1/attendance/face", `{"image":"AAAA"}`))

	if recorder.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if strings.Contains(recorder.Body.String(), "person_ref") {
		t.Errorf("no match must omit person_ref: %s", recorder.Body.String())
	}
}

func TestScanFingerprint_EmptyBody(t *testing.T) {
	svc := &stubService{result: engine.Result{Action: attendance.ActionNone, Message: engine.MessageGatewayFailed}}
	handler := NewAttendanceHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance/fingerprint", nil)
	recorder := httptest.NewRecorder()
	handler.ScanFingerprint(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if svc.lastOpts.Mode != attendance.ModeAuto {
		t.Errorf("expected auto mode, got %q", svc.lastOpts.Mode)
	}
}

func TestScanFingerprint_WithScope(t *testing.T) {
	svc := &stubService{}
	handler := NewAttendanceHandler(svc)

	recorder := httptest.NewRecorder()
	handler.ScanFingerprint(recorder, postJSON("/api/v1/attendance/fingerprint", `{"mode":"checkin","scope":{"option_id":2}}`))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if svc.lastOpts.Mode != attendance.ModeCheckIn || svc.lastOpts.Scope.OptionID != 2 {
		t.Errorf("unexpected options %+v", svc.lastOpts)
	}
}

func TestRecent_ShapesActivity(t *testing.T) {
	checkIn := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	checkOut := checkIn.Add(3 * time.Hour)
	svc := &stubService{activity: []database.ActivityEntry{
		{
			Record: database.AttendanceRecord{
				ID: 1, Person: database.PersonKey{Kind: database.KindRegular, PersonID: 7}, Day: "2026-03-09",
				CheckIn: checkIn, CheckOut: &checkOut, Status: "present", Method: "pixel_fallback", Confidence: 88.5,
			},
			ReferenceCode: "REG007",
			DisplayName:   "Grace",
		},
	}}
	handler := NewAttendanceHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/recent?limit=5", nil)
	recorder := httptest.NewRecorder()
	handler.Recent(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if svc.limit != 5 {
		t.Errorf("expected limit 5, got %d", svc.limit)
	}

	var result []ActivityResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 row, got %d", len(result))
	}
	if result[0].ReferenceCode != "REG007" || result[0].LastAction != "check_out" || result[0].PersonKind != "regular" {
		t.Errorf("unexpected row %+v", result[0])
	}
}

func TestRecent_EmptyIsArray(t *testing.T) {
	handler := NewAttendanceHandler(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/recent", nil)
	recorder := httptest.NewRecorder()
	handler.Recent(recorder, req)

	if recorder.Body.String() != "[]\n" {
		t.Errorf("expected empty array, got %q", recorder.Body.String())
	}
}

func TestLogs_ShapesEntries(t *testing.T) {
	sim := 0.42
	svc := &stubService{logs: []database.RecognitionLogEntry{
		{ID: 3, RequestID: "req-1", SampleRef: "capture:abc", Method: "pixel_fallback", Score: 0.63, Distance: 0.37, PixelSimilarity: &sim, Confidence: "medium"},
	}}
	handler := NewAttendanceHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/recognition/logs?limit=abc", nil)
	recorder := httptest.NewRecorder()
	handler.Logs(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if svc.limit != 0 {
		t.Errorf("invalid limit should pass 0, got %d", svc.limit)
	}

	var result []map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result[0]["pixel_similarity"] != 0.42 {
		t.Errorf("expected pixel_similarity 0.42, got %v", result[0]["pixel_similarity"])
	}
	if _, ok := result[0]["size_similarity"]; ok {
		t.Errorf("expected size_similarity to be omitted")
	}
}

func TestLogs_StorageError(t *testing.T) {
	handler := NewAttendanceHandler(&stubService{err: errors.New("db down")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/recognition/logs", nil)
	recorder := httptest.NewRecorder()
	handler.Logs(recorder, req)

	if recorder.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, recorder.Code)
	}
}
