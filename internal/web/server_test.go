package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/config"
	"github.com/kozaktomas/attendance-engine/internal/database"
	"github.com/kozaktomas/attendance-engine/internal/engine"
	"github.com/kozaktomas/attendance-engine/internal/metrics"
	"github.com/kozaktomas/attendance-engine/internal/ratelimit"
)

type nopService struct{}

func (nopService) IdentifyFace(ctx context.Context, image string, opts engine.Options) (engine.Result, error) {
	return engine.Result{Action: "none", Message: engine.MessageNoMatch}, nil
}

func (nopService) ScanFingerprint(ctx context.Context, opts engine.Options) (engine.Result, error) {
	return engine.Result{Action: "none", Message: engine.MessageGatewayFailed}, nil
}

func (nopService) RecentActivity(ctx context.Context, limit int) ([]database.ActivityEntry, error) {
	return nil, nil
}

func (nopService) RecentRecognitions(ctx context.Context, limit int) ([]database.RecognitionLogEntry, error) {
	return nil, nil
}

func testServer(limiter *ratelimit.Limiter) *Server {
	cfg := config.Defaults()
	return NewServer(cfg, Deps{
		Attendance: nopService{},
		Metrics:    metrics.NewManager(),
		Limiter:    limiter,
	})
}

func TestRoutes(t *testing.T) {
	s := testServer(nil)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{http.MethodPost, "/api/v1/attendance/face", `{"image":"AAAA"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/attendance/fingerprint", "", http.StatusOK},
		{http.MethodGet, "/api/v1/attendance/recent", "", http.StatusOK},
		{http.MethodGet, "/api/v1/recognition/logs", "", http.StatusOK},
		{http.MethodGet, "/api/v1/gateway/status", "", http.StatusServiceUnavailable},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api/v1/attendance/face", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/albums", "", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			var req *http.Request
			if tc.body != "" {
				req = httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			} else {
				req = httptest.NewRequest(tc.method, tc.path, nil)
			}
			recorder := httptest.NewRecorder()
			s.Router().ServeHTTP(recorder, req)

			if recorder.Code != tc.want {
				t.Errorf("expected status %d, got %d", tc.want, recorder.Code)
			}
		})
	}
}

func TestRoutes_RateLimitsIdentification(t *testing.T) {
	s := testServer(ratelimit.New(ratelimit.NewMemoryStore(), 1, time.Minute))

	codes := make([]int, 2)
	for i := range codes {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance/face", strings.NewReader(`{"image":"AAAA"}`))
		req.RemoteAddr = "198.51.100.7:4000"
		recorder := httptest.NewRecorder()
		s.Router().ServeHTTP(recorder, req)
		codes[i] = recorder.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("unexpected status codes %v", codes)
	}

	// reporting endpoints are not limited
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/recent", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		recorder := httptest.NewRecorder()
		s.Router().ServeHTTP(recorder, req)
		if recorder.Code != http.StatusOK {
			t.Errorf("expected reporting to stay available, got %d", recorder.Code)
		}
	}
}

func TestNewServer_Addr(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 9090
	s := NewServer(cfg, Deps{Attendance: nopService{}})

	if s.Addr() != "127.0.0.1:9090" {
		t.Errorf("unexpected addr %q", s.Addr())
	}
}

// deadlineService records the deadline each identification runs under.
type deadlineService struct {
	nopService
	remaining time.Duration
}

func (d *deadlineService) IdentifyFace(ctx context.Context, image string, opts engine.Options) (engine.Result, error) {
	if deadline, ok := ctx.Deadline(); ok {
		d.remaining = time.Until(deadline)
	}
	return engine.Result{Action: "none", Message: engine.MessageNoMatch}, nil
}

func TestRoutes_IdentificationUsesIdentifyTimeout(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.RequestTimeout = 5 * time.Second
	cfg.Server.IdentifyTimeout = 3 * time.Minute
	svc := &deadlineService{}
	s := NewServer(cfg, Deps{Attendance: svc})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance/face", strings.NewReader(`{"image":"AAAA"}`))
	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	if svc.remaining <= cfg.Server.RequestTimeout || svc.remaining > cfg.Server.IdentifyTimeout {
		t.Errorf("identification deadline %v not sized from identify_timeout", svc.remaining)
	}
}
