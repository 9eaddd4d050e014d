package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubGateway struct {
	status map[string]any
	err    error
}

func (g *stubGateway) Status(ctx context.Context) (map[string]any, error) {
	return g.status, g.err
}

func TestGatewayHandler_Status(t *testing.T) {
	tests := []struct {
		name       string
		gateway    GatewayStatusReader
		wantStatus int
		wantOnline bool
	}{
		{"online", &stubGateway{status: map[string]any{"sensor": "ready", "templates": 12.0}}, http.StatusOK, true},
		{"unreachable", &stubGateway{err: errors.New("gateway unreachable: dial tcp")}, http.StatusBadGateway, false},
		{"not configured", nil, http.StatusServiceUnavailable, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewGatewayHandler(tc.gateway)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/gateway/status", nil)
			recorder := httptest.NewRecorder()

			handler.Status(recorder, req)

			if recorder.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d", tc.wantStatus, recorder.Code)
			}
			var result GatewayStatusResponse
			if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if result.Online != tc.wantOnline {
				t.Errorf("expected online %v, got %v", tc.wantOnline, result.Online)
			}
			if tc.wantOnline && result.Status["sensor"] != "ready" {
				t.Errorf("expected device status to be passed through, got %v", result.Status)
			}
		})
	}
}
