package handlers

import (
	"context"
	"net/http"

	"github.com/kozaktomas/attendance-engine/internal/logger"
)

// GatewayStatusReader reads the device status.
type GatewayStatusReader interface {
	Status(ctx context.Context) (map[string]any, error)
}

// GatewayHandler exposes the fingerprint device status
type GatewayHandler struct {
	gateway GatewayStatusReader
	log     logger.Logger
}

// NewGatewayHandler creates a gateway handler. A nil gateway reports the
// device as not configured.
func NewGatewayHandler(gateway GatewayStatusReader) *GatewayHandler {
	return &GatewayHandler{gateway: gateway, log: logger.Named("web")}
}

// GatewayStatusResponse wraps the device's free-form status
type GatewayStatusResponse struct {
	Online bool           `json:"online"`
	Status map[string]any `json:"status,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Status returns the device status. An unreachable device is reported as
// offline with 502.
func (h *GatewayHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		respondJSON(w, http.StatusServiceUnavailable, GatewayStatusResponse{Error: "gateway not configured"})
		return
	}

	status, err := h.gateway.Status(r.Context())
	if err != nil {
		h.log.Warn(r.Context(), "gateway status failed", logger.Error(err))
		respondJSON(w, http.StatusBadGateway, GatewayStatusResponse{Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, GatewayStatusResponse{Online: true, Status: status})
}
