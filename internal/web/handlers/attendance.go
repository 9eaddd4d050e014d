package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/attendance"
	"github.com/kozaktomas/attendance-engine/internal/capture"
	"github.com/kozaktomas/attendance-engine/internal/database"
	"github.com/kozaktomas/attendance-engine/internal/engine"
	"github.com/kozaktomas/attendance-engine/internal/logger"
)

// AttendanceService is the engine surface the handlers use.
type AttendanceService interface {
	IdentifyFace(ctx context.Context, image string, opts engine.Options) (engine.Result, error)
	ScanFingerprint(ctx context.Context, opts engine.Options) (engine.Result, error)
	RecentActivity(ctx context.Context, limit int) ([]database.ActivityEntry, error)
	RecentRecognitions(ctx context.Context, limit int) ([]database.RecognitionLogEntry, error)
}

// AttendanceHandler handles identification and attendance endpoints
type AttendanceHandler struct {
	service AttendanceService
	log     logger.Logger
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(service AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{
		service: service,
		log:     logger.Named("web"),
	}
}

// ScopeRequest narrows matching to one class
type ScopeRequest struct {
	OptionID  int64  `json:"option_id" validate:"gte=0"`
	YearLevel string `json:"year_level" validate:"max=32"`
}

// FaceRequest is the body of POST /attendance/face
type FaceRequest struct {
	Image     string       `json:"image" validate:"required"`
	Mode      string       `json:"mode" validate:"omitempty,oneof=auto checkin checkout"`
	Scope     ScopeRequest `json:"scope"`
	SessionID *int64       `json:"session_id" validate:"omitempty,gt=0"`
}

// FingerprintRequest is the body of POST /attendance/fingerprint
type FingerprintRequest struct {
	Mode      string       `json:"mode" validate:"omitempty,oneof=auto checkin checkout"`
	Scope     ScopeRequest `json:"scope"`
	SessionID *int64       `json:"session_id" validate:"omitempty,gt=0"`
}

func options(mode string, scope ScopeRequest, sessionID *int64) engine.Options {
	// validation already restricted mode to known values
	m, _ := attendance.ParseMode(mode)
	return engine.Options{
		Mode:      m,
		Scope:     database.Scope{OptionID: scope.OptionID, YearLevel: scope.YearLevel},
		SessionID: sessionID,
	}
}

// IdentifyFace identifies a face capture and marks attendance
func (h *AttendanceHandler) IdentifyFace(w http.ResponseWriter, r *http.Request) {
	var req FaceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.IdentifyFace(r.Context(), req.Image, options(req.Mode, req.Scope, req.SessionID))
	h.respondResult(w, r, result, err)
}

// ScanFingerprint triggers a sensor scan and marks attendance
func (h *AttendanceHandler) ScanFingerprint(w http.ResponseWriter, r *http.Request) {
	var req FingerprintRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	result, err := h.service.ScanFingerprint(r.Context(), options(req.Mode, req.Scope, req.SessionID))
	h.respondResult(w, r, result, err)
}

// respondResult maps engine errors to status codes. Structured outcomes,
// including no match and duplicates, are 200.
func (h *AttendanceHandler) respondResult(w http.ResponseWriter, r *http.Request, result engine.Result, err error) {
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, result)
	case errors.Is(err, capture.ErrTooLarge), errors.Is(err, capture.ErrInvalidImage), errors.Is(err, engine.ErrUnknownSession):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrAttendanceWrite):
		respondError(w, http.StatusInternalServerError, result.Message)
	case errors.Is(err, engine.ErrTimedOut):
		respondError(w, http.StatusGatewayTimeout, result.Message)
	default:
		h.log.Error(r.Context(), "identification failed",
			logger.String("request_id", result.RequestID),
			logger.String("path", sanitizeForLog(r.URL.Path)),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "identification failed")
	}
}

// ActivityResponse is one row of today's attendance
type ActivityResponse struct {
	ID            int64      `json:"id"`
	PersonID      int64      `json:"person_id"`
	PersonKind    string     `json:"person_kind"`
	ReferenceCode string     `json:"reference_code"`
	DisplayName   string     `json:"display_name"`
	Day           string     `json:"day"`
	SessionID     *int64     `json:"session_id,omitempty"`
	CheckIn       time.Time  `json:"check_in"`
	CheckOut      *time.Time `json:"check_out,omitempty"`
	Status        string     `json:"status"`
	Method        string     `json:"method"`
	Confidence    float64    `json:"confidence"`
	LastAction    string     `json:"last_action"`
}

// Recent returns today's attendance activity, newest first
func (h *AttendanceHandler) Recent(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.RecentActivity(r.Context(), parseLimit(r))
	if err != nil {
		h.log.Error(r.Context(), "failed to load recent activity", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load recent activity")
		return
	}

	response := make([]ActivityResponse, 0, len(entries))
	for _, e := range entries {
		rec := e.Record
		last := attendance.ActionCheckIn
		if rec.CheckOut != nil {
			last = attendance.ActionCheckOut
		}
		response = append(response, ActivityResponse{
			ID:            rec.ID,
			PersonID:      rec.Person.PersonID,
			PersonKind:    string(rec.Person.Kind),
			ReferenceCode: e.ReferenceCode,
			DisplayName:   e.DisplayName,
			Day:           rec.Day,
			SessionID:     rec.SessionID,
			CheckIn:       rec.CheckIn,
			CheckOut:      rec.CheckOut,
			Status:        rec.Status,
			Method:        rec.Method,
			Confidence:    rec.Confidence,
			LastAction:    string(last),
		})
	}
	respondJSON(w, http.StatusOK, response)
}

// RecognitionLogResponse is one audit row
type RecognitionLogResponse struct {
	ID              int64     `json:"id"`
	RequestID       string    `json:"request_id"`
	SampleRef       string    `json:"sample_ref"`
	SampleSize      int64     `json:"sample_size"`
	PersonID        *int64    `json:"person_id,omitempty"`
	ReferenceCode   string    `json:"reference_code,omitempty"`
	PersonKind      string    `json:"person_kind,omitempty"`
	Method          string    `json:"method"`
	Matched         bool      `json:"matched"`
	Score           float64   `json:"score"`
	Distance        float64   `json:"distance"`
	Confidence      string    `json:"confidence"`
	PixelSimilarity *float64  `json:"pixel_similarity,omitempty"`
	SizeSimilarity  *float64  `json:"size_similarity,omitempty"`
	Detail          string    `json:"detail,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Logs returns the newest recognition log rows
func (h *AttendanceHandler) Logs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.RecentRecognitions(r.Context(), parseLimit(r))
	if err != nil {
		h.log.Error(r.Context(), "failed to load recognition logs", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load recognition logs")
		return
	}

	response := make([]RecognitionLogResponse, 0, len(entries))
	for _, e := range entries {
		response = append(response, RecognitionLogResponse{
			ID:              e.ID,
			RequestID:       e.RequestID,
			SampleRef:       e.SampleRef,
			SampleSize:      e.SampleSize,
			PersonID:        e.PersonID,
			ReferenceCode:   e.ReferenceCode,
			PersonKind:      string(e.PersonKind),
			Method:          e.Method,
			Matched:         e.Matched,
			Score:           e.Score,
			Distance:        e.Distance,
			Confidence:      e.Confidence,
			PixelSimilarity: e.PixelSimilarity,
			SizeSimilarity:  e.SizeSimilarity,
			Detail:          e.Detail,
			CreatedAt:       e.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, response)
}
