package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/hannes/yaak-guard/pii"
	detectors "github.com/hannes/yaak-guard/pii/detectors"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 1000
)

// DetectRequest is the body accepted by POST /detect
type DetectRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves detection and audit requests for one configured guard
type Handler struct {
	guard        detectors.Guard
	provider     string
	audit        pii.AuditStore
	logValues    bool
	maxBodyBytes int64
}

// NewHandler creates a handler. audit may be nil, in which case results are not recorded and
// the audit endpoint reports 404.
func NewHandler(guard detectors.Guard, provider string, audit pii.AuditStore, logValues bool, maxBodyBytes int64) *Handler {
	return &Handler{
		guard:        guard,
		provider:     provider,
		audit:        audit,
		logValues:    logValues,
		maxBodyBytes: maxBodyBytes,
	}
}

// Detect handles POST /detect
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body must be a JSON object with a \"text\" field"})
		return
	}

	start := time.Now()
	res, err := h.guard.Detect(r.Context(), req.Text)
	elapsed := time.Since(start)
	if err != nil {
		if r.Context().Err() != nil {
			slog.Info("detect request canceled by client", "provider", h.provider)
			return
		}
		slog.Error("guard backend failed", "provider", h.provider, "error", err)
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		} else {
			sentry.CaptureException(err)
		}
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "guard backend failed: " + err.Error()})
		return
	}

	slog.Info("detect request completed",
		"provider", h.provider, "model", res.ModelUsed, "matches", len(res.Matches), "duration", elapsed)
	if h.logValues {
		for _, m := range res.Matches {
			slog.Info("pii detected", "type", m.Type, "value", m.Value, "start", m.Start, "end", m.End, "resolved", m.Resolved)
		}
	}

	if h.audit != nil {
		if err := h.audit.Record(r.Context(), pii.NewAuditEntry(h.provider, res, elapsed)); err != nil {
			// the detection itself succeeded
			slog.Warn("failed to record audit entry", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, res)
}

// Audit handles GET /audit?limit=N
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "audit log is disabled"})
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxAuditLimit)
	}

	entries, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("failed to read audit log", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read audit log"})
		return
	}
	total, err := h.audit.Count(r.Context())
	if err != nil {
		slog.Error("failed to count audit log", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read audit log"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"entries": entries,
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"service":  "Yaak Guard Service",
		"provider": h.provider,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
