package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/seo-audit-service/internal/delivery/http/request"
	"github.com/user/seo-audit-service/internal/delivery/http/response"
	"github.com/user/seo-audit-service/internal/repository"
	"github.com/user/seo-audit-service/internal/usecase"
)

// HealthCheck pings one backing service.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Handler struct {
	audits usecase.AuditManager
	checks []HealthCheck
	logger *zap.Logger
}

func NewHandler(audits usecase.AuditManager, logger *zap.Logger, checks ...HealthCheck) *Handler {
	return &Handler{
		audits: audits,
		checks: checks,
		logger: logger,
	}
}

func (h *Handler) HandleCreateAudit(w http.ResponseWriter, r *http.Request) {
	var req request.CreateAuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		h.writeJSONError(w, "url is required", http.StatusBadRequest)
		return
	}
	if req.PagesLimit < 0 || (req.CrawlDepth != nil && *req.CrawlDepth < 0) {
		h.writeJSONError(w, "pages_limit and crawl_depth must not be negative", http.StatusBadRequest)
		return
	}

	a, err := h.audits.Create(r.Context(), usecase.CreateAuditInput{
		URL:        req.URL,
		OrgID:      req.OrgID,
		PagesLimit: req.PagesLimit,
		CrawlDepth: req.CrawlDepth,
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidSeed) {
			h.writeJSONError(w, "Invalid URL format", http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to create audit", zap.String("url", req.URL), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, response.NewAuditResponse(a))
}

func (h *Handler) HandleGetAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.audits.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.writeJSONError(w, "Audit not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load audit", zap.String("audit_id", id), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewAuditResponse(a))
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := response.HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("check", c.Name), zap.Error(err))
			resp.Checks[c.Name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
