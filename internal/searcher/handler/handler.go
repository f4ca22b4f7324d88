// Package handler exposes the resolve service over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/searcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/proto"
)

type Handler struct {
	service      *searcher.Service
	maxBodyBytes int64
	logger       *slog.Logger
}

func New(service *searcher.Service, maxBodyBytes int64) *Handler {
	return &Handler{
		service:      service,
		maxBodyBytes: maxBodyBytes,
		logger:       slog.Default().With("component", "resolve-handler"),
	}
}

// Index handles POST /api/v1/index.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	var req proto.IndexRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.Resolve(r.Context(), searcher.SourceHTTP, &req)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error("resolve failed", "error", err)
			h.writeError(w, status, "resolve failed")
			return
		}
		h.writeError(w, status, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	c := h.service.Cache()
	if c == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := c.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate handles POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	c := h.service.Cache()
	if c == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := c.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
