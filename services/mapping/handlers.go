// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mapping

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/msbridge-ai/msbridge/services/mapping/corpus"
	"github.com/msbridge-ai/msbridge/services/mapping/registry"
	"github.com/msbridge-ai/msbridge/services/mapping/scan"
	"github.com/msbridge-ai/msbridge/services/mapping/translate"
)

// Failure record kinds surfaced at the API boundary.
const (
	kindBadRequest    = "bad_request"
	kindUnscannable   = "unscannable_input"
	kindCorpusError   = "corpus_error"
	kindModelNotFound = "model_not_found"
	kindRegistryOff   = "registry_disabled"
	kindInternal      = "internal_error"
	kindNotReady      = "not_ready"
)

// ErrorResponse is the structured failure record returned on any error.
// Errors never carry a partial rewrite or a truncated result.
type ErrorResponse struct {
	// Kind is a stable machine-readable failure tag.
	Kind string `json:"kind"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Offset is the best-effort byte offset for unscannable input.
	Offset *int `json:"offset,omitempty"`

	// RequestID correlates the failure with server logs.
	RequestID string `json:"request_id,omitempty"`
}

// Handlers exposes the mapping service over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates the handler set for a service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// getOrCreateRequestID returns the inbound X-Request-ID or mints one.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// translateRequest is the POST /translate body.
type translateRequest struct {
	// Source is the Python source text to translate.
	Source string `json:"source" binding:"required"`
}

// reportItem is one call site in a translation response. TargetName and
// Note are null for unresolved sites.
type reportItem struct {
	OriginalName string    `json:"original_name"`
	TargetName   *string   `json:"target_name"`
	Note         *string   `json:"note"`
	Span         scan.Span `json:"span"`
	Line         int       `json:"line"`
}

// translateResponse is the POST /translate success body.
type translateResponse struct {
	RewrittenText string       `json:"rewritten_text"`
	Substituted   []reportItem `json:"substituted"`
	Annotated     []reportItem `json:"annotated"`
	Unresolved    []reportItem `json:"unresolved"`
}

// queryResponse is the GET /ops success body.
type queryResponse struct {
	Query   string          `json:"query"`
	Section string          `json:"section,omitempty"`
	Count   int             `json:"count"`
	Results []*corpus.Entry `json:"results"`
}

// HandleQueryOps resolves a fuzzy API query.
//
// GET /v1/mapping/ops?name=<query>&section=<section>
func (h *Handlers) HandleQueryOps(c *gin.Context) {
	requestID := getOrCreateRequestID(c)

	name := c.Query("name")
	if name == "" {
		h.fail(c, "ops", http.StatusBadRequest, ErrorResponse{
			Kind:      kindBadRequest,
			Message:   "query parameter 'name' is required",
			RequestID: requestID,
		})
		return
	}
	section := c.Query("section")

	results := h.service.QueryOps(c.Request.Context(), name, section)
	if results == nil {
		results = []*corpus.Entry{}
	}

	metricRequests.WithLabelValues("ops", "200").Inc()
	c.JSON(http.StatusOK, queryResponse{
		Query:   name,
		Section: section,
		Count:   len(results),
		Results: results,
	})
}

// HandleTranslate rewrites a PyTorch source buffer.
//
// POST /v1/mapping/translate {"source": "..."}
func (h *Handlers) HandleTranslate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With(slog.String("request_id", requestID))

	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "translate", http.StatusBadRequest, ErrorResponse{
			Kind:      kindBadRequest,
			Message:   "body must be JSON with a non-empty 'source' field",
			RequestID: requestID,
		})
		return
	}

	out, report, err := h.service.Translate(c.Request.Context(), req.Source)
	if err != nil {
		var uerr *scan.UnscannableError
		if errors.As(err, &uerr) {
			logger.Warn("translation rejected unscannable input",
				slog.Int("offset", uerr.Offset))
			offset := uerr.Offset
			h.fail(c, "translate", http.StatusUnprocessableEntity, ErrorResponse{
				Kind:      kindUnscannable,
				Message:   err.Error(),
				Offset:    &offset,
				RequestID: requestID,
			})
			return
		}
		logger.Error("translation failed", slog.Any("error", err))
		h.fail(c, "translate", http.StatusInternalServerError, ErrorResponse{
			Kind:      kindInternal,
			Message:   err.Error(),
			RequestID: requestID,
		})
		return
	}

	metricRequests.WithLabelValues("translate", "200").Inc()
	c.JSON(http.StatusOK, translateResponse{
		RewrittenText: out,
		Substituted:   reportItems(report.Substituted),
		Annotated:     reportItems(report.Annotated),
		Unresolved:    reportItems(report.Unresolved),
	})
}

// reportItems converts engine items to their wire shape.
func reportItems(items []translate.Item) []reportItem {
	out := make([]reportItem, len(items))
	for i, item := range items {
		ri := reportItem{
			OriginalName: item.Site.InvokedName,
			Span:         item.Site.Span,
			Line:         item.Site.Line,
		}
		if item.Entry != nil {
			if item.Entry.TargetAPI != "" {
				target := item.Entry.TargetAPI
				ri.TargetName = &target
			}
			if item.Entry.Note != "" {
				note := item.Entry.Note
				ri.Note = &note
			}
		}
		out[i] = ri
	}
	return out
}

// diagnoseRequest is the POST /diagnose body.
type diagnoseRequest struct {
	// Original is the PyTorch source the translation started from.
	Original string `json:"original" binding:"required"`

	// Translated is the candidate MindSpore translation. May be empty, in
	// which case every hit consistent mapping is reported missing.
	Translated string `json:"translated"`

	// Section optionally narrows checking to one corpus section.
	Section string `json:"section"`
}

// mappingCheckItem is one consistent-mapping check in a diagnose response.
type mappingCheckItem struct {
	SourceAPI       string `json:"source_api"`
	TargetAPI       string `json:"target_api"`
	Section         string `json:"section"`
	Note            string `json:"note,omitempty"`
	SourceCount     int    `json:"source_count"`
	TranslatedCount int    `json:"translated_count"`
}

// diffHitItem is one divergent-API hit in a diagnose response.
type diffHitItem struct {
	SourceAPI string `json:"source_api"`
	TargetAPI string `json:"target_api,omitempty"`
	Section   string `json:"section"`
	Note      string `json:"note"`
	Count     int    `json:"count"`
	ShapeHint string `json:"shape_hint,omitempty"`
}

// diagnoseResponse is the POST /diagnose success body.
type diagnoseResponse struct {
	Applied   []mappingCheckItem `json:"applied_mappings"`
	Missing   []mappingCheckItem `json:"missing_mappings"`
	Extra     []mappingCheckItem `json:"extra_calls"`
	DiffHits  []diffHitItem      `json:"diff_hits"`
	Annotated string             `json:"annotated"`
}

// HandleDiagnose checks a finished translation against the corpus.
//
// POST /v1/mapping/diagnose {"original": "...", "translated": "..."}
func (h *Handlers) HandleDiagnose(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With(slog.String("request_id", requestID))

	var req diagnoseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "diagnose", http.StatusBadRequest, ErrorResponse{
			Kind:      kindBadRequest,
			Message:   "body must be JSON with a non-empty 'original' field",
			RequestID: requestID,
		})
		return
	}

	diag, err := h.service.Diagnose(c.Request.Context(), req.Original, req.Translated, req.Section)
	if err != nil {
		var uerr *scan.UnscannableError
		if errors.As(err, &uerr) {
			logger.Warn("diagnosis rejected unscannable input",
				slog.Int("offset", uerr.Offset))
			offset := uerr.Offset
			h.fail(c, "diagnose", http.StatusUnprocessableEntity, ErrorResponse{
				Kind:      kindUnscannable,
				Message:   err.Error(),
				Offset:    &offset,
				RequestID: requestID,
			})
			return
		}
		logger.Error("diagnosis failed", slog.Any("error", err))
		h.fail(c, "diagnose", http.StatusInternalServerError, ErrorResponse{
			Kind:      kindInternal,
			Message:   err.Error(),
			RequestID: requestID,
		})
		return
	}

	metricRequests.WithLabelValues("diagnose", "200").Inc()
	c.JSON(http.StatusOK, diagnoseResponse{
		Applied:   checkItems(diag.Applied),
		Missing:   checkItems(diag.Missing),
		Extra:     checkItems(diag.Extra),
		DiffHits:  diffHitItems(diag.DiffHits),
		Annotated: diag.Annotated,
	})
}

// checkItems converts mapping checks to their wire shape.
func checkItems(checks []translate.MappingCheck) []mappingCheckItem {
	out := make([]mappingCheckItem, len(checks))
	for i, check := range checks {
		out[i] = mappingCheckItem{
			SourceAPI:       check.Entry.SourceAPI,
			TargetAPI:       check.Entry.TargetAPI,
			Section:         check.Entry.Section,
			Note:            check.Entry.Note,
			SourceCount:     check.SourceCount,
			TranslatedCount: check.TranslatedCount,
		}
	}
	return out
}

// diffHitItems converts diff hits to their wire shape.
func diffHitItems(hits []translate.DiffHit) []diffHitItem {
	out := make([]diffHitItem, len(hits))
	for i, hit := range hits {
		out[i] = diffHitItem{
			SourceAPI: hit.Entry.SourceAPI,
			TargetAPI: hit.Entry.TargetAPI,
			Section:   hit.Entry.Section,
			Note:      hit.Entry.Note,
			Count:     hit.Count,
			ShapeHint: hit.ShapeHint,
		}
	}
	return out
}

// HandleListModels lists registry models with optional filters.
//
// GET /v1/mapping/models?group=&category=&task=&suite=&q=
func (h *Handlers) HandleListModels(c *gin.Context) {
	requestID := getOrCreateRequestID(c)

	reg := h.service.Registry()
	if reg == nil {
		h.fail(c, "models", http.StatusNotFound, ErrorResponse{
			Kind:      kindRegistryOff,
			Message:   "model registry is not enabled",
			RequestID: requestID,
		})
		return
	}

	models := reg.ListModels(registry.Filter{
		Group:    c.Query("group"),
		Category: c.Query("category"),
		Task:     c.Query("task"),
		Suite:    c.Query("suite"),
		Keyword:  c.Query("q"),
	})

	metricRequests.WithLabelValues("models", "200").Inc()
	c.JSON(http.StatusOK, gin.H{
		"version": reg.Version(),
		"count":   len(models),
		"models":  models,
	})
}

// HandleGetModel returns one model's full record.
//
// GET /v1/mapping/models/:id
func (h *Handlers) HandleGetModel(c *gin.Context) {
	requestID := getOrCreateRequestID(c)

	reg := h.service.Registry()
	if reg == nil {
		h.fail(c, "model", http.StatusNotFound, ErrorResponse{
			Kind:      kindRegistryOff,
			Message:   "model registry is not enabled",
			RequestID: requestID,
		})
		return
	}

	model, err := reg.GetModelInfo(c.Param("id"))
	if err != nil {
		h.fail(c, "model", http.StatusNotFound, ErrorResponse{
			Kind:      kindModelNotFound,
			Message:   err.Error(),
			RequestID: requestID,
		})
		return
	}

	metricRequests.WithLabelValues("model", "200").Inc()
	c.JSON(http.StatusOK, model)
}

// HandleRefresh reloads the corpus and registry snapshots.
//
// POST /v1/mapping/refresh
func (h *Handlers) HandleRefresh(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With(slog.String("request_id", requestID))

	if err := h.service.Refresh(c.Request.Context()); err != nil {
		logger.Error("refresh failed", slog.Any("error", err))
		status := http.StatusInternalServerError
		kind := kindInternal
		var cerr *corpus.CorpusError
		if errors.As(err, &cerr) {
			status = http.StatusServiceUnavailable
			kind = kindCorpusError
		}
		h.fail(c, "refresh", status, ErrorResponse{
			Kind:      kind,
			Message:   err.Error(),
			RequestID: requestID,
		})
		return
	}

	stats := h.service.Stats()
	metricRequests.WithLabelValues("refresh", "200").Inc()
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"generation": stats.Generation,
		"entries":    stats.TotalEntries,
		"sections":   stats.SectionCount,
	})
}

// HandleHealth reports liveness with corpus statistics.
//
// GET /v1/mapping/health
func (h *Handlers) HandleHealth(c *gin.Context) {
	stats := h.service.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"entries":    stats.TotalEntries,
		"consistent": stats.Consistent,
		"diff":       stats.Diff,
		"sections":   stats.SectionCount,
		"generation": stats.Generation,
	})
}

// HandleReady reports readiness to serve translations.
//
// GET /v1/mapping/ready
func (h *Handlers) HandleReady(c *gin.Context) {
	if !h.service.Ready() {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Kind:    kindNotReady,
			Message: "no corpus index published",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// fail writes a structured failure record and bumps the request counter.
func (h *Handlers) fail(c *gin.Context, endpoint string, status int, resp ErrorResponse) {
	metricRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	c.JSON(status, resp)
}
