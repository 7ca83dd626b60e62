package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/liamcoop/calcengine/calcservice"
	"github.com/liamcoop/calcengine/calculations"
	"github.com/liamcoop/calcengine/calculations/catalog"
	"github.com/liamcoop/calcengine/internal/logger"
)

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "healthy",
		Storage:  "memory",
		Counters: logger.Snapshot(),
	}

	if active, err := s.service.Templates(r.Context(), calculations.TemplateFilter{}); err == nil {
		resp.TemplatesLoaded = len(active)
	}

	if s.db != nil {
		resp.Storage = "postgres"
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := calculations.TemplateFilter{
		TargetProfessions: splitList(q["targetProfessions"]),
		SearchTerm:        q.Get("searchTerm"),
	}
	for _, c := range splitList(q["types"]) {
		filter.Types = append(filter.Types, calculations.Category(c))
	}

	templates, err := s.service.Templates(r.Context(), filter)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if templates == nil {
		templates = []*calculations.Template{}
	}

	respondData(w, http.StatusOK, TemplatesResponse{Templates: templates})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.service.Template(r.Context(), chi.URLParam(r, "templateId"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, t)
}

// Publish accepts a template definition as JSON or YAML
func (s *Server) handlePublishTemplate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.conf.MaxBodyBytes))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	t, err := catalog.Decode(body)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	published, err := s.service.PublishTemplate(r.Context(), t)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, published)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req calcservice.ExecuteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.service.Execute(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, result)
}

func (s *Server) handleSaveResult(w http.ResponseWriter, r *http.Request) {
	var req calculations.SaveRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	saved, err := s.service.SaveResult(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, saved)
}

func (s *Server) handleListSaved(w http.ResponseWriter, r *http.Request) {
	results, err := s.service.Saved(r.Context(), r.URL.Query().Get("projectId"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if results == nil {
		results = []*calculations.Result{}
	}
	respondData(w, http.StatusOK, results)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Result(r.Context(), chi.URLParam(r, "resultId"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, result)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := calcservice.RecommendationRequest{
		TemplateID: q.Get("templateId"),
		ProjectID:  q.Get("projectId"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			s.respondServiceError(w, r, &calculations.ValidationError{
				Fields: calculations.FieldErrors{"limit": "Debe ser un número entero"},
			})
			return
		}
		req.Limit = limit
	}

	templates, err := s.service.Recommendations(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if templates == nil {
		templates = []*calculations.Template{}
	}
	respondData(w, http.StatusOK, templates)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	table, err := s.service.Compare(r.Context(), req.ResultIDs)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, table)
}

// splitList accepts both repeated parameters and comma separated values
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.conf.MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

// respondServiceError maps engine errors onto HTTP statuses
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr     *calculations.ValidationError
		cerr     *calculations.ComputationError
		aerr     *calculations.AccessError
		tooLarge *http.MaxBytesError
	)

	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:  "validation failed",
			Fields: verr.Fields,
		})
	case errors.As(err, &cerr):
		respondError(w, http.StatusUnprocessableEntity, "computation failed", err)
	case errors.Is(err, calculations.ErrInvalidTemplateDef):
		respondError(w, http.StatusUnprocessableEntity, "invalid template definition", err)
	case errors.Is(err, calculations.ErrInvalidComparison):
		respondError(w, http.StatusBadRequest, "invalid comparison", err)
	case errors.Is(err, calculations.ErrTemplateNotFound):
		respondError(w, http.StatusNotFound, "template not found", err)
	case errors.Is(err, calculations.ErrResultNotFound):
		respondError(w, http.StatusNotFound, "result not found", err)
	case errors.Is(err, calculations.ErrTemplateConflict):
		respondError(w, http.StatusConflict, "template version conflict", err)
	case errors.As(err, &tooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
	case errors.As(err, &aerr):
		respondError(w, http.StatusBadGateway, "storage unavailable", err)
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, Envelope{Data: data})
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}
