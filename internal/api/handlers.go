package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/ladder-cache/internal/cascade"
	"github.com/terra-clan/ladder-cache/internal/models"
	"github.com/terra-clan/ladder-cache/internal/sections"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	failures := s.health.CheckAll(r.Context())
	if len(failures) > 0 {
		names := make([]string, 0, len(failures))
		for name, err := range failures {
			slog.Warn("tier not ready", "tier", name, "error", err)
			names = append(names, name)
		}
		sort.Strings(names)
		respondError(w, http.StatusServiceUnavailable, "not_ready", "unavailable: "+strings.Join(names, ", "))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"tiers":  s.health.List(),
	})
}

// Section handlers

type sectionInfo struct {
	Name      string `json:"name"`
	Key       string `json:"key"`
	JobActive bool   `json:"jobActive"`
	IsDefault bool   `json:"isDefault,omitempty"`
}

type sectionsResponse struct {
	Sections         []sectionInfo `json:"sections"`
	CatalogUpdatedAt *time.Time    `json:"catalogUpdatedAt,omitempty"`
}

type contestsResponse struct {
	Section    string           `json:"section"`
	Key        string           `json:"key"`
	Contests   []models.Contest `json:"contests"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalPages int              `json:"totalPages"`
	Total      int              `json:"total"`
	Warning    string           `json:"warning,omitempty"`
}

func (s *Server) handleListSections(w http.ResponseWriter, r *http.Request) {
	resp := sectionsResponse{Sections: make([]sectionInfo, 0, len(sections.All()))}
	for _, name := range sections.All() {
		resp.Sections = append(resp.Sections, sectionInfo{
			Name:      name,
			Key:       sections.Key(name),
			JobActive: s.jobs.IsActive(name),
			IsDefault: name == sections.Default,
		})
	}
	if ts, ok := s.cascade.CatalogUpdatedAt(r.Context()); ok {
		resp.CatalogUpdatedAt = &ts
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetContests(w http.ResponseWriter, r *http.Request) {
	name, ok := s.sectionParam(w, r)
	if !ok {
		return
	}

	page, ok := pageParam(w, r)
	if !ok {
		return
	}

	contests, err := s.cascade.ResolveSection(r.Context(), name, boolParam(r, "force"))
	s.respondContests(w, name, contests, page, err)
}

func (s *Server) handleUpdateContests(w http.ResponseWriter, r *http.Request) {
	name, ok := s.sectionParam(w, r)
	if !ok {
		return
	}

	contests, err := s.cascade.UpdateContests(r.Context(), name)
	s.respondContests(w, name, contests, 1, err)
}

func (s *Server) respondContests(w http.ResponseWriter, name string, contests []models.Contest, page int, err error) {
	resp := contestsResponse{
		Section:  name,
		Key:      sections.Key(name),
		Page:     page,
		PageSize: s.cascade.Options().PageSize,
	}

	if err != nil {
		var loadErr *cascade.SectionLoadError
		if !errors.As(err, &loadErr) {
			slog.Error("failed to resolve section", "section", name, "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to load contests")
			return
		}
		resp.Warning = loadErr.Warning
	}

	resp.Total = len(contests)
	resp.TotalPages = models.TotalPages(len(contests), resp.PageSize)
	resp.Contests = models.Page(contests, page, resp.PageSize)
	if resp.Contests == nil {
		resp.Contests = []models.Contest{}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetMissing(w http.ResponseWriter, r *http.Request) {
	name, ok := s.sectionParam(w, r)
	if !ok {
		return
	}

	missing, err := s.cascade.Missing(name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list missing contests")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"section": name,
		"missing": missing,
		"count":   len(missing),
	})
}

// Contest handlers

type problemsResponse struct {
	ContestID int                  `json:"contestId"`
	Problems  []models.ProblemView `json:"problems"`
	Loading   bool                 `json:"loading"`
}

func (s *Server) handleGetProblems(w http.ResponseWriter, r *http.Request) {
	id, ok := contestIDParam(w, r)
	if !ok {
		return
	}

	problems := s.cascade.ResolveProblems(r.Context(), id, boolParam(r, "force"))
	solved := models.KeySet(listParam(r, "solved"))
	attempted := models.KeySet(listParam(r, "attempted"))

	respondJSON(w, http.StatusOK, problemsResponse{
		ContestID: id,
		Problems:  models.Overlay(problems, solved, attempted),
		Loading:   s.cascade.State().Loading(id),
	})
}

func (s *Server) handleRefreshContest(w http.ResponseWriter, r *http.Request) {
	id, ok := contestIDParam(w, r)
	if !ok {
		return
	}

	problems := s.cascade.RefreshContest(r.Context(), id)
	respondJSON(w, http.StatusOK, problemsResponse{
		ContestID: id,
		Problems:  models.Overlay(problems, nil, nil),
	})
}

// Parameter helpers

func (s *Server) sectionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "section")
	name, err := sections.Resolve(raw)
	if err != nil {
		respondError(w, http.StatusNotFound, "section_not_found", "unknown section: "+raw)
		return "", false
	}
	return name, true
}

func contestIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "contest id must be a positive integer")
		return 0, false
	}
	return id, true
}

func pageParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, true
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		respondError(w, http.StatusBadRequest, "invalid_request", "page must be a positive integer")
		return 0, false
	}
	return page, true
}

func boolParam(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}

func listParam(r *http.Request, key string) []string {
	var out []string
	for _, value := range r.URL.Query()[key] {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
