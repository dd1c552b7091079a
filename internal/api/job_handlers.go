package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/terra-clan/ladder-cache/internal/cascade"
	"github.com/terra-clan/ladder-cache/internal/loader"
	"github.com/terra-clan/ladder-cache/internal/models"
)

type jobResponse struct {
	Section string      `json:"section"`
	Active  bool        `json:"active"`
	Job     *models.Job `json:"job"`
}

// StartJobRequest optionally names the contests to load. Without ids the
// section is hard reloaded from the catalog.
type StartJobRequest struct {
	ContestIDs []int `json:"contestIds,omitempty"`
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	name, ok := s.sectionParam(w, r)
	if !ok {
		return
	}

	job, err := s.jobs.Status(r.Context(), name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to read job")
		return
	}
	if job == nil {
		respondError(w, http.StatusNotFound, "job_not_found", "no job for this section")
		return
	}

	respondJSON(w, http.StatusOK, jobResponse{Section: name, Active: s.jobs.IsActive(name), Job: job})
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	name, ok := s.sectionParam(w, r)
	if !ok {
		return
	}

	var req StartJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	var (
		job *models.Job
		err error
	)
	if len(req.ContestIDs) > 0 {
		job, err = s.jobs.Start(r.Context(), name, req.ContestIDs)
	} else {
		job, err = s.jobs.StartSection(r.Context(), name)
	}
	if err != nil {
		s.respondJobError(w, name, err)
		return
	}

	respondJSON(w, http.StatusAccepted, jobResponse{Section: name, Active: true, Job: job})
}

func (s *Server) handleStopJob(w http.ResponseWriter, r *http.Request) {
	name, ok := s.sectionParam(w, r)
	if !ok {
		return
	}

	job, err := s.jobs.Stop(r.Context(), name)
	if err != nil {
		s.respondJobError(w, name, err)
		return
	}
	if job == nil {
		respondError(w, http.StatusNotFound, "job_not_found", "no job for this section")
		return
	}

	respondJSON(w, http.StatusOK, jobResponse{Section: name, Active: s.jobs.IsActive(name), Job: job})
}

func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	name, ok := s.sectionParam(w, r)
	if !ok {
		return
	}

	job, err := s.jobs.Resume(r.Context(), name)
	if err != nil {
		s.respondJobError(w, name, err)
		return
	}
	if job == nil {
		respondError(w, http.StatusNotFound, "job_not_found", "no job for this section")
		return
	}

	respondJSON(w, http.StatusOK, jobResponse{Section: name, Active: s.jobs.IsActive(name), Job: job})
}

func (s *Server) respondJobError(w http.ResponseWriter, name string, err error) {
	var loadErr *cascade.SectionLoadError
	switch {
	case errors.Is(err, loader.ErrAlreadyRunning):
		respondError(w, http.StatusConflict, "job_running", "a job is already running for this section")
	case errors.As(err, &loadErr):
		respondError(w, http.StatusBadGateway, "upstream_error", loadErr.Warning)
	default:
		slog.Error("job operation failed", "section", name, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "job operation failed")
	}
}
