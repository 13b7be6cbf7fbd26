// Package handlers implements the TipEnter HTTP endpoints.
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/tipenter/internal/api/middleware"
	"github.com/dvloznov/tipenter/internal/extraction"
	"github.com/dvloznov/tipenter/internal/jobs"
)

// MaxBodyBytes bounds request bodies carrying base64 images.
const MaxBodyBytes = 64 << 20

// ImagePayload is one uploaded image as sent by the scanner UI.
type ImagePayload struct {
	Name string `json:"name"`
	Type string `json:"type"`
	// Data is base64, optionally as a data: URL.
	Data string `json:"data"`
	// GCSURI references an image already in Cloud Storage (scan jobs only).
	GCSURI string `json:"gcs_uri,omitempty"`
}

// decode returns the raw image bytes.
func (p ImagePayload) decode() (extraction.Image, error) {
	data := p.Data
	mime := p.Type
	if strings.HasPrefix(data, "data:") {
		comma := strings.IndexByte(data, ',')
		if comma < 0 {
			return extraction.Image{}, fmt.Errorf("image %q: malformed data URL", p.Name)
		}
		header := data[len("data:"):comma]
		if mime == "" {
			mime, _, _ = strings.Cut(header, ";")
		}
		data = data[comma+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return extraction.Image{}, fmt.Errorf("image %q: invalid base64: %w", p.Name, err)
	}
	return extraction.Image{Name: p.Name, MimeType: mime, Data: raw}, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		BatchID: query.Get("batch_id"),
		Status:  jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
