package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/tipenter/internal/api/middleware"
	"github.com/dvloznov/tipenter/internal/extraction"
	"github.com/dvloznov/tipenter/internal/imaging"
	"github.com/dvloznov/tipenter/internal/jobs"
	"github.com/dvloznov/tipenter/internal/receipt"
)

// Scanner runs images through extraction. *pipeline.Processor satisfies it.
type Scanner interface {
	ProcessImage(ctx context.Context, batchID string, position int, img extraction.Image) (*receipt.Record, error)
	ProcessBatch(ctx context.Context, batchID string, images []extraction.Image) ([]*receipt.Record, error)
}

// ScanHandler handles the scanning endpoints.
type ScanHandler struct {
	scanner   Scanner
	store     receipt.Store
	publisher jobs.Publisher
	quality   int
	log       zerolog.Logger
}

// NewScanHandler creates a scan handler. publisher may be nil, which disables
// POST /api/scan-jobs.
func NewScanHandler(scanner Scanner, store receipt.Store, publisher jobs.Publisher, enhanceQuality int, log zerolog.Logger) *ScanHandler {
	if enhanceQuality <= 0 {
		enhanceQuality = imaging.DefaultQuality
	}
	return &ScanHandler{
		scanner:   scanner,
		store:     store,
		publisher: publisher,
		quality:   enhanceQuality,
		log:       log,
	}
}

type processImagesRequest struct {
	Images []ImagePayload `json:"images"`
}

// ProcessImagesResponse is the body of POST /api/process-images.
type ProcessImagesResponse struct {
	Success         bool              `json:"success"`
	BatchID         string            `json:"batch_id"`
	ProcessedImages int               `json:"processed_images"`
	Results         []*receipt.Record `json:"results"`
}

// ProcessImages handles POST /api/process-images
func (h *ScanHandler) ProcessImages(w http.ResponseWriter, r *http.Request) {
	var req processImagesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Images) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "images is required")
		return
	}

	images := make([]extraction.Image, len(req.Images))
	for i, p := range req.Images {
		img, err := p.decode()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		images[i] = img
	}

	ctx := r.Context()
	batchID := uuid.NewString()

	records, err := h.scanner.ProcessBatch(ctx, batchID, images)
	if err != nil {
		h.log.Error().Err(err).Str("batch_id", batchID).Msg("Failed to process images")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to process images")
		return
	}

	if err := h.store.PutBatch(ctx, batchID, records); err != nil {
		h.log.Error().Err(err).Str("batch_id", batchID).Msg("Failed to store batch")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store batch")
		return
	}

	processed := 0
	for _, rec := range records {
		if rec.Error == "" {
			processed++
		}
	}

	middleware.WriteJSON(w, http.StatusOK, ProcessImagesResponse{
		Success:         true,
		BatchID:         batchID,
		ProcessedImages: processed,
		Results:         records,
	})
}

// ProcessReceipt handles POST /api/process-receipt
func (h *ScanHandler) ProcessReceipt(w http.ResponseWriter, r *http.Request) {
	var req ImagePayload
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	img, err := req.decode()
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	batchID := uuid.NewString()

	rec, err := h.scanner.ProcessImage(ctx, batchID, 0, img)
	if err != nil {
		h.log.Warn().Err(err).Str("file_name", img.Name).Msg("Failed to process receipt")
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.store.PutBatch(ctx, batchID, []*receipt.Record{rec}); err != nil {
		h.log.Error().Err(err).Str("batch_id", batchID).Msg("Failed to store batch")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store batch")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"batch_id": batchID,
		"result":   rec,
	})
}

// EnhanceImage handles POST /api/enhance-image
func (h *ScanHandler) EnhanceImage(w http.ResponseWriter, r *http.Request) {
	var req ImagePayload
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	img, err := req.decode()
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := imaging.EnhanceBytes(img.Data, img.MimeType, h.quality)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, imaging.ErrUnsupportedType):
			status = http.StatusUnsupportedMediaType
		case errors.Is(err, imaging.ErrTooLarge):
			status = http.StatusRequestEntityTooLarge
		}
		h.log.Warn().Err(err).Str("file_name", img.Name).Msg("Failed to enhance image")
		middleware.WriteError(w, status, err.Error())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"image": ImagePayload{
			Name: req.Name,
			Type: "image/jpeg",
			Data: base64.StdEncoding.EncodeToString(out),
		},
	})
}

// EnqueueScan handles POST /api/scan-jobs
func (h *ScanHandler) EnqueueScan(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Job queue is not configured")
		return
	}

	var req processImagesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Images) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "images is required")
		return
	}

	job := &jobs.ScanBatchJob{Images: make([]jobs.ImageRef, len(req.Images))}
	for i, p := range req.Images {
		ref := jobs.ImageRef{Name: p.Name, MimeType: p.Type, GCSURI: p.GCSURI}
		if p.GCSURI == "" {
			img, err := p.decode()
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			ref.MimeType, ref.Data = img.MimeType, img.Data
		}
		job.Images[i] = ref
	}

	if err := h.publisher.PublishScanBatch(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue scan job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue scan job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Int("images", len(job.Images)).Msg("Scan job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":   job.JobID,
		"batch_id": job.BatchID,
		"status":   string(job.Status),
	})
}
