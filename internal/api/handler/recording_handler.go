package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/recording-worker/internal/api/dto"
	"github.com/cuongbtq/recording-worker/internal/metrics"
	"github.com/cuongbtq/recording-worker/internal/storage"
	"github.com/cuongbtq/recording-worker/internal/worker/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateRecording handles POST /api/v1/recordings
// Queues a recording job for the worker
func (h *RecordingHandler) CreateRecording(c *gin.Context) {
	var req dto.CreateRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	body, err := json.Marshal(domain.Job{
		SourceURL:       req.URL,
		DurationSeconds: req.Duration,
		VideoID:         req.VideoID,
	})
	if err != nil {
		h.logger.Error("Failed to encode job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to encode job",
		})
		return
	}

	err = h.publisher.PublishWithRetry(c.Request.Context(), body, "application/json")
	metrics.ObservePublish(err)
	if err != nil {
		h.logger.Error("Failed to publish recording job",
			slog.String("vid", req.VideoID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to queue recording job",
		})
		return
	}

	h.logger.Info("Recording job queued",
		slog.String("vid", req.VideoID),
		slog.Int("duration", req.Duration),
	)

	c.JSON(http.StatusAccepted, dto.CreateRecordingResponse{
		VideoID: req.VideoID,
		Queue:   h.publisher.QueueName(),
		Status:  "queued",
	})
}

// GetRecording handles GET /api/v1/recordings/:run_id
func (h *RecordingHandler) GetRecording(c *gin.Context) {
	runID := c.Param("run_id")

	if _, err := uuid.Parse(runID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "run_id must be a valid UUID",
		})
		return
	}

	rec, err := h.store.GetRun(c.Request.Context(), runID)
	if errors.Is(err, storage.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Recording run not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get recording run", slog.String("run_id", runID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get recording run",
		})
		return
	}

	c.JSON(http.StatusOK, toRecordingDTO(rec))
}

// ListRecordings handles GET /api/v1/recordings
// Lists ledger rows newest first with cursor pagination
func (h *RecordingHandler) ListRecordings(c *gin.Context) {
	var req dto.ListRecordingsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeRunCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	runs, err := h.store.ListRuns(c.Request.Context(), storage.RunFilter{
		VideoID:  req.VideoID,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list recording runs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list recording runs",
		})
		return
	}

	// storage returns one extra row when another page exists
	hasMore := len(runs) > req.PageSize
	if hasMore {
		runs = runs[:req.PageSize]
	}

	resp := dto.ListRecordingsResponse{
		Recordings: make([]dto.RecordingDTO, len(runs)),
	}
	for i := range runs {
		resp.Recordings[i] = toRecordingDTO(&runs[i])
	}

	if hasMore {
		last := runs[len(runs)-1]
		resp.NextCursor = EncodeRunCursor(&storage.RunCursor{
			StartedAt: last.StartedAt,
			RunID:     last.RunID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// toRecordingDTO leaves out the stored error text, which can carry recorder output
func toRecordingDTO(rec *storage.Recording) dto.RecordingDTO {
	out := dto.RecordingDTO{
		RunID:           rec.RunID,
		VideoID:         rec.VideoID,
		SourceURL:       rec.SourceURL,
		DurationSeconds: rec.DurationSeconds,
		Status:          rec.Status,
		FailedStage:     rec.FailedStage,
		StartedAt:       rec.StartedAt.Format(time.RFC3339),
		UpdatedAt:       rec.UpdatedAt.Format(time.RFC3339),
	}
	if rec.CompletedAt.Valid {
		out.CompletedAt = rec.CompletedAt.Time.Format(time.RFC3339)
	}
	return out
}
