package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/recording-worker/internal/metrics"
	"github.com/cuongbtq/recording-worker/internal/storage"
	"github.com/cuongbtq/recording-worker/internal/worker/domain"
)

// HandleDelivery runs the pipeline for one delivery and resolves it exactly
// once: acknowledged when every stage succeeds, rejected otherwise. It blocks
// while another delivery holds the permit.
func (w *Worker) HandleDelivery(ctx context.Context, delivery amqp.Delivery) domain.Outcome {
	runID := uuid.NewString()
	logger := w.logger.With(
		slog.String("run_id", runID),
		slog.Uint64("delivery_tag", delivery.DeliveryTag),
	)

	if err := w.permit.Acquire(ctx, 1); err != nil {
		logger.Warn("Delivery not admitted, returning it to the queue", slog.Any("error", err))
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			logger.Error("Failed to NACK message", slog.Any("error", nackErr))
			return domain.OutcomeUnresolved
		}
		return domain.OutcomeRejected
	}
	defer w.permit.Release(1)
	defer metrics.TrackInFlight()()

	err := w.processJob(ctx, runID, delivery.Body, logger)

	return w.resolve(delivery, err, logger)
}

// processJob decodes the body and runs record → upload → clean. No stage
// after a failing one runs, and no stage is retried.
func (w *Worker) processJob(ctx context.Context, runID string, body []byte, logger *slog.Logger) error {
	start := time.Now()
	job, err := domain.DecodeJob(body)
	metrics.ObserveStage(domain.StageDecode, start, err)
	if err != nil {
		logger.Error("Failed to decode job message", slog.Any("error", err))
		return err
	}

	logger = logger.With(slog.String("vid", job.VideoID))
	logger.Info("Processing recording job",
		slog.String("source_url", job.SourceURL),
		slog.Int("duration_seconds", job.DurationSeconds),
	)

	w.startRun(ctx, runID, job, logger)
	err = w.executeJob(ctx, job, logger)
	w.finishRun(ctx, runID, err, logger)

	return err
}

func (w *Worker) executeJob(ctx context.Context, job domain.Job, logger *slog.Logger) error {
	start := time.Now()
	path, err := w.recorder.Record(ctx, job.SourceURL, job.DurationSeconds)
	metrics.ObserveStage(domain.StageRecord, start, err)
	if err != nil {
		logger.Error("Recording failed", slog.Any("error", err))
		return err
	}

	destination := job.Destination(w.uploadTemplate, w.placeholder)

	// A failed upload leaves the artifact on disk; the next run overwrites it.
	start = time.Now()
	err = w.uploader.Upload(ctx, path, destination, w.uploadSecret)
	metrics.ObserveStage(domain.StageUpload, start, err)
	if err != nil {
		logger.Error("Upload failed", slog.String("artifact", path), slog.Any("error", err))
		return err
	}

	start = time.Now()
	err = w.clean(path)
	metrics.ObserveStage(domain.StageClean, start, err)
	if err != nil {
		logger.Error("Cleanup failed", slog.Any("error", err))
		return err
	}

	return nil
}

// resolve acknowledges or rejects the delivery. When the broker client is
// already closing the channel is gone, so the delivery is left unresolved
// and the broker redelivers it.
func (w *Worker) resolve(delivery amqp.Delivery, err error, logger *slog.Logger) domain.Outcome {
	if w.broker.IsClosing() {
		logger.Warn("Broker client closing, leaving delivery for redelivery",
			slog.Bool("pipeline_succeeded", err == nil),
		)
		metrics.ObserveDelivery(string(domain.OutcomeAbandoned))
		return domain.OutcomeAbandoned
	}

	if err == nil {
		if ackErr := delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message", slog.Any("error", ackErr))
			metrics.ObserveDelivery(string(domain.OutcomeUnresolved))
			return domain.OutcomeUnresolved
		}
		logger.Info("Recording job completed successfully")
		metrics.ObserveDelivery(string(domain.OutcomeAcknowledged))
		return domain.OutcomeAcknowledged
	}

	requeue := w.shouldRequeue(err)
	if nackErr := delivery.Nack(false, requeue); nackErr != nil {
		logger.Error("Failed to NACK message", slog.Any("error", nackErr))
		metrics.ObserveDelivery(string(domain.OutcomeUnresolved))
		return domain.OutcomeUnresolved
	}
	logger.Info("Message NACKed",
		slog.String("stage", domain.FailedStage(err)),
		slog.Bool("requeue", requeue),
	)
	metrics.ObserveDelivery(string(domain.OutcomeRejected))
	return domain.OutcomeRejected
}

// shouldRequeue never requeues undecodable bodies; they fail the same way
// on every redelivery
func (w *Worker) shouldRequeue(err error) bool {
	if errors.Is(err, domain.ErrDecode) {
		return false
	}
	return w.requeueOnFailure
}

func (w *Worker) startRun(ctx context.Context, runID string, job domain.Job, logger *slog.Logger) {
	if w.ledger == nil {
		return
	}

	now := time.Now().UTC()
	rec := &storage.Recording{
		RunID:           runID,
		VideoID:         job.VideoID,
		SourceURL:       job.SourceURL,
		DurationSeconds: job.DurationSeconds,
		Status:          domain.RunStatusRunning,
		StartedAt:       now,
		UpdatedAt:       now,
	}
	if err := w.ledger.StartRun(ctx, rec); err != nil {
		logger.Warn("Failed to record run start", slog.Any("error", err))
	}
}

// finishRun never changes the delivery outcome
func (w *Worker) finishRun(ctx context.Context, runID string, err error, logger *slog.Logger) {
	if w.ledger == nil {
		return
	}

	status, errMsg := domain.RunStatusCompleted, ""
	if err != nil {
		status, errMsg = domain.RunStatusFailed, err.Error()
	}

	if ledgerErr := w.ledger.FinishRun(ctx, runID, status, domain.FailedStage(err), errMsg); ledgerErr != nil {
		logger.Warn("Failed to record run result",
			slog.String("status", status),
			slog.Any("error", ledgerErr),
		)
	}
}
