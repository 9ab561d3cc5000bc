package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/recording-worker/internal/storage"
)

// RecordingStore is the read side of the run ledger
type RecordingStore interface {
	GetRun(ctx context.Context, runID string) (*storage.Recording, error)
	ListRuns(ctx context.Context, filter storage.RunFilter) ([]storage.Recording, error)
}

// JobPublisher puts recording jobs on the queue
type JobPublisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
	QueueName() string
}

// HealthCheck reports whether one dependency is usable
type HealthCheck func(ctx context.Context) error

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Service   string
	Store     RecordingStore
	Publisher JobPublisher
	Checks    map[string]HealthCheck
}

// RecordingHandler handles recording-related HTTP requests
type RecordingHandler struct {
	logger    *slog.Logger
	store     RecordingStore
	publisher JobPublisher
}

// NewRecordingHandler creates a new RecordingHandler instance
func NewRecordingHandler(deps *Dependencies) *RecordingHandler {
	return &RecordingHandler{
		logger:    deps.Logger,
		store:     deps.Store,
		publisher: deps.Publisher,
	}
}
