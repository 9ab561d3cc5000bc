package worker

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/semaphore"

	"github.com/cuongbtq/recording-worker/internal/storage"
	"github.com/cuongbtq/recording-worker/internal/worker/domain"
)

// Broker is the consuming side of the RabbitMQ client
type Broker interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	NotifyClose() <-chan *amqp.Error
	IsClosing() bool
}

// Recorder produces an artifact for a source URL
type Recorder interface {
	Record(ctx context.Context, sourceURL string, durationSeconds int) (string, error)
}

// Uploader sends an artifact to its destination
type Uploader interface {
	Upload(ctx context.Context, path, destination, secret string) error
}

// Ledger stores one row per pipeline run
type Ledger interface {
	StartRun(ctx context.Context, rec *storage.Recording) error
	FinishRun(ctx context.Context, runID, status, failedStage, errorMsg string) error
}

// Config holds worker configuration
type Config struct {
	Logger   *slog.Logger
	Broker   Broker
	Recorder Recorder
	Uploader Uploader
	Clean    func(path string) error
	// Ledger is optional
	Ledger Ledger

	UploadURITemplate string
	UploadSecret      string
	// Placeholder in UploadURITemplate is replaced by the video ID
	Placeholder string
	// RequeueOnFailure applies to pipeline failures after decoding;
	// undecodable messages are never requeued
	RequeueOnFailure bool
	ConsumerTag      string
}

// Worker consumes recording jobs one at a time
type Worker struct {
	logger           *slog.Logger
	broker           Broker
	recorder         Recorder
	uploader         Uploader
	clean            func(path string) error
	ledger           Ledger
	uploadTemplate   string
	uploadSecret     string
	placeholder      string
	requeueOnFailure bool
	consumerTag      string

	// permit admits one pipeline run at a time; the recorder always writes
	// the same output path
	permit *semaphore.Weighted
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	placeholder := cfg.Placeholder
	if placeholder == "" {
		placeholder = domain.VideoIDPlaceholder
	}

	return &Worker{
		logger:           cfg.Logger,
		broker:           cfg.Broker,
		recorder:         cfg.Recorder,
		uploader:         cfg.Uploader,
		clean:            cfg.Clean,
		ledger:           cfg.Ledger,
		uploadTemplate:   cfg.UploadURITemplate,
		uploadSecret:     cfg.UploadSecret,
		placeholder:      placeholder,
		requeueOnFailure: cfg.RequeueOnFailure,
		consumerTag:      cfg.ConsumerTag,
		permit:           semaphore.NewWeighted(1),
	}
}

// Start consumes until the delivery stream ends. It returns nil after an
// orderly broker close and an error if the broker went away on its own.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Bool("requeue_on_failure", w.requeueOnFailure),
		slog.Bool("ledger_enabled", w.ledger != nil),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	return w.dispatch(ctx, deliveries)
}
