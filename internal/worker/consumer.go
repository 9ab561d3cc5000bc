package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed is returned when the delivery stream ends without an
// orderly shutdown
var ErrDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

// setupConsumer starts manual-ack consumption and returns the delivery channel
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	consumerTag := w.consumerTag
	if consumerTag == "" {
		consumerTag = "recorder-" + uuid.NewString()
	}

	deliveries, err := w.broker.Consume(consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", consumerTag),
	)

	return deliveries, nil
}

// dispatch hands deliveries to the job handler strictly one after another.
// A run in flight when the broker closes is not canceled.
func (w *Worker) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	closed := w.broker.NotifyClose()
	runCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case amqpErr, ok := <-closed:
			if !ok {
				// orderly close; drain until the delivery channel ends
				closed = nil
				continue
			}
			w.logger.Error("RabbitMQ channel closed by broker",
				slog.Int("code", amqpErr.Code),
				slog.String("reason", amqpErr.Reason),
			)
			return fmt.Errorf("rabbitmq channel closed: %w", amqpErr)

		case delivery, ok := <-deliveries:
			if !ok {
				if w.broker.IsClosing() {
					w.logger.Info("Message dispatcher stopped - broker client closed")
					return nil
				}
				w.logger.Warn("RabbitMQ delivery channel closed")
				return ErrDeliveriesClosed
			}

			w.HandleDelivery(runCtx, delivery)
		}
	}
}
