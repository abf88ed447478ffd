package app

import (
	"context"
	"encoding/json"
	"log"

	"github.com/rehive/bitcoin-adapter/internal/domain"
	"github.com/rehive/bitcoin-adapter/pkg/rabbitmq"
)

// WebhookDispatcher hands accepted webhook deliveries to the confirmation
// engine asynchronously. The HTTP receiver returns success-of-receipt to the
// provider as soon as Dispatch returns.
type WebhookDispatcher interface {
	Dispatch(ctx context.Context, delivery domain.WebhookDelivery) error
}

// QueueDispatcher publishes deliveries to the durable work queue consumed by
// the engine.
type QueueDispatcher struct {
	producer *rabbitmq.EventProducer
	queue    string
}

// NewQueueDispatcher creates a dispatcher backed by RabbitMQ.
func NewQueueDispatcher(producer *rabbitmq.EventProducer, queue string) *QueueDispatcher {
	return &QueueDispatcher{producer: producer, queue: queue}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, delivery domain.WebhookDelivery) error {
	body, err := json.Marshal(delivery)
	if err != nil {
		return err
	}
	return d.producer.Publish(ctx, d.queue, body)
}

// InlineDispatcher processes deliveries on a local goroutine. It is the
// degraded mode used when the broker is unavailable at startup: deliveries
// are not durable, but ingestion keeps working.
type InlineDispatcher struct {
	engine *Engine
}

// NewInlineDispatcher creates a dispatcher that feeds the engine directly.
func NewInlineDispatcher(engine *Engine) *InlineDispatcher {
	return &InlineDispatcher{engine: engine}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, delivery domain.WebhookDelivery) error {
	body, err := json.Marshal(delivery)
	if err != nil {
		return err
	}
	go func() {
		if ok := d.engine.HandleMessage(body); !ok {
			log.Printf("level=warn component=dispatcher mode=inline msg=\"delivery processing failed; no queue to re-deliver\" account=%s", delivery.AccountID)
		}
	}()
	return nil
}
