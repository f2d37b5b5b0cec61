package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/graphmesh/graphmesh/pkg/chunker"
	"github.com/graphmesh/graphmesh/pkg/graph"
	"github.com/graphmesh/graphmesh/pkg/leaselock"
	"github.com/graphmesh/graphmesh/pkg/logger"
)

// IngestMsg is one chunked-ingest job: the raw text is chunked by the worker
// and fed chunk by chunk into the engine.
type IngestMsg struct {
	Index string `json:"index"`
	Text  string `json:"text"`
}

// PublishIngest enqueues an ingest job.
func PublishIngest(ctx context.Context, ch *amqp091.Channel, msg IngestMsg) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal ingest message: %w", err)
	}

	err = ch.PublishWithContext(ctx, "", IngestQueue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish ingest message: %w", err)
	}
	return nil
}

// IngestConsumer drains the ingest queue. Every job runs under a per-index
// lease so concurrent workers never ingest into the same index at once.
type IngestConsumer struct {
	Engine  *graph.Engine
	Chunker *chunker.Chunker
	Locks   *leaselock.Client
}

// Run consumes ingest jobs until ctx is canceled.
func (c *IngestConsumer) Run(ctx context.Context, ch *amqp091.Channel) error {
	deliveries, err := ch.Consume(IngestQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", IngestQueue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return nil
			}
			if err := c.handle(ctx, delivery); err != nil {
				logger.Error("[Queue] Ingest job failed", "err", err)
				_ = delivery.Nack(false, false)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

func (c *IngestConsumer) handle(ctx context.Context, delivery amqp091.Delivery) error {
	var msg IngestMsg
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		return fmt.Errorf("failed to decode ingest message: %w", err)
	}

	chunks := c.Chunker.Chunk(msg.Text)
	logger.Info("[Queue] Ingesting", "index", msg.Index, "chunks", len(chunks))

	run := func(ctx context.Context) error {
		for _, chunk := range chunks {
			if err := c.Engine.InsertGraphData(ctx, msg.Index, chunk); err != nil {
				return err
			}
		}
		return nil
	}

	if c.Locks == nil {
		return run(ctx)
	}
	return c.Locks.WithLease(ctx, "ingest:"+msg.Index, leaselock.Options{Wait: true}, run)
}
