// Package events publishes order lifecycle notifications to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/storelink/checkout/internal/domain/checkout"
)

var (
	_ checkout.EventPublisher = (*KafkaPublisher)(nil)
	_ checkout.EventPublisher = Nop{}
)

// KafkaPublisher writes order events to a Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}}
}

// OrderPlaced publishes the event keyed by order ID so one order's events
// land on one partition.
func (p *KafkaPublisher) OrderPlaced(ctx context.Context, ev checkout.OrderPlacedEvent) error {
	msg := kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: encodeOrderPlaced(ev),
		Time:  ev.CreatedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		zctx.From(ctx).Warn("publish order placed",
			zap.String("order_id", ev.OrderID),
			zap.Error(err))
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encodeOrderPlaced(ev checkout.OrderPlacedEvent) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("event")
	e.Str("order.placed")
	e.FieldStart("order_id")
	e.Str(ev.OrderID)
	e.FieldStart("tenant_id")
	e.Str(ev.TenantID)
	e.FieldStart("store_id")
	e.Str(ev.StoreID)
	e.FieldStart("store_name")
	e.Str(ev.StoreName)
	e.FieldStart("customer_name")
	e.Str(ev.CustomerName)
	e.FieldStart("customer_phone")
	e.Str(ev.CustomerPhone)
	e.FieldStart("pickup")
	e.Bool(ev.Pickup)
	e.FieldStart("total_cents")
	e.Int64(ev.Total)
	e.FieldStart("item_count")
	e.Int(ev.ItemCount)
	e.FieldStart("tracking_token")
	e.Str(ev.TrackingToken)
	e.FieldStart("created_at")
	e.Str(ev.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
	return e.Bytes()
}

// Nop discards events; used when no broker is configured.
type Nop struct{}

func (Nop) OrderPlaced(context.Context, checkout.OrderPlacedEvent) error { return nil }
