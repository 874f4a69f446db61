package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanbokmall/checkout/internal/domain"
)

var subscriberTracer = otel.Tracer("events/subscriber")

// OrderPlacedHandler processes one decoded order.placed event. Returning an
// error stops the subscriber without committing the offset, so the message
// is redelivered.
type OrderPlacedHandler func(ctx context.Context, event domain.OrderPlacedEvent) error

// Subscriber reads a topic within a consumer group and restores the trace
// context injected by the publisher before invoking the handler.
type Subscriber struct {
	reader  *kafka.Reader
	topic   string
	groupID string
}

type SubscriberOption func(*kafka.ReaderConfig)

func WithStartOffset(offset int64) SubscriberOption {
	return func(cfg *kafka.ReaderConfig) {
		cfg.StartOffset = offset
	}
}

func NewSubscriber(brokers []string, topic, groupID string, opts ...SubscriberOption) *Subscriber {
	cfg := kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return &Subscriber{
		reader:  kafka.NewReader(cfg),
		topic:   topic,
		groupID: groupID,
	}
}

// ConsumeOrderPlaced loops until the context is cancelled or the handler
// fails. Offsets are committed only after the handler returns nil.
func (s *Subscriber) ConsumeOrderPlaced(ctx context.Context, handler OrderPlacedHandler) error {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		if err := s.process(ctx, msg, handler); err != nil {
			return err
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (s *Subscriber) process(ctx context.Context, msg kafka.Message, handler OrderPlacedHandler) error {
	parentCtx := otel.GetTextMapPropagator().Extract(ctx, newHeaderCarrier(&msg))

	spanCtx, span := subscriberTracer.Start(parentCtx, "process "+s.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("process"),
			semconv.MessagingOperationTypeDeliver,
			semconv.MessagingDestinationName(s.topic),
			semconv.MessagingKafkaConsumerGroup(s.groupID),
			semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
			semconv.MessagingDestinationPartitionID(strconv.Itoa(msg.Partition)),
			semconv.MessagingKafkaMessageKey(string(msg.Key)),
		),
	)
	defer span.End()

	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		err = fmt.Errorf("decode %s event: %w", s.topic, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := handler(spanCtx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

func (s *Subscriber) Close() error {
	return s.reader.Close()
}
