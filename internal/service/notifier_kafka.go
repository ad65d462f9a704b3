package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rryowa/botgate/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes security events keyed by user id, so events of one user stay ordered.
type KafkaNotifier struct {
	w       messageWriter
	topic   string
	timeout time.Duration
	log     *zap.SugaredLogger

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func NewKafkaNotifier(log *zap.SugaredLogger, brokers []string, topic string, timeout time.Duration) *KafkaNotifier {
	return newKafkaNotifier(log, &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}, topic, timeout)
}

func newKafkaNotifier(log *zap.SugaredLogger, w messageWriter, topic string, timeout time.Duration) *KafkaNotifier {
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &KafkaNotifier{
		w:       w,
		topic:   topic,
		timeout: timeout,
		log:     log.With("component", "kafka.notifier", "topic", topic),
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, event models.SecurityEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		n.log.Warnw("notifier closed, dropping security event", "event", event.Type, "user_id", event.UserID)
		return
	}

	ctx = context.WithoutCancel(ctx)
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		if err := n.publish(ctx, event); err != nil {
			n.log.Errorw("failed to publish security event", "error", err, "event", event.Type)
		}
	}()
}

func (n *KafkaNotifier) publish(ctx context.Context, event models.SecurityEvent) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, span := otel.Tracer("kafka.notifier").Start(ctx, "kafka.produce "+n.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", n.topic),
		),
	)
	defer span.End()

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := make([]kafka.Header, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return n.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.UserID),
		Value:   value,
		Headers: headers,
	})
}

// Close waits up to the publish timeout for in-flight events, then closes the writer.
func (n *KafkaNotifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(n.timeout):
		n.log.Warn("closing kafka writer with security events still in flight")
	}

	if err := n.w.Close(); err != nil {
		n.log.Errorw("failed to close kafka writer", "error", err)
	}
}
