package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/NordCoder/Herald/internal/obs/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Handler func(ctx context.Context, key, value []byte) error

var (
	mConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_messages_consumed_total", Help: "Messages fetched from kafka.",
	}, []string{"topic"})
	mHandlerErr = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_handler_errors_total", Help: "Messages skipped after the handler gave up.",
	}, []string{"topic"})
)

type Consumer struct {
	reader *kafka.Reader
	log    *zap.Logger
	cfg    *ConsumerConfig
}

type ConsumerConfig struct {
	Brokers       []string
	GroupID       string
	Topic         string
	FromBeginning bool
	Partitions    int

	// HandlerAttempts bounds in-place retries of a failing handler.
	HandlerAttempts int
	Logger          *zap.Logger
}

func NewConsumer(cfg *ConsumerConfig) *Consumer {
	if cfg.Logger == nil {
		cfg.Logger = zap.L()
	}
	if cfg.HandlerAttempts <= 0 {
		cfg.HandlerAttempts = 3
	}

	start := kafka.LastOffset
	if cfg.FromBeginning {
		start = kafka.FirstOffset
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:               cfg.Brokers,
		GroupID:               cfg.GroupID,
		Topic:                 cfg.Topic,
		StartOffset:           start,
		WatchPartitionChanges: true,

		MinBytes:          1e3,
		MaxBytes:          10e6,
		SessionTimeout:    10 * time.Second,
		RebalanceTimeout:  15 * time.Second,
		HeartbeatInterval: 3 * time.Second,
	})

	log := cfg.Logger.With(
		zap.String("component", "kafka.consumer"),
		zap.String("topic", cfg.Topic),
		zap.String("group", cfg.GroupID),
	)

	return &Consumer{reader: r, log: log, cfg: cfg}
}

// Consume hands each message to h and commits it once h is done with it. A
// failing handler is retried in place; after the last attempt the message is
// committed anyway so one poison message cannot stall the partition. Values
// rejected with ErrMalformed are committed without retrying.
func (c *Consumer) Consume(ctx context.Context, h Handler) error {
	log := c.log
	log.Info("consumer started")

	fetchBackoff := retry.ExpoJitter{Base: 200 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.1}
	fetchFailures := 0

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("consumer stopped (ctx canceled)")
				return ctx.Err()
			}
			wait := fetchBackoff.Next(fetchFailures)
			fetchFailures++
			if errors.Is(err, io.EOF) {
				log.Debug("fetch EOF; retry", zap.Duration("backoff", wait))
			} else {
				log.Warn("fetch failed; retry", zap.Error(err), zap.Duration("backoff", wait))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		fetchFailures = 0
		mConsumed.WithLabelValues(msg.Topic).Inc()

		if err := c.handle(ctx, h, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			mHandlerErr.WithLabelValues(msg.Topic).Inc()
			log.Error("handler gave up; skipping message",
				zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Error(err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				log.Info("commit interrupted by context cancel")
				return ctx.Err()
			}
			log.Warn("commit failed; will retry later", zap.Error(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, msg kafka.Message) error {
	mctx := otel.GetTextMapPropagator().Extract(ctx, headerCarrier{&msg.Headers})
	mctx, span := otel.Tracer("kafka.consumer").Start(mctx, "kafka.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(msg.Topic),
			semconv.MessagingKafkaDestinationPartition(msg.Partition),
			semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
		),
	)
	defer span.End()

	err := retry.Do(mctx, func() error { return h(mctx, msg.Key, msg.Value) }, retry.Policy{
		Name:      "kafka_handler_" + msg.Topic,
		Attempts:  c.cfg.HandlerAttempts,
		Backoff:   retry.ExpoJitter{Base: 100 * time.Millisecond, Max: 2 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool { return !errors.Is(err, ErrMalformed) && !errors.Is(err, context.Canceled) },
		OnAttempt: func(i int, err error) {
			c.log.Debug("handler attempt failed", zap.Int("attempt", i+1), zap.Error(err))
		},
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (c *Consumer) Close() error { return c.reader.Close() }
