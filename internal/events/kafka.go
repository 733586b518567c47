package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
)

type PublisherMetrics struct {
	PublishTotal   *prometheus.CounterVec
	PublishLatency prometheus.Histogram
}

func NewPublisherMetrics(registry *prometheus.Registry) *PublisherMetrics {
	m := &PublisherMetrics{
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_publish_total",
				Help: "Total Kafka publish attempts.",
			},
			[]string{"topic", "status"},
		),
		PublishLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kafka_publish_latency_seconds",
				Help:    "Kafka publish latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(m.PublishTotal, m.PublishLatency)
	return m
}

type envelope struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	EventVersion int       `json:"event_version"`
	Timestamp    time.Time `json:"timestamp"`

	Payload TransferExecuted `json:"payload"`
}

// KafkaAuditPublisher mirrors executed transfers onto a Kafka topic for
// downstream audit consumers. Publish failures are logged, never surfaced
// to the transfer path.
type KafkaAuditPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
	metrics  *PublisherMetrics
}

func NewKafkaAuditPublisher(brokers []string, topic string, logger *slog.Logger, metrics *PublisherMetrics) (*KafkaAuditPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_7_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &KafkaAuditPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

func (p *KafkaAuditPublisher) HandleTransferExecuted(ctx context.Context, event TransferExecuted) {
	select {
	case <-ctx.Done():
		p.logger.Warn("kafka publish skipped", "topic", p.topic, "error", ctx.Err())
		return
	default:
	}

	env := envelope{
		EventID:      event.ID.String(),
		EventType:    EventTypeTransferExecuted,
		EventVersion: 1,
		Timestamp:    event.OccurredAt,
		Payload:      event,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("marshal kafka payload failed", "topic", p.topic, "error", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.Sender),
		Value: sarama.ByteEncoder(payload),
	}

	start := time.Now()
	_, _, err = p.producer.SendMessage(msg)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.PublishTotal.WithLabelValues(p.topic, status).Inc()
		p.metrics.PublishLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		p.logger.Error("kafka publish failed", "topic", p.topic, "error", err)
	}
}

func (p *KafkaAuditPublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
