package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/logger"
)

// KafkaSink publishes audit events to a Kafka topic for downstream SIEM
// consumption.
type KafkaSink struct {
	writer *kafka.Writer
	log    logger.Logger
}

// NewKafkaSink creates a sink over the configured brokers.
func NewKafkaSink(cfg config.KafkaConfig, log logger.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.AuditTopic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}
	return &KafkaSink{
		writer: writer,
		log:    log.WithComponent("audit_kafka"),
	}
}

// Write publishes one event, keyed by event type so a partition keeps a
// coherent stream per type.
func (s *KafkaSink) Write(ctx context.Context, event *models.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.EventType),
		Value: payload,
	})
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
