package audit

import (
	"context"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

// LoggerSink writes audit events to the structured log. It is the always-on
// sink; database and Kafka sinks are optional on top of it.
type LoggerSink struct {
	log logger.Logger
}

// NewLoggerSink creates a sink writing to the given logger.
func NewLoggerSink(log logger.Logger) *LoggerSink {
	return &LoggerSink{log: log.WithComponent("audit")}
}

// Write logs the event. Severity maps onto the log level so HIGH and CRITICAL
// events stand out in aggregation.
func (s *LoggerSink) Write(ctx context.Context, event *models.AuditEvent) error {
	fields := []logger.Field{
		logger.String("event_id", event.EventID.String()),
		logger.String("event_type", string(event.EventType)),
		logger.String("severity", string(event.Severity)),
		logger.String("action", event.Action),
		logger.String("outcome", string(event.Outcome)),
	}
	if event.Resource != "" {
		fields = append(fields, logger.String("resource", event.Resource))
	}
	if event.UserID != "" {
		fields = append(fields, logger.String("user_id", event.UserID))
	}
	if event.ClientIP != "" {
		fields = append(fields, logger.String("client_ip", event.ClientIP))
	}
	if event.RiskScore > 0 {
		fields = append(fields, logger.Int("risk_score", event.RiskScore))
	}
	if len(event.Details) > 0 {
		fields = append(fields, logger.Any("details", event.Details))
	}

	switch event.Severity {
	case constants.SeverityHigh, constants.SeverityCritical:
		s.log.Warn(ctx, "security event", fields...)
	default:
		s.log.Info(ctx, "security event", fields...)
	}
	return nil
}

// Close is a no-op; the logger outlives the sink.
func (s *LoggerSink) Close() error {
	return nil
}
