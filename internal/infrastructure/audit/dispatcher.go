// Package audit implements asynchronous delivery of security events to one or
// more sinks (structured log, relational store, Kafka, webhook).
package audit

import (
	"context"
	"sync"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/internal/infrastructure/monitoring"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

// Sink receives audit events. A failing sink must not affect the others.
type Sink interface {
	Write(ctx context.Context, event *models.AuditEvent) error
	Close() error
}

// Dispatcher fans audit events out to its sinks from a bounded queue. Record
// never blocks the request path: when the queue is full the event is dropped
// and counted.
type Dispatcher struct {
	queue   chan *models.AuditEvent
	sinks   []Sink
	metrics *monitoring.Metrics
	log     logger.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ service.AuditService = (*Dispatcher)(nil)

// NewDispatcher starts a dispatcher draining into the given sinks.
func NewDispatcher(queueSize int, sinks []Sink, metrics *monitoring.Metrics, log logger.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = constants.DefaultAuditQueueSize
	}
	d := &Dispatcher{
		queue:   make(chan *models.AuditEvent, queueSize),
		sinks:   sinks,
		metrics: metrics,
		log:     log.WithComponent("audit_dispatcher"),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Record enqueues an event for delivery. It never blocks and never panics on
// a closed dispatcher; late events after Close are dropped.
func (d *Dispatcher) Record(ctx context.Context, event *models.AuditEvent) {
	if event == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.metrics.RecordAuditQueueDrop()
		}
	}()

	select {
	case d.queue <- event:
	default:
		d.metrics.RecordAuditQueueDrop()
		d.log.Warn(ctx, "audit queue full, event dropped",
			logger.String("event_type", string(event.EventType)),
			logger.String("action", event.Action))
	}
}

// Close stops intake, drains queued events, and closes every sink.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()

	var firstErr error
	for _, sink := range d.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event *models.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultAuditWriteTimeout)
	defer cancel()

	for _, sink := range d.sinks {
		if err := sink.Write(ctx, event); err != nil {
			d.log.Error(ctx, "audit sink write failed", err,
				logger.String("event_id", event.EventID.String()),
				logger.String("event_type", string(event.EventType)))
		}
	}
}
