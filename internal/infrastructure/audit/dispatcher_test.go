package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/infrastructure/monitoring"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

// memorySink collects events for assertions.
type memorySink struct {
	mu     sync.Mutex
	events []*models.AuditEvent
	block  chan struct{} // when set, Write waits until closed
	err    error
	closed bool
}

func (s *memorySink) Write(ctx context.Context, event *models.AuditEvent) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) Events() []*models.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.AuditEvent{}, s.events...)
}

func newTestMetrics() *monitoring.Metrics {
	return monitoring.NewMetrics(prometheus.NewRegistry())
}

func testEvent() *models.AuditEvent {
	return models.NewAuditEvent(
		constants.AuditEventDLPViolation,
		constants.SeverityHigh,
		"test.event",
		constants.OutcomeSuccess,
	)
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	first := &memorySink{}
	second := &memorySink{}
	d := NewDispatcher(16, []Sink{first, second}, newTestMetrics(), logger.NewNoopLogger())

	event := testEvent()
	d.Record(context.Background(), event)
	require.NoError(t, d.Close())

	require.Len(t, first.Events(), 1)
	require.Len(t, second.Events(), 1)
	assert.Equal(t, event.EventID, first.Events()[0].EventID)
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}

func TestDispatcherDrainsQueueOnClose(t *testing.T) {
	sink := &memorySink{}
	d := NewDispatcher(64, []Sink{sink}, newTestMetrics(), logger.NewNoopLogger())

	for i := 0; i < 50; i++ {
		d.Record(context.Background(), testEvent())
	}
	require.NoError(t, d.Close())

	assert.Len(t, sink.Events(), 50, "Close must deliver everything already queued")
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	gate := make(chan struct{})
	sink := &memorySink{block: gate}
	d := NewDispatcher(2, []Sink{sink}, newTestMetrics(), logger.NewNoopLogger())

	// The worker is parked on the first event; the queue holds two more.
	// Everything beyond that is dropped without blocking the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			d.Record(context.Background(), testEvent())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(gate)
	require.NoError(t, d.Close())
	assert.LessOrEqual(t, len(sink.Events()), 4)
}

func TestDispatcherSinkFailureIsolated(t *testing.T) {
	failing := &memorySink{err: assert.AnError}
	healthy := &memorySink{}
	d := NewDispatcher(16, []Sink{failing, healthy}, newTestMetrics(), logger.NewNoopLogger())

	d.Record(context.Background(), testEvent())
	require.NoError(t, d.Close())

	assert.Len(t, healthy.Events(), 1, "one failing sink must not starve the others")
}

func TestDispatcherIgnoresNilAndLateEvents(t *testing.T) {
	sink := &memorySink{}
	d := NewDispatcher(16, []Sink{sink}, newTestMetrics(), logger.NewNoopLogger())

	d.Record(context.Background(), nil)
	require.NoError(t, d.Close())

	// Recording after Close must not panic.
	d.Record(context.Background(), testEvent())
	assert.Empty(t, sink.Events())
}
