package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	// A named in-memory database keeps each test isolated.
	store, err := NewGormStore(config.DatabaseConfig{
		Dialect: "sqlite",
		DSN:     "file:" + t.Name() + "?mode=memory&cache=shared",
	}, logger.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func violationEvent(dataTypes []string, risk int, at time.Time) *models.AuditEvent {
	event := models.NewAuditEvent(
		constants.AuditEventDLPViolation,
		constants.SeverityCritical,
		"security.inspect",
		constants.OutcomeBlocked,
	).
		WithRiskScore(risk).
		WithDetail("data_types", dataTypes)
	event.Timestamp = at
	return event
}

func TestGormStoreWriteAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Write(ctx, violationEvent([]string{"CREDIT_CARD"}, 86, now)))
	require.NoError(t, store.Write(ctx, violationEvent([]string{"CREDIT_CARD", "EMAIL"}, 60, now)))

	counts, err := store.CountViolations(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)

	byType := make(map[constants.DataType]int64)
	for _, c := range counts {
		byType[c.DataType] += c.Count
	}
	assert.Equal(t, int64(2), byType[constants.DataTypeCreditCard])
	assert.Equal(t, int64(1), byType[constants.DataTypeEmail])
}

func TestGormStoreWindowBounds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Write(ctx, violationEvent([]string{"SSN"}, 72, now.Add(-2*time.Hour))))
	require.NoError(t, store.Write(ctx, violationEvent([]string{"SSN"}, 72, now)))

	counts, err := store.CountViolations(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, int64(1), counts[0].Count, "events before the window are excluded")
}

func TestGormStoreAverageRiskScore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Write(ctx, violationEvent([]string{"CREDIT_CARD"}, 80, now)))
	require.NoError(t, store.Write(ctx, violationEvent([]string{"SSN"}, 60, now)))

	avg, count, err := store.AverageRiskScore(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.InDelta(t, 70.0, avg, 1e-9)
}

func TestGormStoreEmptyWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	avg, count, err := store.AverageRiskScore(ctx, now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, avg)

	counts, err := store.CountViolations(ctx, now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestGormStoreNonViolationEventNotCounted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	event := models.NewAuditEvent(
		constants.AuditEventClientBlocked,
		constants.SeverityHigh,
		"rate_limiter.block_client",
		constants.OutcomeBlocked,
	)
	event.Timestamp = now
	require.NoError(t, store.Write(ctx, event))

	counts, err := store.CountViolations(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, counts)
}
