package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

// AuditRecord is the relational projection of an audit event. DataType and
// Severity are lifted out of the details map so reports can aggregate with
// plain GROUP BY.
type AuditRecord struct {
	ID        uint      `gorm:"primaryKey"`
	EventID   string    `gorm:"size:36;uniqueIndex"`
	EventType string    `gorm:"size:64;index"`
	Severity  string    `gorm:"size:16;index"`
	Action    string    `gorm:"size:128"`
	Resource  string    `gorm:"size:256"`
	UserID    string    `gorm:"size:64;index"`
	ClientIP  string    `gorm:"size:64"`
	DataType  string    `gorm:"size:64;index"`
	RiskScore int
	Outcome   string    `gorm:"size:16"`
	Details   string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"index"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (AuditRecord) TableName() string {
	return "audit_events"
}

// GormStore persists audit events in a relational database and serves the
// aggregation queries behind compliance reports. It is both a Sink and an
// AuditQuery.
type GormStore struct {
	db  *gorm.DB
	log logger.Logger
}

var (
	_ Sink               = (*GormStore)(nil)
	_ service.AuditQuery = (*GormStore)(nil)
)

// NewGormStore opens the configured database and migrates the schema.
func NewGormStore(cfg config.DatabaseConfig, log logger.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	switch cfg.Dialect {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "file:aegis_audit.db?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported audit database dialect: %s", cfg.Dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.AutoMigrate(&AuditRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate audit schema: %w", err)
	}

	return &GormStore{
		db:  db,
		log: log.WithComponent("audit_store"),
	}, nil
}

// Write inserts one event. A DLP violation event expands into one row per
// data type so aggregation counts individual exposures.
func (s *GormStore) Write(ctx context.Context, event *models.AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		details = []byte("{}")
	}

	base := AuditRecord{
		EventID:   event.EventID.String(),
		EventType: string(event.EventType),
		Severity:  string(event.Severity),
		Action:    event.Action,
		Resource:  event.Resource,
		UserID:    event.UserID,
		ClientIP:  event.ClientIP,
		RiskScore: event.RiskScore,
		Outcome:   string(event.Outcome),
		Details:   string(details),
		Timestamp: event.Timestamp,
	}

	dataTypes := eventDataTypes(event)
	if len(dataTypes) == 0 {
		return s.db.WithContext(ctx).Create(&base).Error
	}

	records := make([]AuditRecord, 0, len(dataTypes))
	for i, dt := range dataTypes {
		rec := base
		if i > 0 {
			rec.EventID = fmt.Sprintf("%s/%d", base.EventID, i)
		}
		rec.DataType = dt
		records = append(records, rec)
	}
	return s.db.WithContext(ctx).Create(&records).Error
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CountViolations aggregates DLP violation rows in [from, to) by data type
// and severity.
func (s *GormStore) CountViolations(ctx context.Context, from, to time.Time) ([]service.ViolationCount, error) {
	var rows []struct {
		DataType string
		Severity string
		Count    int64
	}
	err := s.db.WithContext(ctx).
		Model(&AuditRecord{}).
		Select("data_type, severity, count(*) as count").
		Where("event_type = ?", string(constants.AuditEventDLPViolation)).
		Where("data_type <> ''").
		Where("timestamp >= ? AND timestamp < ?", from, to).
		Group("data_type, severity").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make([]service.ViolationCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, service.ViolationCount{
			DataType: constants.DataType(row.DataType),
			Severity: constants.Severity(row.Severity),
			Count:    row.Count,
		})
	}
	return counts, nil
}

// AverageRiskScore returns the mean risk score over DLP violation events in
// the window and how many events were considered.
func (s *GormStore) AverageRiskScore(ctx context.Context, from, to time.Time) (float64, int64, error) {
	var row struct {
		Avg   float64
		Count int64
	}
	err := s.db.WithContext(ctx).
		Model(&AuditRecord{}).
		Select("coalesce(avg(risk_score), 0) as avg, count(*) as count").
		Where("event_type = ?", string(constants.AuditEventDLPViolation)).
		Where("timestamp >= ? AND timestamp < ?", from, to).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Avg, row.Count, nil
}

// eventDataTypes extracts the data type list from an event's details.
func eventDataTypes(event *models.AuditEvent) []string {
	raw, ok := event.Details["data_types"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []constants.DataType:
		out := make([]string, 0, len(v))
		for _, t := range v {
			out = append(out, string(t))
		}
		return out
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
