package store

import (
	"context"
	"fmt"
	"time"

	"FlowGuard/internal/model"

	"github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// EventRecord is the SQLite row of a classified event.
type EventRecord struct {
	ID         uint      `gorm:"primaryKey"`
	EventID    string    `gorm:"uniqueIndex;size:36"`
	Time       time.Time `gorm:"index"`
	Model      string    `gorm:"index;size:64"`
	SrcIP      string
	DstIP      string
	SrcPort    uint16
	DstPort    uint16
	Proto      string `gorm:"size:8"`
	Prediction *string
	Confidence *float64
	Features   string
	Flow       string
	Packet     string
}

// TableName keeps the table name aligned with the ClickHouse store.
func (EventRecord) TableName() string { return "flow_events" }

// SQLiteStore keeps events in a local SQLite database.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the database at path in WAL mode.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		log.WithError(err).Warn("Failed to enable SQLite WAL mode")
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("event table migration failed: %w", err)
	}
	log.WithField("path", path).Info("SQLite event store ready")
	return &SQLiteStore{db: db}, nil
}

// Write inserts events in one transaction.
func (s *SQLiteStore) Write(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]EventRecord, 0, len(events))
	for _, e := range events {
		features, flow, packet, err := eventColumns(e)
		if err != nil {
			return fmt.Errorf("failed to encode event %s: %w", e.ID, err)
		}
		records = append(records, EventRecord{
			EventID:    e.ID,
			Time:       e.Time,
			Model:      e.Model,
			SrcIP:      e.SrcIP,
			DstIP:      e.DstIP,
			SrcPort:    e.SrcPort,
			DstPort:    e.DstPort,
			Proto:      e.Proto,
			Prediction: e.Prediction,
			Confidence: e.Confidence,
			Features:   features,
			Flow:       flow,
			Packet:     packet,
		})
	}
	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("failed to insert events: %w", err)
	}
	return nil
}

// Recent loads the newest n events of a variant.
func (s *SQLiteStore) Recent(ctx context.Context, variant string, n int) ([]model.Event, error) {
	var records []EventRecord
	err := s.db.WithContext(ctx).
		Where("model = ?", variant).
		Order("time DESC, id DESC").
		Limit(n).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}

	events := make([]model.Event, 0, len(records))
	for _, r := range records {
		e := model.Event{
			ID:         r.EventID,
			Time:       r.Time,
			Model:      r.Model,
			SrcIP:      r.SrcIP,
			DstIP:      r.DstIP,
			SrcPort:    r.SrcPort,
			DstPort:    r.DstPort,
			Proto:      r.Proto,
			Prediction: r.Prediction,
			Confidence: r.Confidence,
		}
		if err := restoreColumns(&e, r.Features, r.Flow, r.Packet); err != nil {
			return nil, fmt.Errorf("event %s: %w", r.EventID, err)
		}
		events = append(events, e)
	}
	reverse(events)
	return events, nil
}

// Close closes the underlying connection pool.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
