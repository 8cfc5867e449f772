package store

import (
	"context"
	"fmt"
	"time"

	"FlowGuard/internal/config"
	"FlowGuard/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS flow_events (
    EventID     String,
    Time        DateTime64(3),
    Model       LowCardinality(String),
    SrcIP       String,
    DstIP       String,
    SrcPort     UInt16,
    DstPort     UInt16,
    Proto       LowCardinality(String),
    Prediction  Nullable(String),
    Confidence  Nullable(Float64),
    Features    String,
    Flow        String,
    Packet      String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Time)
ORDER BY (Model, Time);
`

// ClickHouseStore writes events to the flow_events table.
type ClickHouseStore struct {
	conn driver.Conn
}

// OpenClickHouse connects to ClickHouse and ensures the table exists.
func OpenClickHouse(cfg config.ClickHouseConfig) (*ClickHouseStore, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.WithField("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)).Info("Connected to ClickHouse and ensured flow_events exists")
	return &ClickHouseStore{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Write appends events to a single insert batch.
func (s *ClickHouseStore) Write(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO flow_events")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, e := range events {
		features, flow, packet, err := eventColumns(e)
		if err != nil {
			return fmt.Errorf("failed to encode event %s: %w", e.ID, err)
		}
		err = batch.Append(
			e.ID, e.Time, e.Model,
			e.SrcIP, e.DstIP, e.SrcPort, e.DstPort, e.Proto,
			e.Prediction, e.Confidence,
			features, flow, packet,
		)
		if err != nil {
			return fmt.Errorf("failed to append event to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// Recent queries the newest n events of a variant.
func (s *ClickHouseStore) Recent(ctx context.Context, variant string, n int) ([]model.Event, error) {
	rows, err := s.conn.Query(ctx, `
SELECT EventID, Time, Model, SrcIP, DstIP, SrcPort, DstPort, Proto,
       Prediction, Confidence, Features, Flow, Packet
FROM flow_events
WHERE Model = ?
ORDER BY Time DESC
LIMIT ?`, variant, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var (
			e                      model.Event
			features, flow, packet string
		)
		if err := rows.Scan(&e.ID, &e.Time, &e.Model, &e.SrcIP, &e.DstIP, &e.SrcPort, &e.DstPort, &e.Proto,
			&e.Prediction, &e.Confidence, &features, &flow, &packet); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := restoreColumns(&e, features, flow, packet); err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(events)
	return events, nil
}

// Close closes the connection.
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}
