package store

import (
	"context"
	"fmt"

	"FlowGuard/internal/config"
	"FlowGuard/internal/model"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store persists classified events.
type Store interface {
	// Write inserts a batch of events.
	Write(ctx context.Context, events []model.Event) error
	// Recent returns up to n most recent events of a model variant, oldest first.
	Recent(ctx context.Context, variant string, n int) ([]model.Event, error)
	Close() error
}

// Open creates the store selected by cfg.Type. The "none" type yields a nil
// store and no error.
func Open(cfg config.PersistConfig) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return OpenSQLite(cfg.SQLite.Path)
	case "clickhouse":
		return OpenClickHouse(cfg.ClickHouse)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store type '%s'", cfg.Type)
	}
}

func marshalOptional(v interface{}, present bool) (string, error) {
	if !present {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// eventColumns flattens the nested parts of an event into JSON strings.
func eventColumns(e model.Event) (features, flow, packet string, err error) {
	if features, err = marshalOptional(e.Features, len(e.Features) > 0); err != nil {
		return
	}
	if flow, err = marshalOptional(e.Flow, e.Flow != nil); err != nil {
		return
	}
	packet, err = marshalOptional(e.Packet, e.Packet != nil)
	return
}

// restoreColumns is the inverse of eventColumns.
func restoreColumns(e *model.Event, features, flow, packet string) error {
	if features != "" {
		if err := json.UnmarshalFromString(features, &e.Features); err != nil {
			return fmt.Errorf("failed to decode features: %w", err)
		}
	}
	if flow != "" {
		e.Flow = &model.FlowSummary{}
		if err := json.UnmarshalFromString(flow, e.Flow); err != nil {
			return fmt.Errorf("failed to decode flow summary: %w", err)
		}
	}
	if packet != "" {
		e.Packet = &model.PacketMeta{}
		if err := json.UnmarshalFromString(packet, e.Packet); err != nil {
			return fmt.Errorf("failed to decode packet meta: %w", err)
		}
	}
	return nil
}

func reverse(events []model.Event) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}
