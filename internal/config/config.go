package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// CaptureConfig controls the packet source and the ingest queue.
type CaptureConfig struct {
	Interface   string  `yaml:"interface"`
	BPFFilter   string  `yaml:"bpf_filter" default:"tcp or udp"`
	SnapshotLen int32   `yaml:"snapshot_len" default:"1600"`
	Promiscuous bool    `yaml:"promiscuous" default:"true"`
	QueueSize   int     `yaml:"queue_size" default:"5000"`
	SampleRate  float64 `yaml:"sample_rate" default:"1.0"`
	// TimeSource is "wall" for live capture or "packet" to follow capture
	// timestamps, which is what offline replay wants.
	TimeSource string `yaml:"time_source" default:"wall"`
}

// FlowConfig holds the flow table and expiry tunables.
type FlowConfig struct {
	IdleTimeout          time.Duration `yaml:"idle_timeout" default:"1500ms"`
	PacketThreshold      uint64        `yaml:"packet_threshold" default:"50"`
	MaxTracked           int           `yaml:"max_tracked" default:"20000"`
	EvictFraction        float64       `yaml:"evict_fraction" default:"0.1"`
	ScanInterval         time.Duration `yaml:"scan_interval" default:"500ms"`
	StopTimeout          time.Duration `yaml:"stop_timeout" default:"3s"`
	MaxConcurrentFlushes int           `yaml:"max_concurrent_flushes" default:"8"`
}

// GRPCConfig points a classifier variant at a remote model server.
type GRPCConfig struct {
	Addr   string `yaml:"addr"`
	Method string `yaml:"method" default:"/flowguard.v1.Classifier/Predict"`
}

// RuleDef is one threshold rule of the rules backend.
type RuleDef struct {
	Label     string  `yaml:"label"`
	Feature   string  `yaml:"feature"`
	Operator  string  `yaml:"operator"`
	Threshold float64 `yaml:"threshold"`
}

// VariantDef describes one selectable model variant and its artifacts.
type VariantDef struct {
	Name         string     `yaml:"name"`
	Mode         string     `yaml:"mode"`
	Backend      string     `yaml:"backend"`
	ScalerPath   string     `yaml:"scaler_path"`
	LabelsPath   string     `yaml:"labels_path"`
	GRPC         GRPCConfig `yaml:"grpc"`
	Rules        []RuleDef  `yaml:"rules"`
	DefaultLabel string     `yaml:"default_label"`
}

// ClassifierConfig lists the model variants and which one is active.
type ClassifierConfig struct {
	Active          string        `yaml:"active"`
	Timeout         time.Duration `yaml:"timeout" default:"2s"`
	PacketBatchSize int           `yaml:"packet_batch_size" default:"40"`
	Variants        []VariantDef  `yaml:"variants"`
}

// SQLiteConfig holds the local event store settings.
type SQLiteConfig struct {
	Path string `yaml:"path" default:"flowguard.db"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"9000"`
	Database string `yaml:"database" default:"default"`
	Username string `yaml:"username" default:"default"`
	Password string `yaml:"password"`
}

// PersistConfig selects and tunes the event store.
type PersistConfig struct {
	Type          string           `yaml:"type" default:"sqlite"`
	BatchSize     int              `yaml:"batch_size" default:"50"`
	FlushInterval time.Duration    `yaml:"flush_interval" default:"2s"`
	QueueSize     int              `yaml:"queue_size" default:"10000"`
	SQLite        SQLiteConfig     `yaml:"sqlite"`
	ClickHouse    ClickHouseConfig `yaml:"clickhouse"`
}

// NATSConfig controls the NATS event publisher.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url" default:"nats://127.0.0.1:4222"`
	Subject string `yaml:"subject" default:"flowguard.events"`
}

// SinkConfig holds the event dispatcher settings.
type SinkConfig struct {
	QueueSize         int           `yaml:"queue_size" default:"2000"`
	RecentSize        int           `yaml:"recent_size" default:"500"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval" default:"500ms"`
	BroadcastBatch    int           `yaml:"broadcast_batch" default:"10"`
	Persist           PersistConfig `yaml:"persist"`
	NATS              NATSConfig    `yaml:"nats"`
}

// APIConfig holds the HTTP listener settings.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr" default:":8080"`
	AutoStart  bool   `yaml:"auto_start"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"text"`
	File   string `yaml:"file"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture    CaptureConfig    `yaml:"capture"`
	Flow       FlowConfig       `yaml:"flow"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Sink       SinkConfig       `yaml:"sink"`
	API        APIConfig        `yaml:"api"`
	Log        LogConfig        `yaml:"log"`
}

// Default returns a configuration with every default applied and the two
// built-in model variants: per-packet "bcc" and flow-level "cicids", both
// unclassified until a backend is configured.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("invalid config defaults: %v", err))
	}
	cfg.Classifier.Active = "bcc"
	cfg.Classifier.Variants = []VariantDef{
		{Name: "bcc", Mode: "packet", Backend: "none"},
		{Name: "cicids", Mode: "flow", Backend: "none"},
	}
	return cfg
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	variants := cfg.Classifier.Variants
	cfg.Classifier.Variants = nil

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	if len(cfg.Classifier.Variants) == 0 {
		cfg.Classifier.Variants = variants
	}
	for i := range cfg.Classifier.Variants {
		if err := defaults.Set(&cfg.Classifier.Variants[i].GRPC); err != nil {
			return nil, fmt.Errorf("failed to apply variant defaults: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail deep inside the pipeline.
func (c *Config) Validate() error {
	var errs []error
	if c.Capture.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("capture.queue_size must be positive, got %d", c.Capture.QueueSize))
	}
	if c.Capture.SampleRate <= 0 || c.Capture.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("capture.sample_rate must be in (0, 1], got %v", c.Capture.SampleRate))
	}
	if c.Capture.TimeSource != "wall" && c.Capture.TimeSource != "packet" {
		errs = append(errs, fmt.Errorf("capture.time_source must be 'wall' or 'packet', got %q", c.Capture.TimeSource))
	}
	if c.Flow.IdleTimeout <= 0 || c.Flow.ScanInterval <= 0 {
		errs = append(errs, errors.New("flow.idle_timeout and flow.scan_interval must be positive durations"))
	}
	if c.Flow.PacketThreshold == 0 {
		errs = append(errs, errors.New("flow.packet_threshold must be positive"))
	}
	if c.Flow.MaxTracked <= 0 {
		errs = append(errs, fmt.Errorf("flow.max_tracked must be positive, got %d", c.Flow.MaxTracked))
	}
	if c.Flow.EvictFraction <= 0 || c.Flow.EvictFraction > 1 {
		errs = append(errs, fmt.Errorf("flow.evict_fraction must be in (0, 1], got %v", c.Flow.EvictFraction))
	}
	if c.Classifier.PacketBatchSize <= 0 {
		errs = append(errs, errors.New("classifier.packet_batch_size must be positive"))
	}

	seen := make(map[string]bool, len(c.Classifier.Variants))
	for _, v := range c.Classifier.Variants {
		if v.Name == "" {
			errs = append(errs, errors.New("classifier variant without a name"))
			continue
		}
		if seen[v.Name] {
			errs = append(errs, fmt.Errorf("duplicate classifier variant %q", v.Name))
		}
		seen[v.Name] = true
		if v.Mode != "packet" && v.Mode != "flow" {
			errs = append(errs, fmt.Errorf("classifier variant %q: mode must be 'packet' or 'flow', got %q", v.Name, v.Mode))
		}
	}
	if !seen[c.Classifier.Active] {
		errs = append(errs, fmt.Errorf("classifier.active %q is not a configured variant", c.Classifier.Active))
	}

	switch c.Sink.Persist.Type {
	case "sqlite", "clickhouse", "none":
	default:
		errs = append(errs, fmt.Errorf("sink.persist.type must be sqlite, clickhouse or none, got %q", c.Sink.Persist.Type))
	}

	return errors.Join(errs...)
}
