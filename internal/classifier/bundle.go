package classifier

import (
	"fmt"
	"io"
	"time"

	"FlowGuard/internal/config"
	"FlowGuard/internal/engine/features"
	"FlowGuard/internal/factory"
	"FlowGuard/internal/model"
)

// Capabilities records what a loaded bundle can do. It is computed once at load.
type Capabilities struct {
	Scaling       bool `json:"scaling"`
	LabelDecoding bool `json:"label_decoding"`
	Confidence    bool `json:"confidence"`
}

// Bundle is a loaded model variant: its classifier plus optional artifacts.
// A bundle without a classifier yields unclassified events.
type Bundle struct {
	Name    string
	Mode    model.Mode
	Backend string

	Classifier model.Classifier
	Scaler     model.Scaler
	Decoder    model.LabelDecoder
	Caps       Capabilities
}

// Loaded reports whether the bundle can predict.
func (b *Bundle) Loaded() bool { return b != nil && b.Classifier != nil }

// Close releases backend resources such as gRPC connections.
func (b *Bundle) Close() error {
	if b == nil {
		return nil
	}
	if c, ok := b.Classifier.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Load resolves a variant's backend and artifacts.
func Load(def config.VariantDef, timeout time.Duration) (*Bundle, error) {
	mode := model.Mode(def.Mode)
	b := &Bundle{Name: def.Name, Mode: mode, Backend: def.Backend}
	if b.Backend == "" {
		b.Backend = "none"
	}

	clf, err := factory.Create(def, timeout)
	if err != nil {
		return nil, err
	}
	b.Classifier = clf

	if def.ScalerPath != "" {
		s, err := LoadScaler(def.ScalerPath, features.Width(mode))
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", def.Name, err)
		}
		b.Scaler = s
	}
	if def.LabelsPath != "" {
		l, err := LoadLabels(def.LabelsPath)
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", def.Name, err)
		}
		b.Decoder = l
	} else if d, ok := clf.(model.LabelDecoder); ok {
		b.Decoder = d
	}

	b.Caps = Capabilities{
		Scaling:       b.Scaler != nil,
		LabelDecoding: b.Decoder != nil,
	}
	if r, ok := clf.(model.ConfidenceReporter); ok {
		b.Caps.Confidence = r.ReportsConfidence()
	}
	return b, nil
}
