package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FlowGuard/internal/config"
	"FlowGuard/internal/engine/features"
	"FlowGuard/internal/metrics"
	"FlowGuard/internal/model"

	log "github.com/sirupsen/logrus"
)

// Prediction holds one result per input row. Nil entries are unclassified
// rows or rows without a confidence.
type Prediction struct {
	Labels      []*string
	Confidences []*float64
}

// Adapter turns feature rows into predictions using whichever variant the
// selector names at call time. Loaded bundles are cached per variant.
type Adapter struct {
	selector *Selector
	defs     map[string]config.VariantDef
	timeout  time.Duration
	metrics  *metrics.Metrics

	mu    sync.RWMutex
	cache map[string]*Bundle
}

// NewAdapter loads every configured variant up front so that missing
// artifacts fail at startup.
func NewAdapter(cfg config.ClassifierConfig, selector *Selector, m *metrics.Metrics) (*Adapter, error) {
	if m == nil {
		m = metrics.Discard()
	}
	a := &Adapter{
		selector: selector,
		defs:     make(map[string]config.VariantDef, len(cfg.Variants)),
		timeout:  cfg.Timeout,
		metrics:  m,
		cache:    make(map[string]*Bundle, len(cfg.Variants)),
	}
	for _, def := range cfg.Variants {
		a.defs[def.Name] = def
		b, err := Load(def, cfg.Timeout)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to load model variant: %w", err)
		}
		a.cache[def.Name] = b
		log.WithFields(log.Fields{
			"variant": b.Name,
			"mode":    b.Mode,
			"backend": b.Backend,
			"loaded":  b.Loaded(),
		}).Info("Model variant ready")
	}
	return a, nil
}

// Selector returns the selector the adapter follows.
func (a *Adapter) Selector() *Selector { return a.selector }

// Current returns the bundle of the active variant.
func (a *Adapter) Current() *Bundle {
	return a.Bundle(a.selector.Active())
}

// Bundle returns the bundle of a named variant, loading it on first use.
// It returns nil for unknown names.
func (a *Adapter) Bundle(name string) *Bundle {
	a.mu.RLock()
	b, ok := a.cache[name]
	a.mu.RUnlock()
	if ok {
		return b
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.cache[name]; ok {
		return b
	}
	def, ok := a.defs[name]
	if !ok {
		return nil
	}
	b, err := Load(def, a.timeout)
	if err != nil {
		log.WithError(err).WithField("variant", name).Warn("Failed to load model variant")
		return &Bundle{Name: name, Mode: model.Mode(def.Mode), Backend: def.Backend}
	}
	a.cache[name] = b
	return b
}

// Classify runs rows through b. It never fails: backend errors degrade every
// row to unclassified.
func (a *Adapter) Classify(ctx context.Context, b *Bundle, rows [][]float64) Prediction {
	pred := Prediction{
		Labels:      make([]*string, len(rows)),
		Confidences: make([]*float64, len(rows)),
	}
	if !b.Loaded() || len(rows) == 0 {
		return pred
	}

	input := rows
	if b.Scaler != nil {
		scaled, err := b.Scaler.Scale(rows)
		if err != nil {
			log.WithError(err).WithField("variant", b.Name).Warn("Scaler transform failed, using raw features")
		} else {
			input = scaled
		}
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	labels, confs, err := b.Classifier.Predict(ctx, input)
	a.metrics.PredictLatency.WithLabelValues(b.Name).Observe(time.Since(start).Seconds())
	if err == nil && len(labels) != len(rows) {
		err = fmt.Errorf("classifier returned %d labels for %d rows", len(labels), len(rows))
	}
	if err != nil {
		a.metrics.ClassifierErrors.WithLabelValues(b.Name).Inc()
		log.WithError(err).WithFields(log.Fields{"variant": b.Name, "rows": len(rows)}).Warn("Model predict failed")
		return pred
	}

	withConf := b.Caps.Confidence && len(confs) == len(rows)
	for i, raw := range labels {
		label := raw
		if b.Decoder != nil {
			label = b.Decoder.DecodeLabel(raw)
		}
		pred.Labels[i] = &label
		if withConf {
			c := confs[i]
			pred.Confidences[i] = &c
		}
	}
	return pred
}

// Health describes the active variant and the outcome of a probe prediction.
type Health struct {
	Model        string       `json:"model"`
	Mode         model.Mode   `json:"mode"`
	Backend      string       `json:"backend"`
	Loaded       bool         `json:"loaded"`
	Capabilities Capabilities `json:"capabilities"`
	FeatureNames []string     `json:"feature_names"`
	OK           bool         `json:"ok"`
	Prediction   *string      `json:"prediction,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// Health runs a zero vector of the active variant's width through its bundle.
func (a *Adapter) Health(ctx context.Context) Health {
	b := a.Current()
	if b == nil {
		return Health{Model: a.selector.Active(), Error: ErrUnknownModel.Error()}
	}
	h := Health{
		Model:        b.Name,
		Mode:         b.Mode,
		Backend:      b.Backend,
		Loaded:       b.Loaded(),
		Capabilities: b.Caps,
		FeatureNames: features.Names(b.Mode),
	}
	if !b.Loaded() {
		h.Error = "no classifier configured"
		return h
	}

	row := make([]float64, features.Width(b.Mode))
	input := [][]float64{row}
	if b.Scaler != nil {
		scaled, err := b.Scaler.Scale(input)
		if err != nil {
			h.Error = err.Error()
			return h
		}
		input = scaled
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	labels, _, err := b.Classifier.Predict(ctx, input)
	if err != nil {
		h.Error = err.Error()
		return h
	}
	if len(labels) == 1 {
		label := labels[0]
		if b.Decoder != nil {
			label = b.Decoder.DecodeLabel(label)
		}
		h.Prediction = &label
	}
	h.OK = true
	return h
}

// Close releases every cached bundle.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	for name, b := range a.cache {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("variant %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
