package model

import "context"

// Mode selects how captured packets are turned into classifier input.
type Mode string

const (
	// ModePacket classifies every sampled packet on its own.
	ModePacket Mode = "packet"
	// ModeFlow aggregates packets into flows and classifies evicted flows.
	ModeFlow Mode = "flow"
)

// Classifier is the prediction capability of a loaded model.
// Predict returns one raw label per row. The confidence slice is nil when the
// model does not report probabilities.
type Classifier interface {
	Predict(ctx context.Context, rows [][]float64) (labels []string, confidences []float64, err error)
}

// Scaler transforms a feature matrix before prediction.
type Scaler interface {
	Scale(rows [][]float64) ([][]float64, error)
}

// LabelDecoder maps a raw model output onto a class name.
type LabelDecoder interface {
	DecodeLabel(raw string) string
}

// ConfidenceReporter is implemented by classifiers that may return confidences.
type ConfidenceReporter interface {
	ReportsConfidence() bool
}
