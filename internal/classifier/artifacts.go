package classifier

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// StandardScaler applies (x - mean) / scale per column.
type StandardScaler struct {
	Mean   []float64 `yaml:"mean"`
	Scales []float64 `yaml:"scale"`
}

// Scale returns a scaled copy of rows.
func (s *StandardScaler) Scale(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("row %d has %d columns, scaler expects %d", i, len(row), len(s.Mean))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			div := s.Scales[j]
			if div == 0 {
				div = 1
			}
			scaled[j] = (v - s.Mean[j]) / div
		}
		out[i] = scaled
	}
	return out, nil
}

// LabelSet maps class indices emitted by a model onto class names.
type LabelSet struct {
	Classes []string `yaml:"classes"`
}

// DecodeLabel returns the class name of an integral raw output, or raw itself
// when it is not an index into the set.
func (l *LabelSet) DecodeLabel(raw string) string {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || f < 0 || int(f) >= len(l.Classes) {
		return raw
	}
	return l.Classes[int(f)]
}

// LoadScaler reads a scaler artifact. JSON files parse as YAML too.
func LoadScaler(path string, width int) (*StandardScaler, error) {
	var s StandardScaler
	if err := loadYAML(path, &s); err != nil {
		return nil, err
	}
	if len(s.Mean) != len(s.Scales) {
		return nil, fmt.Errorf("scaler %s: mean has %d values but scale has %d", path, len(s.Mean), len(s.Scales))
	}
	if width > 0 && len(s.Mean) != width {
		return nil, fmt.Errorf("scaler %s: expected %d columns, got %d", path, width, len(s.Mean))
	}
	return &s, nil
}

// LoadLabels reads a label artifact.
func LoadLabels(path string) (*LabelSet, error) {
	var l LabelSet
	if err := loadYAML(path, &l); err != nil {
		return nil, err
	}
	if len(l.Classes) == 0 {
		return nil, fmt.Errorf("labels %s: no classes defined", path)
	}
	return &l, nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse artifact %s: %w", path, err)
	}
	return nil
}
