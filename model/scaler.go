package model

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RobustScaler applies scaled = (raw - center) / scale per feature, where
// center is the training median and scale the interquartile range.
type RobustScaler struct {
	schemaVersion string
	center        []float64
	scale         []float64
}

type scalerFile struct {
	SchemaVersion string    `json:"schema_version"`
	NFeaturesIn   int       `json:"n_features_in"`
	Center        []float64 `json:"center"`
	Scale         []float64 `json:"scale"`
}

// NewRobustScaler builds a scaler from explicit parameters. A nil center
// means no centering and a nil scale means no scaling.
func NewRobustScaler(schemaVersion string, center, scale []float64) (*RobustScaler, error) {
	n := max(len(center), len(scale))
	if n == 0 {
		return nil, fmt.Errorf("%w: scaler has neither center nor scale", ErrInvalidArtifact)
	}
	if center == nil {
		center = make([]float64, n)
	}
	if scale == nil {
		scale = make([]float64, n)
		for i := range scale {
			scale[i] = 1
		}
	}
	if len(center) != len(scale) {
		return nil, fmt.Errorf("%w: scaler center has %d values, scale has %d", ErrInvalidArtifact, len(center), len(scale))
	}
	for i := range n {
		if math.IsNaN(center[i]) || math.IsInf(center[i], 0) {
			return nil, fmt.Errorf("%w: scaler center[%d] is not finite", ErrInvalidArtifact, i)
		}
		if scale[i] == 0 || math.IsNaN(scale[i]) || math.IsInf(scale[i], 0) {
			return nil, fmt.Errorf("%w: scaler scale[%d] = %v", ErrInvalidArtifact, i, scale[i])
		}
	}

	return &RobustScaler{
		schemaVersion: schemaVersion,
		center:        append([]float64(nil), center...),
		scale:         append([]float64(nil), scale...),
	}, nil
}

// ParseRobustScaler decodes a scaler artifact.
func ParseRobustScaler(data []byte) (*RobustScaler, error) {
	var f scalerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: scaler: %v", ErrInvalidArtifact, err)
	}
	s, err := NewRobustScaler(f.SchemaVersion, f.Center, f.Scale)
	if err != nil {
		return nil, err
	}
	if f.NFeaturesIn != 0 && f.NFeaturesIn != s.Dimension() {
		return nil, fmt.Errorf("%w: scaler declares %d features but stores %d", ErrInvalidArtifact, f.NFeaturesIn, s.Dimension())
	}
	return s, nil
}

// Dimension returns the number of features the scaler was fit on.
func (s *RobustScaler) Dimension() int {
	return len(s.center)
}

// SchemaVersion returns the feature schema the scaler was fit against.
func (s *RobustScaler) SchemaVersion() string {
	return s.schemaVersion
}

// Transform returns the scaled vector as a 1 x Dimension matrix. A vector
// of any other length is rejected before anything is computed.
func (s *RobustScaler) Transform(vec []float64) (*mat.Dense, error) {
	if len(vec) != s.Dimension() {
		return nil, fmt.Errorf("%w: got %d features, scaler expects %d", ErrDimensionMismatch, len(vec), s.Dimension())
	}
	row := append([]float64(nil), vec...)
	floats.Sub(row, s.center)
	floats.Div(row, s.scale)
	return mat.NewDense(1, len(row), row), nil
}

var _ Scaler = (*RobustScaler)(nil)
