// Package model loads the pretrained scaler, label encoder and classifier
// and exposes them behind small read-only contracts.
package model

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidArtifact is returned when an artifact cannot be parsed or
	// is internally inconsistent.
	ErrInvalidArtifact = errors.New("invalid model artifact")

	// ErrDimensionMismatch is returned when a vector or matrix does not
	// have the width an artifact was fit on.
	ErrDimensionMismatch = errors.New("feature dimension mismatch")

	// ErrSchemaMismatch is returned when artifacts were produced for a
	// different feature schema.
	ErrSchemaMismatch = errors.New("feature schema mismatch")

	// ErrUnknownClass is returned when a class id or label is outside the
	// encoder's table.
	ErrUnknownClass = errors.New("unknown class")
)

// Scaler maps a raw feature vector onto the classifier's input scale.
type Scaler interface {
	// Dimension is the number of features the scaler was fit on.
	Dimension() int
	// Transform validates the width of vec and returns it as a scaled
	// single-row matrix. vec is not modified.
	Transform(vec []float64) (*mat.Dense, error)
}

// Classifier scores scaled feature rows.
type Classifier interface {
	NumFeatures() int
	NumClasses() int
	// Predict returns one class id per row of x.
	Predict(x mat.Matrix) ([]int, error)
	// PredictProba returns rows x classes probabilities.
	PredictProba(x mat.Matrix) (*mat.Dense, error)
}

// Encoder maps class ids to label strings and back.
type Encoder interface {
	Len() int
	Decode(id int) (string, error)
	Encode(label string) (int, error)
	Classes() []string
}
