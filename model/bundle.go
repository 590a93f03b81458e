package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/RyanBlaney/sonido-insect/features"
	"github.com/RyanBlaney/sonido-insect/logging"
	"github.com/RyanBlaney/sonido-insect/storage"
)

// ArtifactPaths names the three artifacts inside a FileStore.
type ArtifactPaths struct {
	Classifier string `json:"classifier"`
	Encoder    string `json:"encoder"`
	Scaler     string `json:"scaler"`
}

// DefaultArtifactPaths returns the conventional artifact file names.
func DefaultArtifactPaths() ArtifactPaths {
	return ArtifactPaths{
		Classifier: "classifier.json",
		Encoder:    "encoder.json",
		Scaler:     "scaler.json",
	}
}

// Bundle is the immutable set of artifacts one pipeline scores with. It is
// built once and shared read-only by every inference call.
type Bundle struct {
	Scaler     *RobustScaler
	Encoder    *LabelEncoder
	Classifier *XGBoost

	// SchemaVersion is the feature schema all three artifacts agree on.
	SchemaVersion string
	// Fingerprint is a SHA-256 over the artifact bytes.
	Fingerprint string
	// Sources records where each artifact was read from.
	Sources ArtifactPaths
}

// expectations are the extractor properties a bundle must match.
type expectations struct {
	schemaVersion string
	dimension     int
}

// LoadOption adjusts what LoadBundle validates against.
type LoadOption func(*expectations)

// ExpectSchema overrides the schema version and vector dimension the
// artifacts must match. The defaults are features.SchemaVersion and
// features.Dimension.
func ExpectSchema(version string, dimension int) LoadOption {
	return func(e *expectations) {
		e.schemaVersion = version
		e.dimension = dimension
	}
}

// LoadBundle reads, parses and cross-checks the artifacts. Any failure
// means the process must not accept inference calls.
func LoadBundle(ctx context.Context, store storage.FileStore, paths ArtifactPaths, opts ...LoadOption) (*Bundle, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "model_loader",
		"function":  "LoadBundle",
	})

	exp := expectations{schemaVersion: features.SchemaVersion, dimension: features.Dimension}
	for _, opt := range opts {
		opt(&exp)
	}

	hash := sha256.New()
	read := func(name, path string) ([]byte, error) {
		if path == "" {
			return nil, fmt.Errorf("%w: no %s path configured", ErrInvalidArtifact, name)
		}
		data, err := storage.ReadAll(ctx, store, path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", name, err)
		}
		hash.Write(data)
		return data, nil
	}

	scalerData, err := read("scaler", paths.Scaler)
	if err != nil {
		return nil, err
	}
	encoderData, err := read("encoder", paths.Encoder)
	if err != nil {
		return nil, err
	}
	classifierData, err := read("classifier", paths.Classifier)
	if err != nil {
		return nil, err
	}

	scaler, err := ParseRobustScaler(scalerData)
	if err != nil {
		return nil, err
	}
	encoder, err := ParseLabelEncoder(encoderData)
	if err != nil {
		return nil, err
	}
	classifier, err := ParseXGBoost(classifierData)
	if err != nil {
		return nil, err
	}

	b, err := NewBundle(scaler, encoder, classifier, opts...)
	if err != nil {
		return nil, err
	}
	b.Fingerprint = hex.EncodeToString(hash.Sum(nil))
	b.Sources = ArtifactPaths{
		Classifier: store.Location(paths.Classifier),
		Encoder:    store.Location(paths.Encoder),
		Scaler:     store.Location(paths.Scaler),
	}

	logger.Info("Model artifacts loaded", logging.Fields{
		"schema_version": b.SchemaVersion,
		"dimension":      scaler.Dimension(),
		"classes":        encoder.Len(),
		"trees":          classifier.NumTrees(),
		"objective":      classifier.Objective(),
		"fingerprint":    b.Fingerprint[:12],
	})
	if drift := CatalogDrift(encoder); len(drift) > 0 {
		logger.Warn("Encoder classes differ from the built-in catalog", logging.Fields{
			"drift": drift,
		})
	}
	return b, nil
}

// NewBundle cross-checks already parsed artifacts: the scaler and the
// classifier must both have the expected dimension, the encoder must cover
// every class the classifier can emit, and any recorded schema versions
// must agree with the expected one.
func NewBundle(scaler *RobustScaler, encoder *LabelEncoder, classifier *XGBoost, opts ...LoadOption) (*Bundle, error) {
	exp := expectations{schemaVersion: features.SchemaVersion, dimension: features.Dimension}
	for _, opt := range opts {
		opt(&exp)
	}

	if scaler.Dimension() != exp.dimension {
		return nil, fmt.Errorf("%w: scaler expects %d features, extractor produces %d", ErrDimensionMismatch, scaler.Dimension(), exp.dimension)
	}
	if classifier.NumFeatures() != exp.dimension {
		return nil, fmt.Errorf("%w: classifier expects %d features, extractor produces %d", ErrDimensionMismatch, classifier.NumFeatures(), exp.dimension)
	}
	if encoder.Len() != classifier.NumClasses() {
		return nil, fmt.Errorf("%w: encoder has %d classes, classifier has %d", ErrInvalidArtifact, encoder.Len(), classifier.NumClasses())
	}

	for name, v := range map[string]string{
		"scaler":     scaler.SchemaVersion(),
		"encoder":    encoder.SchemaVersion(),
		"classifier": classifier.SchemaVersion(),
	} {
		if v != "" && v != exp.schemaVersion {
			return nil, fmt.Errorf("%w: %s was built for %q, extractor is %q", ErrSchemaMismatch, name, v, exp.schemaVersion)
		}
	}

	return &Bundle{
		Scaler:        scaler,
		Encoder:       encoder,
		Classifier:    classifier,
		SchemaVersion: exp.schemaVersion,
	}, nil
}
