package model

import (
	"encoding/json"
	"fmt"
)

// LabelEncoder is a fixed bidirectional table between class ids and labels.
type LabelEncoder struct {
	schemaVersion string
	classes       []string
	index         map[string]int
}

type encoderFile struct {
	SchemaVersion string   `json:"schema_version"`
	Classes       []string `json:"classes"`
}

// NewLabelEncoder builds an encoder where classes[i] has id i.
func NewLabelEncoder(schemaVersion string, classes []string) (*LabelEncoder, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("%w: encoder has no classes", ErrInvalidArtifact)
	}
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		if c == "" {
			return nil, fmt.Errorf("%w: encoder class %d is empty", ErrInvalidArtifact, i)
		}
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("%w: encoder class %q appears twice", ErrInvalidArtifact, c)
		}
		index[c] = i
	}
	return &LabelEncoder{
		schemaVersion: schemaVersion,
		classes:       append([]string(nil), classes...),
		index:         index,
	}, nil
}

// ParseLabelEncoder decodes an encoder artifact.
func ParseLabelEncoder(data []byte) (*LabelEncoder, error) {
	var f encoderFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: encoder: %v", ErrInvalidArtifact, err)
	}
	return NewLabelEncoder(f.SchemaVersion, f.Classes)
}

// Len returns the number of classes.
func (e *LabelEncoder) Len() int { return len(e.classes) }

// SchemaVersion returns the feature schema recorded with the encoder.
func (e *LabelEncoder) SchemaVersion() string { return e.schemaVersion }

// Classes returns a copy of the label table in id order.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

// Decode returns the label of class id.
func (e *LabelEncoder) Decode(id int) (string, error) {
	if id < 0 || id >= len(e.classes) {
		return "", fmt.Errorf("%w: id %d outside [0, %d)", ErrUnknownClass, id, len(e.classes))
	}
	return e.classes[id], nil
}

// Encode returns the id of label.
func (e *LabelEncoder) Encode(label string) (int, error) {
	id, ok := e.index[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownClass, label)
	}
	return id, nil
}

var _ Encoder = (*LabelEncoder)(nil)
