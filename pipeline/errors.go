package pipeline

import (
	"errors"
	"fmt"

	"github.com/RyanBlaney/sonido-insect/cleaner"
	"github.com/RyanBlaney/sonido-insect/features"
	"github.com/RyanBlaney/sonido-insect/model"
	"github.com/RyanBlaney/sonido-insect/transcode"
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageLoad       Stage = "load"
	StageClean      Stage = "clean"
	StageExtract    Stage = "extract"
	StagePreprocess Stage = "preprocess"
	StageClassify   Stage = "classify"
	StageDecode     Stage = "decode"
)

// Kind classifies a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindInputDecode
	KindConfiguration
	KindNumericGuard
)

func (k Kind) String() string {
	switch k {
	case KindInputDecode:
		return "input_decode"
	case KindConfiguration:
		return "configuration"
	case KindNumericGuard:
		return "numeric_guard"
	default:
		return "internal"
	}
}

// Sentinels matched by errors.Is against any *StageError of that kind.
var (
	ErrInputDecode   = errors.New("input decode error")
	ErrConfiguration = errors.New("configuration error")
	ErrNumericGuard  = errors.New("numeric guard error")
	ErrInternal      = errors.New("internal error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindInputDecode:
		return ErrInputDecode
	case KindConfiguration:
		return ErrConfiguration
	case KindNumericGuard:
		return ErrNumericGuard
	default:
		return ErrInternal
	}
}

// StageError reports which stage failed and why. The pipeline never turns
// a StageError into a label.
type StageError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrInputDecode) and friends work.
func (e *StageError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// stageError tags err with stage and a kind derived from the component
// sentinels it wraps.
func stageError(stage Stage, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return &StageError{Stage: stage, Kind: kindOf(err), Err: err}
}

func kindOf(err error) Kind {
	switch {
	case errors.Is(err, transcode.ErrDecode):
		return KindInputDecode
	case errors.Is(err, transcode.ErrDecoderUnavailable),
		errors.Is(err, model.ErrDimensionMismatch),
		errors.Is(err, model.ErrSchemaMismatch),
		errors.Is(err, model.ErrInvalidArtifact):
		return KindConfiguration
	case errors.Is(err, cleaner.ErrNonFinite),
		errors.Is(err, features.ErrNonFinite):
		return KindNumericGuard
	default:
		return KindInternal
	}
}
