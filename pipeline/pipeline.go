// Package pipeline composes cleaning, feature extraction, scaling and
// classification into one synchronous call.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/RyanBlaney/sonido-insect/cache"
	"github.com/RyanBlaney/sonido-insect/cleaner"
	"github.com/RyanBlaney/sonido-insect/features"
	"github.com/RyanBlaney/sonido-insect/logging"
	"github.com/RyanBlaney/sonido-insect/metrics"
	"github.com/RyanBlaney/sonido-insect/model"
	"github.com/RyanBlaney/sonido-insect/transcode"
)

var errNoBundle = errors.New("no model bundle")

// Config holds the per-stage configuration.
type Config struct {
	Cleaner  cleaner.Config          `json:"cleaner"`
	Features features.Config         `json:"features"`
	Decoder  transcode.DecoderConfig `json:"decoder"`

	// MaterializeCleaned writes the cleaned buffer to a 16-bit WAV and
	// extracts features from the file read back, reproducing the
	// quantization the artifacts were trained with.
	MaterializeCleaned bool `json:"materialize_cleaned"`

	// TempDir is the parent of the per-invocation directories. Empty means
	// os.TempDir().
	TempDir string `json:"temp_dir"`

	// CheckDecoder runs ffmpeg and ffprobe once when the pipeline is built,
	// so a missing install fails at startup rather than on the first
	// compressed input.
	CheckDecoder bool `json:"check_decoder"`
}

// DefaultConfig returns the configuration the v1 artifacts expect.
func DefaultConfig() Config {
	return Config{
		Cleaner:            cleaner.DefaultConfig(),
		Features:           features.DefaultConfig(),
		Decoder:            *transcode.DefaultDecoderConfig(),
		MaterializeCleaned: true,
		CheckDecoder:       true,
	}
}

// Input is one recording, either on disk or in memory.
type Input struct {
	Path string
	Data []byte
	Name string
}

// FromFile references a recording on disk.
func FromFile(path string) Input {
	return Input{Path: path, Name: path}
}

// FromBytes wraps an in-memory encoded recording. name is only used in
// logs and reports.
func FromBytes(name string, data []byte) Input {
	return Input{Data: data, Name: name}
}

// Prediction is the outcome of one successful pipeline run.
type Prediction struct {
	Label         string                  `json:"label"`
	ClassID       int                     `json:"class_id"`
	Probabilities map[string]float64      `json:"probabilities"`
	InvocationID  string                  `json:"invocation_id"`
	Source        string                  `json:"source"`
	Cached        bool                    `json:"cached"`
	Durations     map[Stage]time.Duration `json:"durations"`
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithCache serves repeated inputs from c.
func WithCache(c cache.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithMetrics records stage timings and outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLoader replaces the audio loader, e.g. to point at another ffmpeg.
func WithLoader(l *transcode.Loader) Option {
	return func(p *Pipeline) { p.loader = l }
}

// Pipeline is the immutable inference context. It is built once at startup
// and may serve any number of concurrent Predict calls.
type Pipeline struct {
	config     Config
	cleaner    *cleaner.Cleaner
	extractor  *features.Extractor
	scaler     model.Scaler
	classifier model.Classifier
	encoder    model.Encoder
	bundle     *model.Bundle
	settings   string

	loader  *transcode.Loader
	cache   cache.Cache
	metrics *metrics.Metrics
	logger  logging.Logger
}

// New builds a pipeline and verifies that the extractor and the artifacts
// agree on the feature dimension before any call is accepted.
func New(config Config, bundle *model.Bundle, opts ...Option) (*Pipeline, error) {
	if bundle == nil {
		return nil, &StageError{Stage: StageLoad, Kind: KindConfiguration, Err: errNoBundle}
	}

	p, err := NewExtraction(config, opts...)
	if err != nil {
		return nil, err
	}
	p.scaler = bundle.Scaler
	p.classifier = bundle.Classifier
	p.encoder = bundle.Encoder
	p.bundle = bundle

	if dim := p.extractor.Dimension(); dim != p.scaler.Dimension() || dim != p.classifier.NumFeatures() {
		return nil, &StageError{Stage: StageLoad, Kind: KindConfiguration, Err: fmt.Errorf(
			"%w: extractor produces %d features, scaler expects %d, classifier expects %d",
			model.ErrDimensionMismatch, dim, p.scaler.Dimension(), p.classifier.NumFeatures())}
	}
	if p.encoder.Len() != p.classifier.NumClasses() {
		return nil, &StageError{Stage: StageLoad, Kind: KindConfiguration, Err: fmt.Errorf(
			"%w: encoder has %d classes, classifier has %d", model.ErrInvalidArtifact, p.encoder.Len(), p.classifier.NumClasses())}
	}

	return p, nil
}

// NewExtraction builds a pipeline without model artifacts. It serves Clean
// and ExtractFeatures; Predict fails with a configuration error.
func NewExtraction(config Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "pipeline",
		}),
	}
	for _, opt := range opts {
		opt(p)
	}

	if config.Cleaner.SampleRate != config.Features.SampleRate {
		return nil, &StageError{Stage: StageLoad, Kind: KindConfiguration, Err: fmt.Errorf(
			"cleaner rate %d Hz differs from feature rate %d Hz", config.Cleaner.SampleRate, config.Features.SampleRate)}
	}

	if p.loader == nil {
		decoder := config.Decoder
		decoder.TargetSampleRate = config.Cleaner.SampleRate
		decoder.TargetChannels = 1
		dec := transcode.NewDecoder(&decoder)
		if err := dec.ValidateConfig(); err != nil {
			return nil, &StageError{Stage: StageLoad, Kind: KindConfiguration, Err: err}
		}
		if config.CheckDecoder {
			if err := dec.CheckAvailability(context.Background()); err != nil {
				return nil, &StageError{Stage: StageLoad, Kind: KindConfiguration, Err: err}
			}
		}
		p.loader = transcode.NewLoader(dec, config.Cleaner.SampleRate)
	}

	var err error
	if p.settings, err = settingsDigest(config); err != nil {
		return nil, &StageError{Stage: StageLoad, Kind: KindConfiguration, Err: err}
	}
	if p.cleaner, err = cleaner.New(config.Cleaner, p.loader); err != nil {
		return nil, &StageError{Stage: StageLoad, Kind: KindConfiguration, Err: err}
	}
	if p.extractor, err = features.NewExtractor(config.Features); err != nil {
		return nil, &StageError{Stage: StageLoad, Kind: KindConfiguration, Err: err}
	}
	return p, nil
}

// settingsDigest hashes the configuration that shapes the feature vector.
// Paths, timeouts and the decoder check do not change the output and are
// left out.
func settingsDigest(config Config) (string, error) {
	data, err := json.Marshal(struct {
		Cleaner            cleaner.Config  `json:"cleaner"`
		Features           features.Config `json:"features"`
		MaterializeCleaned bool            `json:"materialize_cleaned"`
		ResampleQuality    string          `json:"resample_quality"`
		MaxDuration        time.Duration   `json:"max_duration"`
	}{
		Cleaner:            config.Cleaner,
		Features:           config.Features,
		MaterializeCleaned: config.MaterializeCleaned,
		ResampleQuality:    config.Decoder.ResampleQuality,
		MaxDuration:        config.Decoder.MaxDuration,
	})
	if err != nil {
		return "", fmt.Errorf("hashing stage configuration: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Config returns the stage configuration.
func (p *Pipeline) Config() Config {
	return p.config
}

// Bundle returns the artifacts the pipeline scores with, or nil for an
// extraction-only pipeline.
func (p *Pipeline) Bundle() *model.Bundle {
	return p.bundle
}

// Extractor returns the feature extractor.
func (p *Pipeline) Extractor() *features.Extractor {
	return p.extractor
}

// invocation carries the per-call state of one run.
type invocation struct {
	id        string
	ctx       context.Context
	logger    logging.Logger
	durations map[Stage]time.Duration
	tempDir   string
}

func (p *Pipeline) begin(ctx context.Context, in Input) *invocation {
	id := uuid.NewString()
	ctx = logging.ContextWithFields(ctx, logging.Fields{"invocation_id": id})
	return &invocation{
		id:        id,
		ctx:       ctx,
		logger:    p.logger.WithContext(ctx).WithFields(logging.Fields{"source": in.Name}),
		durations: make(map[Stage]time.Duration),
	}
}

// release removes the invocation's temporary directory, if one was made.
func (inv *invocation) release() {
	if inv.tempDir == "" {
		return
	}
	if err := os.RemoveAll(inv.tempDir); err != nil {
		inv.logger.Warn("Failed to remove temporary directory", logging.Fields{
			"dir":   inv.tempDir,
			"error": err.Error(),
		})
	}
	inv.tempDir = ""
}

// run times fn as stage and tags any error it returns.
func (p *Pipeline) run(inv *invocation, stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	inv.durations[stage] += elapsed

	if p.metrics != nil {
		p.metrics.RecordStage(string(stage), elapsed)
	}
	if err == nil {
		return nil
	}

	se := stageError(stage, err)
	if p.metrics != nil {
		p.metrics.RecordFailure(string(se.Stage), se.Kind.String())
	}
	inv.logger.Error(se.Err, "Pipeline stage failed", logging.Fields{
		"stage": se.Stage,
		"kind":  se.Kind.String(),
	})
	return se
}

// Predict runs clean, extract, preprocess, classify and decode on in. Any
// failure is returned as a *StageError and no label is produced.
func (p *Pipeline) Predict(ctx context.Context, in Input) (*Prediction, error) {
	if p.bundle == nil {
		return nil, &StageError{Stage: StageLoad, Kind: KindConfiguration, Err: errNoBundle}
	}

	start := time.Now()
	inv := p.begin(ctx, in)
	defer inv.release()

	var cacheKey string
	if p.cache != nil {
		if err := p.run(inv, StageLoad, func() error {
			return p.readInput(&in)
		}); err != nil {
			return nil, err
		}
		cacheKey = cache.Key(in.Data, p.bundle.SchemaVersion, p.bundle.Fingerprint, p.settings)
		if pred := p.lookup(inv, cacheKey, in); pred != nil {
			return pred, nil
		}
	}

	vec, _, err := p.extract(inv, in)
	if err != nil {
		return nil, err
	}

	var scaled *mat.Dense
	if err := p.run(inv, StagePreprocess, func() error {
		var err error
		scaled, err = p.scaler.Transform(vec)
		return err
	}); err != nil {
		return nil, err
	}

	var classID int
	var proba *mat.Dense
	if err := p.run(inv, StageClassify, func() error {
		ids, err := p.classifier.Predict(scaled)
		if err != nil {
			return err
		}
		classID = ids[0]
		proba, err = p.classifier.PredictProba(scaled)
		return err
	}); err != nil {
		return nil, err
	}

	pred := &Prediction{
		ClassID:       classID,
		InvocationID:  inv.id,
		Source:        in.Name,
		Durations:     inv.durations,
		Probabilities: make(map[string]float64, p.encoder.Len()),
	}
	if err := p.run(inv, StageDecode, func() error {
		var err error
		if pred.Label, err = p.encoder.Decode(classID); err != nil {
			return err
		}
		for id, prob := range proba.RawRowView(0) {
			label, err := p.encoder.Decode(id)
			if err != nil {
				return err
			}
			pred.Probabilities[label] = prob
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.RecordPrediction(pred.Label, time.Since(start))
	}
	if p.cache != nil {
		p.store(inv, cacheKey, pred)
	}

	inv.logger.Info("Prediction complete", logging.Fields{
		"label":    pred.Label,
		"class_id": pred.ClassID,
		"elapsed":  time.Since(start).String(),
	})
	return pred, nil
}

// ExtractFeatures runs the cleaning and extraction stages only.
func (p *Pipeline) ExtractFeatures(ctx context.Context, in Input) (*features.ExtractedFeatures, error) {
	inv := p.begin(ctx, in)
	defer inv.release()

	_, extracted, err := p.extract(inv, in)
	return extracted, err
}

// Clean runs the cleaning stage only.
func (p *Pipeline) Clean(ctx context.Context, in Input) (*cleaner.Buffer, error) {
	inv := p.begin(ctx, in)
	defer inv.release()

	return p.clean(inv, in)
}

func (p *Pipeline) readInput(in *Input) error {
	if in.Data != nil || in.Path == "" {
		return nil
	}
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", transcode.ErrDecode, in.Path, err)
	}
	in.Data = data
	return nil
}

func (p *Pipeline) clean(inv *invocation, in Input) (*cleaner.Buffer, error) {
	var buf *cleaner.Buffer
	err := p.run(inv, StageClean, func() error {
		var err error
		if in.Data != nil || in.Path == "" {
			buf, err = p.cleaner.CleanBytes(inv.ctx, in.Data)
		} else {
			buf, err = p.cleaner.CleanFile(inv.ctx, in.Path)
		}
		if err != nil {
			return err
		}
		if p.config.MaterializeCleaned {
			buf, err = p.materialize(inv, buf)
		}
		return err
	})
	return buf, err
}

// materialize writes buf into the invocation's temporary directory and
// returns the buffer read back from disk.
func (p *Pipeline) materialize(inv *invocation, buf *cleaner.Buffer) (*cleaner.Buffer, error) {
	dir, err := os.MkdirTemp(p.config.TempDir, "sonido-insect-"+inv.id+"-")
	if err != nil {
		return nil, fmt.Errorf("creating temporary directory: %w", err)
	}
	inv.tempDir = dir

	path, err := p.cleaner.Materialize(buf, dir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading materialized audio: %w", err)
	}
	audio, err := transcode.ReadWAV(data)
	if err != nil {
		// The file was written by us; a decode failure here is not the
		// caller's input problem.
		return nil, fmt.Errorf("re-reading materialized audio: %v", err)
	}

	inv.logger.Debug("Cleaned audio materialized", logging.Fields{
		"path":    path,
		"samples": len(audio.PCM),
	})

	return &cleaner.Buffer{
		Samples:    audio.PCM,
		SampleRate: audio.SampleRate,
		TrimStart:  buf.TrimStart,
		TrimEnd:    buf.TrimEnd,
		Source:     buf.Source,
	}, nil
}

func (p *Pipeline) extract(inv *invocation, in Input) ([]float64, *features.ExtractedFeatures, error) {
	buf, err := p.clean(inv, in)
	if err != nil {
		return nil, nil, err
	}

	var vec []float64
	var extracted *features.ExtractedFeatures
	err = p.run(inv, StageExtract, func() error {
		var err error
		if extracted, err = p.extractor.ExtractFeatures(inv.ctx, buf.Samples); err != nil {
			return err
		}
		vec, err = p.extractor.Validate(extracted)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return vec, extracted, nil
}

func (p *Pipeline) lookup(inv *invocation, key string, in Input) *Prediction {
	entry, err := p.cache.Get(inv.ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			inv.logger.Warn("Cache lookup failed", logging.Fields{"error": err.Error()})
		}
		if p.metrics != nil {
			p.metrics.RecordCache(false)
		}
		return nil
	}
	if p.metrics != nil {
		p.metrics.RecordCache(true)
	}

	probabilities := make(map[string]float64, len(entry.Probabilities))
	for id, prob := range entry.Probabilities {
		if label, err := p.encoder.Decode(id); err == nil {
			probabilities[label] = prob
		}
	}
	inv.logger.Debug("Prediction served from cache", logging.Fields{"label": entry.Label})
	return &Prediction{
		Label:         entry.Label,
		ClassID:       entry.ClassID,
		Probabilities: probabilities,
		InvocationID:  inv.id,
		Source:        in.Name,
		Cached:        true,
		Durations:     inv.durations,
	}
}

func (p *Pipeline) store(inv *invocation, key string, pred *Prediction) {
	probabilities := make([]float64, p.encoder.Len())
	for id := range probabilities {
		if label, err := p.encoder.Decode(id); err == nil {
			probabilities[id] = pred.Probabilities[label]
		}
	}
	err := p.cache.Put(inv.ctx, key, &cache.Entry{
		Label:         pred.Label,
		ClassID:       pred.ClassID,
		Probabilities: probabilities,
		SchemaVersion: p.bundle.SchemaVersion,
		Fingerprint:   p.bundle.Fingerprint,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		inv.logger.Warn("Cache store failed", logging.Fields{"error": err.Error()})
	}
}
