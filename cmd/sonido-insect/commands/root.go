// Package commands implements the sonido-insect command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-insect/config"
	"github.com/RyanBlaney/sonido-insect/features"
	"github.com/RyanBlaney/sonido-insect/logging"
	"github.com/RyanBlaney/sonido-insect/metrics"
	"github.com/RyanBlaney/sonido-insect/model"
	"github.com/RyanBlaney/sonido-insect/pipeline"
)

// app holds the global flags and the configuration they resolve to.
type app struct {
	configFile string
	envFile    string
	logLevel   string
	format     string

	cfg *config.Config
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "sonido-insect",
		Short: "Classify insect sounds from audio recordings",
		Long: `sonido-insect cleans a recording, extracts its acoustic descriptors and
scores them with a pre-trained gradient-boosted classifier.

Configuration is read from sonido-insect.yaml in the working directory (or
--config), a .env file and SONIDO_* environment variables, e.g.
SONIDO_ARTIFACTS_DIR=/srv/models.

Examples:
  sonido-insect classify cricket.wav
  sonido-insect extract --format json field-01.flac
  sonido-insect batch --workers 8 --metrics-addr :9090 recordings/`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file (default: ./sonido-insect.yaml)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "env file to load (default: ./.env when present)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	root.PersistentFlags().StringVarP(&a.format, "format", "o", "", "output format: table or json (default: table on a terminal)")

	root.AddCommand(
		newClassifyCmd(a),
		newExtractCmd(a),
		newCleanCmd(a),
		newInspectCmd(a),
		newBatchCmd(a),
	)
	return root
}

// setup loads the configuration and points logging at stderr, so stdout only
// carries command output.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.Options{ConfigFile: a.configFile, EnvFile: a.envFile})
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	errOut := cmd.ErrOrStderr()
	logging.SetGlobalLogger(logging.NewDefaultLoggerTo(errOut, errOut))
	if cfg.Log.Color == "auto" && isTerminal(errOut) {
		logging.EnableColors()
	}
	cfg.ApplyLogging()

	switch a.format {
	case "":
		a.format = formatJSON
		if isTerminal(cmd.OutOrStdout()) {
			a.format = formatTable
		}
	case formatJSON, formatTable:
	default:
		return fmt.Errorf("unsupported output format %q, use table or json", a.format)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// openBundle loads the model artifacts the configuration points at.
func (a *app) openBundle(ctx context.Context) (*model.Bundle, error) {
	store, err := a.cfg.OpenStore(ctx)
	if err != nil {
		return nil, err
	}
	pc := a.cfg.PipelineConfig()
	return model.LoadBundle(ctx, store, a.cfg.ArtifactPaths(),
		model.ExpectSchema(features.SchemaVersion, pc.Features.Dimension()))
}

// openPipeline builds a scoring pipeline. The returned func releases the
// cache, if one was opened.
func (a *app) openPipeline(ctx context.Context, m *metrics.Metrics) (*pipeline.Pipeline, func(), error) {
	bundle, err := a.openBundle(ctx)
	if err != nil {
		return nil, nil, err
	}

	opts := []pipeline.Option{}
	if m != nil {
		opts = append(opts, pipeline.WithMetrics(m))
	}
	release := func() {}
	c, err := a.cfg.OpenCache()
	if err != nil {
		return nil, nil, err
	}
	if c != nil {
		opts = append(opts, pipeline.WithCache(c))
		release = func() {
			if err := c.Close(); err != nil {
				logging.Warn("Failed to close prediction cache", logging.Fields{"error": err.Error()})
			}
		}
	}

	p, err := pipeline.New(a.cfg.PipelineConfig(), bundle, opts...)
	if err != nil {
		release()
		return nil, nil, err
	}
	return p, release, nil
}

// openExtraction builds a pipeline that never touches the artifacts.
func (a *app) openExtraction() (*pipeline.Pipeline, error) {
	return pipeline.NewExtraction(a.cfg.PipelineConfig())
}
