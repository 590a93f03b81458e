package commands

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-insect/logging"
	"github.com/RyanBlaney/sonido-insect/metrics"
	"github.com/RyanBlaney/sonido-insect/pipeline"
)

// audioExtensions are the file types batch picks up.
var audioExtensions = map[string]bool{
	".wav":  true,
	".wave": true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
	".m4a":  true,
	".aac":  true,
	".aif":  true,
	".aiff": true,
}

func newBatchCmd(a *app) *cobra.Command {
	var (
		workers     int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Classify every recording under a directory",
		Long: `Walk a directory, classify every audio file found and print one result
per file followed by a per-label summary.

With --metrics-addr, Prometheus metrics are served on /metrics while the
batch runs.

Examples:
  sonido-insect batch recordings/
  sonido-insect batch --workers 8 --format json recordings/ > results.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			files, err := findAudio(args[0])
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no audio files under %s", args[0])
			}

			if metricsAddr == "" && a.cfg.Metrics.Enabled {
				metricsAddr = a.cfg.Metrics.Addr
			}
			var m *metrics.Metrics
			if metricsAddr != "" {
				m = metrics.New()
				serveCtx, stop := context.WithCancel(ctx)
				defer stop()
				go func() {
					if err := m.Serve(serveCtx, metricsAddr); err != nil {
						logging.Error(err, "Metrics server failed", logging.Fields{"addr": metricsAddr})
					}
				}()
			}

			p, release, err := a.openPipeline(ctx, m)
			if err != nil {
				return err
			}
			defer release()

			results := classifyAll(ctx, p, files, workers)

			w := cmd.OutOrStdout()
			if err := writeResults(w, a.format, results); err != nil {
				return err
			}
			if a.format == formatTable {
				if err := writeSummary(w, results); err != nil {
					return err
				}
			}
			return failures(results)
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "number of recordings classified concurrently")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (default: metrics.addr when metrics.enabled)")
	return cmd
}

// findAudio lists audio files under root in lexical order.
func findAudio(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if audioExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}

// classifyAll runs Predict over files with at most workers in flight. A
// failed file never stops the others; results keep the order of files.
func classifyAll(ctx context.Context, p *pipeline.Pipeline, files []string, workers int) []result {
	results := make([]result, len(files))

	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for i, path := range files {
		g.Go(func() error {
			pred, err := p.Predict(ctx, pipeline.FromFile(path))
			results[i] = newResult(path, pred, err)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
