package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-insect/features"
	"github.com/RyanBlaney/sonido-insect/model"
)

type artifactReport struct {
	SchemaVersion    string              `json:"schema_version"`
	ExtractorVersion string              `json:"extractor_schema_version"`
	Dimension        int                 `json:"dimension"`
	Classes          []string            `json:"classes"`
	Objective        string              `json:"objective"`
	Trees            int                 `json:"trees"`
	Fingerprint      string              `json:"fingerprint"`
	Sources          model.ArtifactPaths `json:"sources"`
	Drift            []string            `json:"catalog_drift,omitempty"`
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Report on the loaded model artifacts",
		Long: `Load the scaler, encoder and classifier, cross-check them against the
feature extractor and print what was loaded. Exits non-zero when the
artifacts cannot serve this build.

Examples:
  sonido-insect inspect
  SONIDO_ARTIFACTS_BACKEND=s3 SONIDO_ARTIFACTS_BUCKET=models sonido-insect inspect`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.openBundle(cmd.Context())
			if err != nil {
				return err
			}

			report := artifactReport{
				SchemaVersion:    b.SchemaVersion,
				ExtractorVersion: features.SchemaVersion,
				Dimension:        b.Scaler.Dimension(),
				Classes:          b.Encoder.Classes(),
				Objective:        b.Classifier.Objective(),
				Trees:            b.Classifier.NumTrees(),
				Fingerprint:      b.Fingerprint,
				Sources:          b.Sources,
				Drift:            model.CatalogDrift(b.Encoder),
			}

			w := cmd.OutOrStdout()
			if a.format == formatJSON {
				return writeJSONLine(w, report)
			}

			drift := "none"
			if len(report.Drift) > 0 {
				drift = strings.Join(report.Drift, "; ")
			}
			rows := [][]string{
				{"schema version", report.SchemaVersion},
				{"dimension", strconv.Itoa(report.Dimension)},
				{"objective", report.Objective},
				{"trees", strconv.Itoa(report.Trees)},
				{"classes", strings.Join(report.Classes, ", ")},
				{"catalog drift", drift},
				{"fingerprint", report.Fingerprint},
				{"classifier", report.Sources.Classifier},
				{"encoder", report.Sources.Encoder},
				{"scaler", report.Sources.Scaler},
			}
			_, err = fmt.Fprintln(w, renderTable([]string{"artifact", "value"}, rows))
			return err
		},
	}
}
