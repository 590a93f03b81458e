package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-insect/features"
	"github.com/RyanBlaney/sonido-insect/pipeline"
)

type featureReport struct {
	File          string    `json:"file"`
	SchemaVersion string    `json:"schema_version"`
	Frames        int       `json:"frames"`
	Names         []string  `json:"names"`
	Vector        []float64 `json:"vector"`
}

func newExtractCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the feature vector of a recording",
		Long: `Clean a recording and print its feature vector in schema order.

The model artifacts are not loaded, so this works before a classifier has
been trained.

Examples:
  sonido-insect extract cricket.wav
  sonido-insect extract --format json cricket.wav > cricket.features.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.openExtraction()
			if err != nil {
				return err
			}

			extracted, err := p.ExtractFeatures(cmd.Context(), pipeline.FromFile(args[0]))
			if err != nil {
				return err
			}
			vec, err := p.Extractor().Validate(extracted)
			if err != nil {
				return err
			}

			report := featureReport{
				File:          args[0],
				SchemaVersion: features.SchemaVersion,
				Frames:        extracted.Frames,
				Names:         features.NamesFor(p.Extractor().Config().NumMFCC),
				Vector:        vec,
			}

			w := cmd.OutOrStdout()
			if a.format == formatJSON {
				return writeJSONLine(w, report)
			}

			rows := make([][]string, len(vec))
			for i, v := range vec {
				rows[i] = []string{strconv.Itoa(i), report.Names[i], strconv.FormatFloat(v, 'g', 6, 64)}
			}
			_, err = fmt.Fprintf(w, "%s\n%s\n",
				titleStyle.Render(fmt.Sprintf("%s: %d features, %d frames (%s)", args[0], len(vec), report.Frames, report.SchemaVersion)),
				renderTable([]string{"#", "feature", "value"}, rows))
			return err
		},
	}
}
