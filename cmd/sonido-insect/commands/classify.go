package commands

import (
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-insect/pipeline"
)

func newClassifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <file>...",
		Short: "Classify one or more recordings",
		Long: `Classify each recording and print its label and class probabilities.

Any audio format ffmpeg can read is accepted; PCM WAV files are decoded
natively. A failed file is reported with the stage and kind of the
failure and never receives a label.

Examples:
  sonido-insect classify cricket.wav
  sonido-insect classify --format json a.wav b.mp3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, release, err := a.openPipeline(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer release()

			results := make([]result, 0, len(args))
			for _, path := range args {
				pred, err := p.Predict(cmd.Context(), pipeline.FromFile(path))
				results = append(results, newResult(path, pred, err))
			}

			if err := writeResults(cmd.OutOrStdout(), a.format, results); err != nil {
				return err
			}
			return failures(results)
		},
	}
}
