package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-insect/pipeline"
	"github.com/RyanBlaney/sonido-insect/transcode"
)

type cleanReport struct {
	Input      string  `json:"input"`
	Output     string  `json:"output"`
	SampleRate int     `json:"sample_rate"`
	Samples    int     `json:"samples"`
	Duration   float64 `json:"duration_s"`
	TrimStart  int     `json:"trim_start"`
	TrimEnd    int     `json:"trim_end"`
}

func newCleanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clean <in> <out.wav>",
		Short: "Write the cleaned waveform of a recording",
		Long: `Run the cleaning stage (trim, high-pass, spectral gate, normalize, fix
length) and write the result as a 16-bit mono WAV.

Examples:
  sonido-insect clean field-01.mp3 field-01.clean.wav`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.openExtraction()
			if err != nil {
				return err
			}

			buf, err := p.Clean(cmd.Context(), pipeline.FromFile(args[0]))
			if err != nil {
				return err
			}
			if err := transcode.WriteWAV(args[1], buf.Samples, buf.SampleRate); err != nil {
				return fmt.Errorf("writing %s: %w", args[1], err)
			}

			report := cleanReport{
				Input:      args[0],
				Output:     args[1],
				SampleRate: buf.SampleRate,
				Samples:    len(buf.Samples),
				Duration:   buf.Duration().Seconds(),
				TrimStart:  buf.TrimStart,
				TrimEnd:    buf.TrimEnd,
			}

			w := cmd.OutOrStdout()
			if a.format == formatJSON {
				return writeJSONLine(w, report)
			}
			_, err = fmt.Fprintln(w, renderTable([]string{"input", "output", "samples", "rate", "trimmed span"}, [][]string{{
				report.Input,
				report.Output,
				strconv.Itoa(report.Samples),
				strconv.Itoa(report.SampleRate),
				fmt.Sprintf("[%d, %d)", report.TrimStart, report.TrimEnd),
			}}))
			return err
		},
	}
}
