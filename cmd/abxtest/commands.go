package main

import (
	"github.com/spf13/cobra"
)

var (
	convertBitrate string
	convertOutDir  string

	rootCmd = &cobra.Command{
		Use:   "abxtest",
		Short: "Blind ABX listening test for lossy audio encoding",
		Long: `abxtest converts a file to a lossy copy at a chosen bitrate and runs
a blind ABX test between the two, scored with an exact binomial test.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the listening test web page",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	convertCmd = &cobra.Command{
		Use:   "convert [file]",
		Short: "Write the lossy copy and the phase-inverted residual of a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runConvert, // Defined in cmd_convert.go
	}

	pvalueCmd = &cobra.Command{
		Use:   "pvalue [correct] [tries]",
		Short: "Print the one-sided binomial p-value of an ABX score",
		Args:  cobra.ExactArgs(2),
		RunE:  runPValue, // Defined in cmd_pvalue.go
	}
)

func init() {
	convertCmd.Flags().StringVarP(&convertBitrate, "bitrate", "b", "165", "lossy bitrate in kbit/s (65, 100, 165, 225, 320)")
	convertCmd.Flags().StringVarP(&convertOutDir, "out", "o", "", "artifact directory (default $ABX_OUTPUT_DIR)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(pvalueCmd)
}
