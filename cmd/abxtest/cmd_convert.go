package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/abxtest/internal/audio"
	"github.com/satindergrewal/abxtest/internal/config"
)

// runConvert performs one conversion without the listening test.
func runConvert(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	bitrate, err := audio.ParseBitrate(convertBitrate)
	if err != nil {
		return err
	}
	outDir := convertOutDir
	if outDir == "" {
		outDir = cfg.OutputDir
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pipeline := audio.NewPipeline(outDir, audio.Codec{Complexity: cfg.OpusComplexity}, audio.WAVPersister)
	return convertFile(ctx, pipeline, args[0], bitrate, cmd.OutOrStdout())
}

func convertFile(ctx context.Context, pipeline *audio.Pipeline, path string, bitrate audio.Bitrate, out io.Writer) error {
	src, err := pipeline.Open(ctx, path)
	if err != nil {
		return err
	}
	log.Printf("Converting %s at %s...", src.Name, bitrate)
	pair, err := pipeline.Convert(ctx, src, bitrate)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "converted: %s\n", pair.ConvertedPath)
	fmt.Fprintf(out, "residual:  %s (peak %.4f)\n", pair.MixedPath, pair.Mixed.Peak())
	return nil
}
