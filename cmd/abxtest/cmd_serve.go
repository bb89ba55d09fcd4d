package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/satindergrewal/abxtest/internal/abx"
	"github.com/satindergrewal/abxtest/internal/api"
	"github.com/satindergrewal/abxtest/internal/audio"
	"github.com/satindergrewal/abxtest/internal/config"
	"github.com/satindergrewal/abxtest/internal/metrics"
	"github.com/satindergrewal/abxtest/internal/stream"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	bitrate := audio.Bitrate(cfg.Bitrate)
	if !bitrate.Valid() {
		return fmt.Errorf("ABX_BITRATE %d is not one of %v", cfg.Bitrate, audio.Bitrates)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("abxtest starting up...")

	m := metrics.New()

	pipeline := audio.NewPipeline(cfg.OutputDir, audio.Codec{Complexity: cfg.OpusComplexity}, audio.WAVPersister)
	pipeline.SetObserver(m)

	// Player -> broadcaster -> HTTP and WebRTC listeners
	player := stream.NewPlayer(stream.LoadPlayback)
	broadcaster := stream.NewBroadcaster()
	player.SetFlushFunc(broadcaster.Flush)
	webrtcHandler := stream.NewWebRTCHandler(broadcaster)

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	session := abx.NewSeededSession(seed)
	feed := api.NewFeed()
	coord := abx.NewCoordinator(session, pipeline, player, feed, cfg.Alpha)
	coord.SetRecorder(m)

	if n, ok := abx.MinimumTries(cfg.Alpha); ok {
		log.Printf("At alpha %.3f a perfect run needs at least %d tries", cfg.Alpha, n)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(api.Deps{
			Coordinator:    coord,
			Feed:           feed,
			Player:         player,
			Broadcaster:    broadcaster,
			WebRTC:         webrtcHandler,
			Metrics:        m,
			DefaultBitrate: bitrate,
		}),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { pipeline.Run(ctx); return nil })
	g.Go(func() error { player.Run(ctx); return nil })
	g.Go(func() error { broadcaster.Run(ctx, player.Frames()); return nil })
	g.Go(func() error { coord.Run(ctx); return nil })
	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down...")
		return server.Close()
	})
	g.Go(func() error {
		log.Printf("abxtest live on %s (session %s)", addr, session.ID())
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	return g.Wait()
}

var (
	_ abx.Player    = (*stream.Player)(nil)
	_ abx.Presenter = (*api.Feed)(nil)
	_ abx.Recorder  = (*metrics.Metrics)(nil)
)
