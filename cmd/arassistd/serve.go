package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/szaher/arassist/internal/assist"
	"github.com/szaher/arassist/internal/config"
	"github.com/szaher/arassist/internal/events"
	"github.com/szaher/arassist/internal/llm"
	"github.com/szaher/arassist/internal/retention"
	"github.com/szaher/arassist/internal/server"
	"github.com/szaher/arassist/internal/session"
	"github.com/szaher/arassist/internal/speech"
	"github.com/szaher/arassist/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		addr       string
		contextDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnvFile()
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if contextDir != "" {
				cfg.ContextDir = contextDir
			}

			level := cfg.SlogLevel()
			if verbose {
				level = slog.LevelDebug
			}
			logger := telemetry.NewLogger(os.Stdout, level)
			slog.SetDefault(logger)

			return serve(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&contextDir, "context-dir", "", "Session record directory (overrides config)")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	assistClient, assistModel, err := llm.NewClientForModel(ctx, cfg.AssistModel, cfg.GeminiAPIKey)
	if err != nil {
		return err
	}
	followClient, followModel, err := llm.NewClientForModel(ctx, cfg.FollowUpModel, cfg.GeminiAPIKey)
	if err != nil {
		return err
	}

	store := session.NewFileStore(cfg.ContextDir)
	metrics := telemetry.NewMetrics()

	// The assist pipeline retries once on inference failure; follow-up
	// calls report failures directly.
	retryPolicy := llm.DefaultRetryPolicy
	retryPolicy.OnRetry = metrics.RecordInferenceRetry
	emitter := events.NewLogEmitter(logger)
	pipeline := assist.NewPipeline(
		llm.WithRetry(assistClient, retryPolicy, logger),
		store,
		assist.WithLogger(logger),
		assist.WithEmitter(emitter),
		assist.WithModel(assistModel),
	)
	followUp := assist.NewFollowUp(
		followClient,
		store,
		assist.WithLogger(logger),
		assist.WithEmitter(emitter),
		assist.WithModel(followModel),
	)

	opts := []server.ServerOption{
		server.WithAPIKey(cfg.APIKey),
		server.WithLogger(logger),
		server.WithMetrics(metrics),
	}
	if cfg.GeminiAPIKey != "" {
		transcriber, err := speech.NewGeminiTranscriber(ctx, cfg.GeminiAPIKey, cfg.TranscribeModel)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithTranscriber(transcriber))
	} else {
		logger.Warn("GEMINI_API_KEY not set, voice follow-up disabled")
	}

	srv := server.NewServer(pipeline, followUp, opts...)

	sweeper := retention.NewSweeper(cfg.ContextDir, cfg.SessionTTL(), logger)
	if err := sweeper.Start(cfg.RetentionSchedule); err != nil {
		return err
	}
	defer sweeper.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
