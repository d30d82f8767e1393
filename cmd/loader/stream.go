package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/quake-catalog-loader/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/quake-catalog-loader/internal/adapter/kafka"
	"github.com/couchcryptid/quake-catalog-loader/internal/association"
	"github.com/couchcryptid/quake-catalog-loader/internal/observability"
	"github.com/couchcryptid/quake-catalog-loader/internal/pipeline"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Consume normalized events from Kafka and publish per-event reports",
	Long: `Run as a service: read normalized events from KAFKA_SOURCE_TOPIC in
batches, assemble products for each batch and publish one report per event
to KAFKA_SINK_TOPIC. Offsets are committed only after the reports are
published. Health, readiness, metrics and the last batch summary are served
on HTTP_ADDR.`,
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)
}

func runStream(cmd *cobra.Command, _ []string) error {
	if err := cfg.ValidateStream(); err != nil {
		return err
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	flushTraces, err := startTracing(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer flushTraces()

	mode, err := association.ParseMode(cfg.ResolutionPolicy)
	if err != nil {
		return err
	}
	engine, _, err := buildEngine(cfg, flagFolder, association.Automatic{Mode: mode}, logger, metrics)
	if err != nil {
		return err
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	p := pipeline.New(reader, engine, writer, uuid.NewString, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
