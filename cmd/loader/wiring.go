package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/term"

	"github.com/couchcryptid/quake-catalog-loader/internal/adapter/comcat"
	"github.com/couchcryptid/quake-catalog-loader/internal/association"
	"github.com/couchcryptid/quake-catalog-loader/internal/config"
	"github.com/couchcryptid/quake-catalog-loader/internal/dispatch"
	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
	"github.com/couchcryptid/quake-catalog-loader/internal/observability"
	"github.com/couchcryptid/quake-catalog-loader/internal/pipeline"
	"github.com/couchcryptid/quake-catalog-loader/internal/product"
	"github.com/couchcryptid/quake-catalog-loader/internal/tensor"
)

// runFolder is where this configuration's documents live. Keeping it stable
// across runs is what lets later runs skip already rendered events.
func runFolder(c *config.Config, folder string) string {
	if folder == "" {
		folder = c.CatalogSource + "_" + string(c.ProductType)
	}
	return filepath.Join(c.OutputDir, folder)
}

func sessionConfig(c *config.Config) association.Config {
	return association.Config{
		ProductType:      c.ProductType,
		DistanceWindowKm: c.DistanceWindowKm,
		TimeWindow:       c.TimeWindow,
		Catalog:          c.TriggerSource,
		Provenance: domain.Provenance{
			Source:        c.CatalogSource,
			Contributor:   c.Contributor,
			Agency:        c.Agency,
			Author:        c.Author,
			Method:        c.MagnitudeMethod,
			TriggerSource: cmp.Or(c.TriggerSource, c.CatalogSource),
		},
	}
}

// resolutionPolicy builds the configured policy. The interactive policy
// needs a terminal on stdin.
func resolutionPolicy(c *config.Config, in *os.File, out io.Writer) (association.Policy, error) {
	if c.ResolutionPolicy == config.PolicyInteractive {
		if !term.IsTerminal(int(in.Fd())) {
			return nil, errors.New("RESOLUTION_POLICY interactive requires a terminal on stdin")
		}
		return association.NewInteractive(in, out), nil
	}
	mode, err := association.ParseMode(c.ResolutionPolicy)
	if err != nil {
		return nil, err
	}
	return association.Automatic{Mode: mode}, nil
}

// buildEngine wires the catalog client, the document store and the
// distribution client from c.
func buildEngine(c *config.Config, folder string, policy association.Policy, logger *slog.Logger, metrics *observability.Metrics) (*pipeline.Engine, *product.Store, error) {
	store, err := product.NewStore(runFolder(c, folder))
	if err != nil {
		return nil, nil, fmt.Errorf("open output folder: %w", err)
	}

	var finder domain.CandidateFinder
	if c.ProductType.RequiresAssociation() {
		client := comcat.NewClient(c.CatalogURL, c.CatalogTimeout, c.CatalogRate, metrics, logger)
		finder = comcat.NewCachedFinder(client, c.CatalogCacheSize, metrics)
		logger.Info("catalog lookups enabled", "url", c.CatalogURL, "rate", c.CatalogRate, "cache_size", c.CatalogCacheSize)
	}

	var dispatcher dispatch.Dispatcher
	if c.DispatchEnabled {
		dispatcher = dispatch.NewPDL(dispatch.PDLConfig{
			Command:    c.PDLCommand,
			Jar:        c.PDLJar,
			ConfigFile: c.PDLConfig,
			KeyFile:    c.PDLKey,
			Timeout:    c.DispatchTimeout,
		})
		logger.Info("dispatch enabled", "command", c.PDLCommand, "trump", c.DispatchTrump)
	} else {
		logger.Info("dispatch disabled")
	}

	engine := pipeline.NewEngine(pipeline.Options{
		Session:           sessionConfig(c),
		Policy:            policy,
		RenderOrphans:     c.RenderOrphans,
		LookupConcurrency: c.LookupConcurrency,
		Trump:             c.DispatchTrump,
	}, finder, tensor.New(), store, dispatcher, logger, metrics)
	return engine, store, nil
}

// startTracing installs the OTLP tracer provider when the OTEL_* environment
// asks for one. The returned flush exports buffered spans on exit.
func startTracing(ctx context.Context, c *config.Config, logger *slog.Logger) (func(), error) {
	shutdown, err := observability.InitTracing(ctx, "quake-catalog-loader", version)
	if err != nil {
		return nil, err
	}
	if observability.TracingEnabled() {
		logger.Info("exporting traces over OTLP")
	}
	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Error("trace provider shutdown error", "error", err)
		}
	}, nil
}
