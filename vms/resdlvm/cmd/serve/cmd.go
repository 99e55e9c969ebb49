// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package serve

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/log"
	"github.com/luxfi/metric"
)

const shutdownTimeout = 5 * time.Second

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Runs a primary ledger and its secondary ledgers",
		RunE:  serveFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func serveFunc(c *cobra.Command, args []string) error {
	config, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := log.NewLogger("resdl")
	registry := metric.NewRegistry()
	node, err := NewNode(ctx, logger, config.Primary, config.Secondary, config.Secondaries, registry)
	if err != nil {
		return err
	}

	gatherer, err := newGatherer(registry)
	if err != nil {
		return errors.Join(err, node.Shutdown(ctx))
	}

	routes, err := node.Handlers(ctx)
	if err != nil {
		return errors.Join(err, node.Shutdown(ctx))
	}
	server := &http.Server{
		Addr:              config.HTTPAddress,
		Handler:           newHandler(routes, gatherer, config.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving API",
			log.String("address", config.HTTPAddress),
			log.Int("secondaries", config.Secondaries),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return node.Run(ctx)
	})

	err = g.Wait()
	logger.Info("shutting down")
	return errors.Join(err, node.Shutdown(context.Background()))
}

// newHandler routes the ledger APIs and the metrics endpoint.
func newHandler(routes map[string]http.Handler, gatherer prometheus.Gatherer, allowedOrigins []string) http.Handler {
	router := mux.NewRouter()
	for route, handler := range routes {
		router.Handle(route, handler)
	}
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
	}).Handler(router)
}

// newGatherer exposes the ledger metrics next to the process metrics.
func newGatherer(registry metric.Registerer) (prometheus.Gatherer, error) {
	processRegistry := prometheus.NewRegistry()
	if err := processRegistry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	if err := processRegistry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}

	gatherers := prometheus.Gatherers{processRegistry}
	if ledgerGatherer, ok := any(registry).(metric.Gatherer); ok {
		gatherers = append(gatherers, prometheus.GathererFunc(func() ([]*dto.MetricFamily, error) {
			families, err := ledgerGatherer.Gather()
			return metric.NativeToDTO(families), err
		}))
	}
	return gatherers, nil
}
