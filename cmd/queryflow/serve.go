//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-query-go/knowledge/query/pipeline"
	"trpc.group/trpc-go/trpc-query-go/log"
	"trpc.group/trpc-go/trpc-query-go/server/httpapi"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr    string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			handler, release, err := newHandler(a, opts, workers)
			if err != nil {
				return err
			}
			defer release()
			return serve(ctx, addr, handler)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().IntVar(&workers, "workers", 0, "bound concurrent pipeline runs; 0 runs each on its request goroutine")
	return cmd
}

// newHandler mounts the transform API and the Prometheus metrics.
func newHandler(a *app, opts *rootOptions, workers int) (http.Handler, func(), error) {
	apiOpts := []httpapi.Option{httpapi.WithDefaultScope(opts.scope)}
	release := func() {}
	if workers > 0 {
		pool, err := pipeline.NewPool(a.pipeline, workers)
		if err != nil {
			return nil, nil, err
		}
		apiOpts = append(apiOpts, httpapi.WithPool(pool))
		release = pool.Release
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.Handle("/", httpapi.New(a.pipeline, a.cfg, apiOpts...).Handler())
	return mux, release, nil
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("queryflow listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	log.Infof("queryflow shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
