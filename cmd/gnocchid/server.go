// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lawrancejing/gnocchi/internal/api"
	"github.com/lawrancejing/gnocchi/internal/config"
	"github.com/lawrancejing/gnocchi/internal/indexer"
	"github.com/lawrancejing/gnocchi/internal/storage"
)

var (
	router *mux.Router
	server *http.Server
)

func serverInit(index *indexer.MetricRepository, proc *storage.Processor) {
	apiHandle := api.New(index, proc)

	router = mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthcheck", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	apiHandle.MountRoutes(router)

	router.Use(handlers.CompressHandler)
	router.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
}

func serverStart() {
	handler := handlers.CustomLoggingHandler(io.Discard, router, func(_ io.Writer, params handlers.LogFormatterParams) {
		cclog.Debugf("%s %s (%d, %.02fkb, %dms)",
			params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, float32(params.Size)/1024,
			time.Since(params.TimeStamp).Milliseconds())
	})

	server = &http.Server{
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		Handler:      handler,
		Addr:         config.Keys.Addr,
	}

	listener, err := net.Listen("tcp", config.Keys.Addr)
	if err != nil {
		cclog.Fatalf("starting http listener failed: %v", err)
	}
	cclog.Infof("HTTP server listening at %s...", config.Keys.Addr)

	if err = server.Serve(listener); err != nil && err != http.ErrServerClosed {
		cclog.Fatalf("starting server failed: %v", err)
	}
}

func serverShutdown() {
	// Wait for all ongoing requests before going down.
	server.Shutdown(context.Background())
}
