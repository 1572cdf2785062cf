// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/joho/godotenv"

	"github.com/lawrancejing/gnocchi/internal/config"
	"github.com/lawrancejing/gnocchi/internal/indexer"
	"github.com/lawrancejing/gnocchi/internal/ingest"
	"github.com/lawrancejing/gnocchi/internal/storage"
)

const version = "1.0.0"

func main() {
	cliInit()

	if flagVersion {
		fmt.Printf("Version:\t%s\n", version)
		os.Exit(0)
	}

	cclog.Init(flagLogLevel, flagLogDateTime)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		cclog.Abortf("parsing './.env' file failed: %s", err.Error())
	}

	config.Init(flagConfigFile)

	if flagMigrateDB {
		if err := indexer.MigrateDB(config.Keys.DB); err != nil {
			cclog.Fatal(err)
		}
		os.Exit(0)
	}

	indexer.Connect(config.Keys.DB)
	index := indexer.GetMetricRepository()

	driver, err := storage.NewDriver(config.Keys.Storage)
	if err != nil {
		cclog.Fatal(err)
	}
	spool, err := storage.NewMeasureSpool(config.Keys.Storage.SpoolDir)
	if err != nil {
		cclog.Fatal(err)
	}
	proc := storage.NewProcessor(driver, spool, index)

	ctx, shutdown := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	if config.Keys.Nats != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ingest.ReceiveNats(ctx, config.Keys.Nats, proc); err != nil {
				cclog.Errorf("NATS ingest failed: %s", err.Error())
			}
		}()
	}

	serverInit(index, proc)

	wg.Add(1)
	go func() {
		defer wg.Done()
		serverStart()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	shutdown()
	serverShutdown()
	wg.Wait()
	cclog.Printf("Graceful shutdown completed!\n")
}
