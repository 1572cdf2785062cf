// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ingest feeds measures from a NATS subscription into the
// processor. Lines arrive in Influx line protocol with the metric id
// as a tag, e.g.:
//
//	measures,metric=5c6b2a32-... value=11.5 1420070400000000000
package ingest

import (
	"context"
	"fmt"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/influxdata/line-protocol/v2/lineprotocol"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/lawrancejing/gnocchi/internal/config"
	"github.com/lawrancejing/gnocchi/internal/storage"
	"github.com/lawrancejing/gnocchi/pkg/carbonara"
)

// ReceiveNats subscribes to the configured subject and blocks until the
// context is cancelled.
func ReceiveNats(ctx context.Context, cfg *config.NatsConfig, proc *storage.Processor) error {
	opts := []nats.Option{nats.Name("gnocchid")}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return fmt.Errorf("[INGEST]> connecting to %s failed: %w", cfg.Address, err)
	}
	defer nc.Close()

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}

	sub, err := nc.Subscribe(cfg.SubscribeTo, func(m *nats.Msg) {
		if limiter != nil && !limiter.Allow() {
			cclog.Warnf("[INGEST]> rate limit exceeded, dropping batch of %d bytes", len(m.Data))
			return
		}

		dec := lineprotocol.NewDecoderWithBytes(m.Data)
		if err := DecodeLine(ctx, dec, proc); err != nil {
			cclog.Errorf("[INGEST]> error: %s", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("[INGEST]> subscribing to '%s' failed: %w", cfg.SubscribeTo, err)
	}
	cclog.Infof("[INGEST]> NATS subscription to '%s' established", cfg.SubscribeTo)

	<-ctx.Done()
	return sub.Unsubscribe()
}

// DecodeLine decodes a batch of measure lines and hands them to the
// processor, grouped per metric so that each archive is loaded once.
func DecodeLine(ctx context.Context, dec *lineprotocol.Decoder, proc *storage.Processor) error {
	batches := make(map[string][]carbonara.Sample)

	for dec.Next() {
		measurement, err := dec.Measurement()
		if err != nil {
			return err
		}
		if string(measurement) != "measures" {
			return fmt.Errorf("unknown measurement: %q", string(measurement))
		}

		metricID := ""
		for {
			key, val, err := dec.NextTag()
			if err != nil {
				return err
			}
			if key == nil {
				break
			}
			if string(key) == "metric" {
				metricID = string(val)
			}
		}
		if metricID == "" {
			return fmt.Errorf("line without a metric tag")
		}

		value := 0.0
		for {
			key, val, err := dec.NextField()
			if err != nil {
				return err
			}
			if key == nil {
				break
			}
			if string(key) != "value" {
				return fmt.Errorf("metric %s: unknown field: '%s' (value: %#v)", metricID, string(key), val)
			}

			if val.Kind() == lineprotocol.Float {
				value = val.FloatV()
			} else if val.Kind() == lineprotocol.Int {
				value = float64(val.IntV())
			} else if val.Kind() == lineprotocol.Uint {
				value = float64(val.UintV())
			} else {
				return fmt.Errorf("metric %s: unsupported value type in message: %s", metricID, val.Kind().String())
			}
		}

		t, err := dec.Time(lineprotocol.Nanosecond, time.Time{})
		if err != nil {
			return fmt.Errorf("metric %s: timestamp: %w", metricID, err)
		}
		if t.IsZero() {
			t = time.Now()
		}

		batches[metricID] = append(batches[metricID], carbonara.Sample{Timestamp: t.UTC(), Value: value})
	}

	for metricID, samples := range batches {
		if err := proc.Ingest(ctx, metricID, samples); err != nil {
			return fmt.Errorf("metric %s: %w", metricID, err)
		}
	}
	return nil
}
