// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/lawrancejing/gnocchi/internal/indexer"
	"github.com/lawrancejing/gnocchi/pkg/carbonara"
)

// Processor folds spooled measures into serialized archives. The engine
// is not reentrant, so writes are serialized with one exclusive lock
// per metric held across read, mutate, serialize and persist.
type Processor struct {
	Driver Driver
	Spool  *MeasureSpool
	Index  *indexer.MetricRepository

	lock  sync.Mutex
	locks map[string]*sync.Mutex
}

func NewProcessor(driver Driver, spool *MeasureSpool, index *indexer.MetricRepository) *Processor {
	return &Processor{
		Driver: driver,
		Spool:  spool,
		Index:  index,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (p *Processor) metricLock(metricID string) *sync.Mutex {
	p.lock.Lock()
	defer p.lock.Unlock()
	if l, ok := p.locks[metricID]; ok {
		return l
	}
	l := &sync.Mutex{}
	p.locks[metricID] = l
	return l
}

// load returns the metric's archive, creating an empty one from its
// archive policy when none was persisted yet.
func (p *Processor) load(ctx context.Context, metric *indexer.Metric) (*carbonara.TimeSerieArchive, error) {
	blob, err := p.Driver.Get(ctx, metric.ID)
	if err == nil {
		return carbonara.Unserialize(blob)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	policy, err := p.Index.GetPolicy(metric.ArchivePolicy)
	if err != nil {
		return nil, err
	}
	return carbonara.FromDefinitions(policy.ArchiveDefinitions(), policy.AggregationMethod)
}

// Ingest spools a batch and immediately processes the metric.
func (p *Processor) Ingest(ctx context.Context, metricID string, samples []carbonara.Sample) error {
	if err := p.Spool.Append(metricID, samples); err != nil {
		return err
	}
	return p.Process(ctx, metricID)
}

// Process drains the metric's spool into its archive. A back-window
// violation discards the offending batch; it is a client error, not a
// storage failure.
func (p *Processor) Process(ctx context.Context, metricID string) error {
	l := p.metricLock(metricID)
	l.Lock()
	defer l.Unlock()

	metric, err := p.Index.GetMetric(metricID)
	if err != nil {
		return err
	}

	samples, err := p.Spool.Drain(metricID)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	tsc, err := p.load(ctx, metric)
	if err != nil {
		return err
	}

	if err := tsc.SetValues(samples); err != nil {
		var violation *carbonara.BackWindowViolation
		if errors.As(err, &violation) {
			cclog.Warnf("[STORAGE]> metric %s: dropping %d measures: %s", metricID, len(samples), violation.Error())
			return err
		}
		return err
	}

	blob, err := tsc.Serialize()
	if err != nil {
		return err
	}
	return p.Driver.Put(ctx, metric.ID, blob)
}

// GetMeasures returns the aggregated measures of one metric.
func (p *Processor) GetMeasures(ctx context.Context, metricID string, from, to *time.Time) ([]carbonara.Point, error) {
	metric, err := p.Index.GetMetric(metricID)
	if err != nil {
		return nil, err
	}

	tsc, err := p.load(ctx, metric)
	if err != nil {
		return nil, err
	}
	return tsc.Fetch(from, to), nil
}

// AggregatedMeasures computes a cross-metric aggregation.
func (p *Processor) AggregatedMeasures(ctx context.Context, metricIDs []string, from, to *time.Time,
	aggregation string, neededOverlap float64,
) ([]carbonara.Point, error) {
	if len(metricIDs) == 0 {
		return nil, fmt.Errorf("[STORAGE]> at least one metric is required")
	}

	archives := make([]*carbonara.TimeSerieArchive, len(metricIDs))
	for i, id := range metricIDs {
		metric, err := p.Index.GetMetric(id)
		if err != nil {
			return nil, err
		}
		tsc, err := p.load(ctx, metric)
		if err != nil {
			return nil, err
		}
		archives[i] = tsc
	}

	return carbonara.Aggregated(archives, from, to, aggregation, neededOverlap)
}

// DeleteMetric removes a metric from the index together with its
// archive blob and any spooled measures.
func (p *Processor) DeleteMetric(ctx context.Context, metricID string) error {
	l := p.metricLock(metricID)
	l.Lock()
	defer l.Unlock()

	if err := p.Index.DeleteMetric(metricID); err != nil {
		return err
	}
	if err := p.Spool.Delete(metricID); err != nil {
		return err
	}
	if err := p.Driver.Delete(ctx, metricID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
