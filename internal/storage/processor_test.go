// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lawrancejing/gnocchi/internal/indexer"
	"github.com/lawrancejing/gnocchi/pkg/carbonara"
)

var setupOnce sync.Once

func setupProcessor(t *testing.T) *Processor {
	t.Helper()
	cclog.Init("warn", true)

	setupOnce.Do(func() {
		tmpdir, err := os.MkdirTemp("", "gnocchi-storage-test")
		if err != nil {
			t.Fatal(err)
		}
		indexer.Connect(filepath.Join(tmpdir, "index.db"))
	})

	index := indexer.GetMetricRepository()
	driver, err := NewFileDriver(t.TempDir())
	require.NoError(t, err)
	spool, err := NewMeasureSpool(t.TempDir())
	require.NoError(t, err)

	return NewProcessor(driver, spool, index)
}

func createTestMetric(t *testing.T, proc *Processor, policy string) *indexer.Metric {
	t.Helper()

	err := proc.Index.CreatePolicy(&indexer.ArchivePolicy{
		Name:              policy,
		AggregationMethod: "mean",
		Definition: []indexer.PolicyDefinition{
			{Granularity: 60, Points: 10},
			{Granularity: 300, Points: 6},
		},
	})
	if err != nil && err != indexer.ErrAlreadyExists {
		t.Fatal(err)
	}

	metric, err := proc.Index.CreateMetric("test.metric", policy)
	require.NoError(t, err)
	t.Cleanup(func() { proc.Index.DeleteMetric(metric.ID) })
	return metric
}

func TestProcessorIngestAndFetch(t *testing.T) {
	proc := setupProcessor(t)
	metric := createTestMetric(t, proc, "proc-medium")
	ctx := context.Background()

	err := proc.Ingest(ctx, metric.ID, []carbonara.Sample{
		{Timestamp: time.Date(2014, 1, 1, 12, 1, 4, 0, time.UTC), Value: 4},
		{Timestamp: time.Date(2014, 1, 1, 12, 1, 9, 0, time.UTC), Value: 7},
		{Timestamp: time.Date(2014, 1, 1, 12, 2, 1, 0, time.UTC), Value: 15},
	})
	require.NoError(t, err)

	points, err := proc.GetMeasures(ctx, metric.ID, nil, nil)
	require.NoError(t, err)

	require.Len(t, points, 3)
	assert.Equal(t, 300*time.Second, points[0].Granularity)
	assert.InDelta(t, 8.666666666666666, points[0].Value, 1e-9)
	assert.Equal(t, 60*time.Second, points[1].Granularity)
	assert.InDelta(t, 5.5, points[1].Value, 1e-9)
	assert.InDelta(t, 15.0, points[2].Value, 1e-9)

	// The spool must be empty after processing.
	spooled, err := proc.Spool.Drain(metric.ID)
	require.NoError(t, err)
	assert.Empty(t, spooled)

	// A second batch continues the persisted archive.
	err = proc.Ingest(ctx, metric.ID, []carbonara.Sample{
		{Timestamp: time.Date(2014, 1, 1, 12, 2, 12, 0, time.UTC), Value: 1},
	})
	require.NoError(t, err)

	points, err = proc.GetMeasures(ctx, metric.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.InDelta(t, 8.0, points[2].Value, 1e-9)
}

func TestProcessorBackWindowViolation(t *testing.T) {
	proc := setupProcessor(t)
	metric := createTestMetric(t, proc, "proc-medium")
	ctx := context.Background()

	require.NoError(t, proc.Ingest(ctx, metric.ID, []carbonara.Sample{
		{Timestamp: time.Date(2014, 1, 1, 12, 6, 0, 0, time.UTC), Value: 3},
	}))

	err := proc.Ingest(ctx, metric.ID, []carbonara.Sample{
		{Timestamp: time.Date(2014, 1, 1, 11, 0, 0, 0, time.UTC), Value: 9},
	})
	var violation *carbonara.BackWindowViolation
	require.ErrorAs(t, err, &violation)

	// The offending batch is discarded, the archive untouched.
	points, err := proc.GetMeasures(ctx, metric.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, points, 2)
}

func TestProcessorCrossMetricAggregation(t *testing.T) {
	proc := setupProcessor(t)
	m1 := createTestMetric(t, proc, "proc-medium")
	m2 := createTestMetric(t, proc, "proc-medium")
	ctx := context.Background()

	require.NoError(t, proc.Ingest(ctx, m1.ID, []carbonara.Sample{
		{Timestamp: time.Date(2014, 1, 1, 12, 3, 0, 0, time.UTC), Value: 9},
		{Timestamp: time.Date(2014, 1, 1, 12, 4, 0, 0, time.UTC), Value: 1},
	}))
	require.NoError(t, proc.Ingest(ctx, m2.ID, []carbonara.Sample{
		{Timestamp: time.Date(2014, 1, 1, 12, 3, 0, 0, time.UTC), Value: 24},
		{Timestamp: time.Date(2014, 1, 1, 12, 4, 0, 0, time.UTC), Value: 4},
	}))

	points, err := proc.AggregatedMeasures(ctx, []string{m1.ID, m2.ID}, nil, nil, "sum", 100)
	require.NoError(t, err)

	require.Len(t, points, 3)
	assert.Equal(t, 300*time.Second, points[0].Granularity)
	assert.InDelta(t, 19.0, points[0].Value, 1e-9)
	assert.InDelta(t, 33.0, points[1].Value, 1e-9)
	assert.InDelta(t, 5.0, points[2].Value, 1e-9)
}

func TestProcessorDeleteMetric(t *testing.T) {
	proc := setupProcessor(t)
	metric := createTestMetric(t, proc, "proc-medium")
	ctx := context.Background()

	require.NoError(t, proc.Ingest(ctx, metric.ID, []carbonara.Sample{
		{Timestamp: time.Date(2014, 1, 1, 12, 0, 30, 0, time.UTC), Value: 42},
	}))

	require.NoError(t, proc.DeleteMetric(ctx, metric.ID))

	_, err := proc.GetMeasures(ctx, metric.ID, nil, nil)
	assert.ErrorIs(t, err, indexer.ErrMetricNotFound)

	_, err = proc.Driver.Get(ctx, metric.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
