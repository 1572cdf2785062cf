// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package carbonara

import (
	"errors"
	"math"
	"testing"
	"time"
)

func fetchAll(a *AggregatedTimeSerie) []Point {
	return a.Fetch(nil, nil)
}

func TestPercentileOutOfRange(t *testing.T) {
	for _, method := range []string{"0pct", "100pct", "123pct", "-1pct", "pct", "nope"} {
		ts := NewAggregatedTimeSerie(time.Minute, method, 0)
		err := ts.SetValues([]Sample{
			{tm(12, 0, 0, 0), 3},
			{tm(12, 0, 4, 0), 5},
			{tm(12, 0, 9, 0), 6},
		})
		var invalid *InvalidAggregationMethod
		if !errors.As(err, &invalid) {
			t.Fatalf("method %q: expected InvalidAggregationMethod, got %v", method, err)
		}
		if invalid.Name != method {
			t.Fatalf("method %q: error reports %q", method, invalid.Name)
		}
	}
}

func TestPercentile74(t *testing.T) {
	ts := NewAggregatedTimeSerie(time.Minute, "74pct", 0)
	if err := ts.SetValues([]Sample{
		{tm(12, 0, 0, 0), 3},
		{tm(12, 0, 4, 0), 5},
		{tm(12, 0, 9, 0), 6},
	}); err != nil {
		t.Fatal(err)
	}

	points := fetchAll(ts)
	if len(points) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(points))
	}
	if math.Abs(points[0].Value-5.48) > 1e-12 {
		t.Fatalf("expected 5.48, got %v", points[0].Value)
	}
}

func TestPercentile95(t *testing.T) {
	ts := NewAggregatedTimeSerie(time.Minute, "95pct", 0)
	if err := ts.SetValues([]Sample{
		{tm(12, 0, 0, 0), 3},
		{tm(12, 0, 4, 0), 5},
		{tm(12, 0, 9, 0), 6},
	}); err != nil {
		t.Fatal(err)
	}

	points := fetchAll(ts)
	if len(points) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(points))
	}
	if math.Abs(points[0].Value-5.9) > 1e-12 {
		t.Fatalf("expected 5.9, got %v", points[0].Value)
	}
}

func TestMaxSize(t *testing.T) {
	ts := NewAggregatedTimeSerie(time.Second, "mean", 2)
	if err := ts.SetValues([]Sample{
		{tm(12, 0, 0, 0), 3},
		{tm(12, 0, 4, 0), 5},
		{tm(12, 0, 9, 0), 6},
	}); err != nil {
		t.Fatal(err)
	}

	points := fetchAll(ts)
	if len(points) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(points))
	}
	if points[0].Value != 5 || points[1].Value != 6 {
		t.Fatalf("expected oldest bucket evicted first, got %v, %v", points[0].Value, points[1].Value)
	}
}

func TestDownSampling(t *testing.T) {
	ts := NewAggregatedTimeSerie(5*time.Minute, "mean", 0)
	if err := ts.SetValues([]Sample{
		{tm(12, 0, 0, 0), 3},
		{tm(12, 0, 4, 0), 5},
		{tm(12, 0, 9, 0), 7},
	}); err != nil {
		t.Fatal(err)
	}

	points := fetchAll(ts)
	if len(points) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(points))
	}
	if !points[0].Timestamp.Equal(tm(12, 0, 0, 0)) || points[0].Value != 5 {
		t.Fatalf("unexpected bucket: %+v", points[0])
	}
}

func TestDownSamplingWithMaxSize(t *testing.T) {
	ts := NewAggregatedTimeSerie(time.Minute, "mean", 2)
	if err := ts.SetValues([]Sample{
		{tm(12, 0, 0, 0), 3},
		{tm(12, 1, 4, 0), 5},
		{tm(12, 1, 9, 0), 7},
		{tm(12, 2, 12, 0), 1},
	}); err != nil {
		t.Fatal(err)
	}

	points := fetchAll(ts)
	if len(points) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(points))
	}
	if !points[0].Timestamp.Equal(tm(12, 1, 0, 0)) || points[0].Value != 6 {
		t.Fatalf("unexpected bucket: %+v", points[0])
	}
	if !points[1].Timestamp.Equal(tm(12, 2, 0, 0)) || points[1].Value != 1 {
		t.Fatalf("unexpected bucket: %+v", points[1])
	}
}

func TestDownSamplingWithMaxSizeAndMethodMax(t *testing.T) {
	ts := NewAggregatedTimeSerie(time.Minute, "max", 2)
	if err := ts.SetValues([]Sample{
		{tm(12, 0, 0, 0), 3},
		{tm(12, 1, 4, 0), 5},
		{tm(12, 1, 9, 0), 70},
		{tm(12, 2, 12, 0), 1},
	}); err != nil {
		t.Fatal(err)
	}

	points := fetchAll(ts)
	if len(points) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(points))
	}
	if points[0].Value != 70 || points[1].Value != 1 {
		t.Fatalf("unexpected buckets: %+v", points)
	}
}

func TestAggregationMethods(t *testing.T) {
	samples := []Sample{
		{tm(12, 0, 0, 0), 3},
		{tm(12, 0, 10, 0), 7},
		{tm(12, 0, 20, 0), 5},
	}

	cases := []struct {
		method string
		want   float64
	}{
		{"mean", 5},
		{"sum", 15},
		{"min", 3},
		{"max", 7},
		{"median", 5},
		{"count", 3},
		{"first", 3},
		{"last", 5},
		{"std", 2},
	}
	for _, c := range cases {
		ts := NewAggregatedTimeSerie(time.Minute, c.method, 0)
		if err := ts.SetValues(samples); err != nil {
			t.Fatalf("%s: %v", c.method, err)
		}
		points := fetchAll(ts)
		if len(points) != 1 {
			t.Fatalf("%s: expected 1 bucket, got %d", c.method, len(points))
		}
		if math.Abs(points[0].Value-c.want) > 1e-12 {
			t.Fatalf("%s: expected %v, got %v", c.method, c.want, points[0].Value)
		}
	}
}

func TestStdSingletonBucketDropped(t *testing.T) {
	ts := NewAggregatedTimeSerie(time.Minute, "std", 0)
	if err := ts.SetValues([]Sample{
		{tm(12, 0, 0, 0), 3},
		{tm(12, 1, 4, 0), 4},
		{tm(12, 1, 9, 0), 7},
	}); err != nil {
		t.Fatal(err)
	}

	points := fetchAll(ts)
	if len(points) != 1 {
		t.Fatalf("expected singleton bucket to be dropped, got %d buckets", len(points))
	}
	if !points[0].Timestamp.Equal(tm(12, 1, 0, 0)) {
		t.Fatalf("unexpected bucket: %+v", points[0])
	}
	if math.Abs(points[0].Value-2.1213203435596424) > 1e-12 {
		t.Fatalf("unexpected std: %v", points[0].Value)
	}
}

func TestFetchRange(t *testing.T) {
	ts := NewAggregatedTimeSerie(time.Minute, "mean", 0)
	if err := ts.SetValues([]Sample{
		{tm(12, 0, 0, 0), 1},
		{tm(12, 1, 0, 0), 2},
		{tm(12, 2, 0, 0), 3},
		{tm(12, 3, 0, 0), 4},
	}); err != nil {
		t.Fatal(err)
	}

	from, to := tm(12, 1, 0, 0), tm(12, 3, 0, 0)
	points := ts.Fetch(&from, &to)
	if len(points) != 2 {
		t.Fatalf("expected half-open [from, to), got %d buckets", len(points))
	}
	if points[0].Value != 2 || points[1].Value != 3 {
		t.Fatalf("unexpected buckets: %+v", points)
	}
}
