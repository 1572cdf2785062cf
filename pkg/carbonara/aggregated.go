// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package carbonara

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// aggregator reduces the chronologically ordered raw values of one
// bucket to a single value. Returning NaN drops the bucket.
type aggregator func(values []float64) float64

// resolveAggregation maps a method tag to its reduction. The closed set
// is {mean, sum, min, max, median, std, count, first, last, Npct} where
// Npct is any "<int>pct" with 0 < N < 100.
func resolveAggregation(name string) (aggregator, error) {
	switch name {
	case "mean":
		return aggMean, nil
	case "sum":
		return aggSum, nil
	case "min":
		return aggMin, nil
	case "max":
		return aggMax, nil
	case "median":
		return percentileAggregator(50), nil
	case "std":
		return aggStd, nil
	case "count":
		return func(v []float64) float64 { return float64(len(v)) }, nil
	case "first":
		return func(v []float64) float64 { return v[0] }, nil
	case "last":
		return func(v []float64) float64 { return v[len(v)-1] }, nil
	}

	if strings.HasSuffix(name, "pct") {
		n, err := strconv.Atoi(strings.TrimSuffix(name, "pct"))
		if err == nil && n > 0 && n < 100 {
			return percentileAggregator(float64(n)), nil
		}
	}

	return nil, &InvalidAggregationMethod{Name: name}
}

// ValidateAggregationMethod checks a method tag without building a
// series.
func ValidateAggregationMethod(name string) error {
	_, err := resolveAggregation(name)
	return err
}

func aggMean(values []float64) float64 {
	return aggSum(values) / float64(len(values))
}

func aggSum(values []float64) float64 {
	s := 0.0
	for _, v := range values {
		s += v
	}
	return s
}

func aggMin(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		m = math.Min(m, v)
	}
	return m
}

func aggMax(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		m = math.Max(m, v)
	}
	return m
}

// aggStd is the sample standard deviation (divisor n-1), computed with
// Welford's algorithm. A singleton bucket yields NaN.
func aggStd(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}

	mean, m2 := 0.0, 0.0
	for i, v := range values {
		delta := v - mean
		mean += delta / float64(i+1)
		m2 += delta * (v - mean)
	}
	return math.Sqrt(m2 / float64(len(values)-1))
}

// percentileAggregator returns the linear-interpolated Nth percentile.
func percentileAggregator(n float64) aggregator {
	return func(values []float64) float64 {
		sorted := make([]float64, len(values))
		copy(sorted, values)
		sort.Float64s(sorted)

		rank := n / 100 * float64(len(sorted)-1)
		lo := int(math.Floor(rank))
		if lo == len(sorted)-1 {
			return sorted[lo]
		}
		frac := rank - float64(lo)
		return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
	}
}

// AggregatedTimeSerie is a single down-sampled view: a mapping from
// aligned bucket starts to aggregated values.
type AggregatedTimeSerie struct {
	ts        timeSerie
	sampling  time.Duration
	method    string
	maxSize   int
	aggregate aggregator
}

// NewAggregatedTimeSerie constructs an empty aggregated series. The
// aggregation method is validated lazily on first use; maxSize zero
// means uncapped.
func NewAggregatedTimeSerie(sampling time.Duration, method string, maxSize int) *AggregatedTimeSerie {
	if method == "" {
		method = "mean"
	}
	return &AggregatedTimeSerie{sampling: sampling, method: method, maxSize: maxSize}
}

// Sampling reports the bucket width.
func (a *AggregatedTimeSerie) Sampling() time.Duration { return a.sampling }

// AggregationMethod reports the method tag.
func (a *AggregatedTimeSerie) AggregationMethod() string { return a.method }

// MaxSize reports the bucket capacity; zero when uncapped.
func (a *AggregatedTimeSerie) MaxSize() int { return a.maxSize }

func (a *AggregatedTimeSerie) Len() int { return a.ts.len() }

// SetValues recomputes every bucket touched by the given raw samples.
// Callers pass the raw samples currently in scope for those buckets,
// not deltas; incremental percentile updates would accumulate error.
func (a *AggregatedTimeSerie) SetValues(samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}

	if a.aggregate == nil {
		agg, err := resolveAggregation(a.method)
		if err != nil {
			return err
		}
		a.aggregate = agg
	}

	ordered := make([]Sample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	for start := 0; start < len(ordered); {
		bucket := alignTimestamp(ordered[start].Timestamp, a.sampling)
		end := start
		values := make([]float64, 0, 8)
		for end < len(ordered) && alignTimestamp(ordered[end].Timestamp, a.sampling).Equal(bucket) {
			values = append(values, ordered[end].Value)
			end++
		}

		if v := a.aggregate(values); math.IsNaN(v) {
			a.ts.delete(bucket)
		} else {
			a.ts.upsert(bucket, v)
		}
		start = end
	}

	if a.maxSize > 0 && a.ts.len() > a.maxSize {
		a.ts.samples = append(a.ts.samples[:0], a.ts.samples[a.ts.len()-a.maxSize:]...)
	}
	return nil
}

// Fetch returns the buckets within the half-open range [from, to) in
// ascending time. Nil bounds are open.
func (a *AggregatedTimeSerie) Fetch(from, to *time.Time) []Point {
	return a.points(from, to, false)
}

// points collects buckets from `from` up to `end`; endInclusive selects
// whether a bucket exactly at `end` is part of the result.
func (a *AggregatedTimeSerie) points(from, end *time.Time, endInclusive bool) []Point {
	samples := a.ts.samples
	if from != nil {
		samples = samples[a.ts.searchTimestamp(*from):]
	}

	out := make([]Point, 0, len(samples))
	for _, s := range samples {
		if end != nil {
			if endInclusive && s.Timestamp.After(*end) {
				break
			}
			if !endInclusive && !s.Timestamp.Before(*end) {
				break
			}
		}
		out = append(out, Point{Timestamp: s.Timestamp, Granularity: a.sampling, Value: s.Value})
	}
	return out
}

// firstTimestamp returns the oldest bucket start.
func (a *AggregatedTimeSerie) firstTimestamp() (time.Time, bool) {
	s, ok := a.ts.first()
	return s.Timestamp, ok
}
