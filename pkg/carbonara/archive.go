// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package carbonara

import (
	"fmt"
	"sort"
	"time"
)

// ArchiveDefinition describes one aggregated series of an archive:
// bucket width and capacity. Points zero means uncapped.
type ArchiveDefinition struct {
	Granularity time.Duration
	Points      int
}

// TimeSerieArchive multiplexes one bounded raw series and an ordered
// set of aggregated series of differing granularities sharing a single
// aggregation method.
type TimeSerieArchive struct {
	timeserie     *BoundTimeSerie
	aggTimeseries []*AggregatedTimeSerie
}

// FromDefinitions creates an archive from a list of (granularity,
// points) definitions. The raw block size is the coarsest granularity,
// so recomputation never revisits evicted raw buckets.
func FromDefinitions(defs []ArchiveDefinition, aggregationMethod string) (*TimeSerieArchive, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("carbonara: at least one archive definition is required")
	}
	if aggregationMethod == "" {
		aggregationMethod = "mean"
	}

	sorted := make([]ArchiveDefinition, len(defs))
	copy(sorted, defs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Granularity < sorted[j].Granularity
	})

	for _, d := range sorted {
		if d.Granularity <= 0 {
			return nil, fmt.Errorf("carbonara: granularity must be positive")
		}
	}

	blockSize := sorted[len(sorted)-1].Granularity
	raw, err := NewBoundTimeSerie(nil, nil, blockSize, 0)
	if err != nil {
		return nil, err
	}

	aggs := make([]*AggregatedTimeSerie, len(sorted))
	for i, d := range sorted {
		aggs[i] = NewAggregatedTimeSerie(d.Granularity, aggregationMethod, d.Points)
	}

	return &TimeSerieArchive{timeserie: raw, aggTimeseries: aggs}, nil
}

// Raw exposes the bounded raw series.
func (c *TimeSerieArchive) Raw() *BoundTimeSerie { return c.timeserie }

// AggregatedTimeSeries returns the aggregated views, finest first.
func (c *TimeSerieArchive) AggregatedTimeSeries() []*AggregatedTimeSerie {
	out := make([]*AggregatedTimeSerie, len(c.aggTimeseries))
	copy(out, c.aggTimeseries)
	return out
}

// AggregationMethod reports the archive-wide aggregation method.
func (c *TimeSerieArchive) AggregationMethod() string {
	if len(c.aggTimeseries) == 0 {
		return "mean"
	}
	return c.aggTimeseries[0].method
}

// SetValues merges a batch of raw samples and recomputes the affected
// suffix of every aggregated series. The aggregates are updated from
// the merged raw state before it is pruned, so buckets older than the
// new horizon keep their history. A BackWindowViolation from the raw
// series is propagated unchanged and nothing is modified.
func (c *TimeSerieArchive) SetValues(samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}

	smallest := samples[0].Timestamp
	for _, s := range samples[1:] {
		if s.Timestamp.Before(smallest) {
			smallest = s.Timestamp
		}
	}

	return c.timeserie.setValues(samples, func() error {
		for _, agg := range c.aggTimeseries {
			from := alignTimestamp(smallest, agg.sampling)
			if err := agg.SetValues(c.timeserie.ts.samplesFrom(from)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Fetch returns the merged view over the half-open range [from, to),
// composed coarsest-first: each coarser series contributes only the
// buckets up to (and including) the first timestamp already answered
// by a finer series, since finer data overrides where both exist while
// coarser buckets supply history the finer series already evicted.
// Nil bounds are open. Output is ordered by (timestamp, -granularity).
func (c *TimeSerieArchive) Fetch(from, to *time.Time) []Point {
	var result []Point

	// Finest first; the first collected timestamp bounds every coarser
	// series that follows.
	for _, agg := range c.aggTimeseries {
		end, endInclusive := to, false
		if len(result) > 0 {
			end, endInclusive = &result[0].Timestamp, true
		}
		points := agg.points(from, end, endInclusive)
		result = append(points, result...)
	}
	return result
}

// Aggregated computes a cross-archive aggregation over [from, to).
//
// Granularities carried by every input are merged per granularity:
// bucket timestamps are clamped to the common window spanning from the
// latest first-bucket to the earliest last-bucket, which tolerates
// series that started or stopped a few buckets apart. Within that
// window the overlap ratio is |intersection| / |union|; if it falls
// below neededPercentOfOverlap the inputs cannot be aggregated. The
// values of each surviving bucket are combined across the archives
// holding it using the given aggregation method.
func Aggregated(archives []*TimeSerieArchive, from, to *time.Time, aggregation string, neededPercentOfOverlap float64) ([]Point, error) {
	if len(archives) == 0 {
		return nil, nil
	}
	if aggregation == "" {
		aggregation = "mean"
	}

	combine, err := resolveAggregation(aggregation)
	if err != nil {
		return nil, err
	}

	// bucket lists per granularity per archive, chronological
	perArchive := make([]map[time.Duration][]Point, len(archives))
	for i, a := range archives {
		rows := a.Fetch(from, to)
		if len(rows) == 0 {
			return nil, &UnAggregableTimeseries{Reason: "no overlap"}
		}
		grouped := make(map[time.Duration][]Point)
		for _, p := range rows {
			grouped[p.Granularity] = append(grouped[p.Granularity], p)
		}
		perArchive[i] = grouped
	}

	var granularities []time.Duration
	for g := range perArchive[0] {
		shared := true
		for _, grouped := range perArchive[1:] {
			if _, ok := grouped[g]; !ok {
				shared = false
				break
			}
		}
		if shared {
			granularities = append(granularities, g)
		}
	}
	if len(granularities) == 0 {
		return nil, &UnAggregableTimeseries{Reason: "granularities mismatch"}
	}
	sort.Slice(granularities, func(i, j int) bool { return granularities[i] < granularities[j] })

	type bucket struct {
		ts     time.Time
		gran   time.Duration
		values []float64
	}

	var (
		buckets          []bucket
		union, intersect int
	)

	for _, g := range granularities {
		// Clamp to the window every archive covers at this granularity.
		var lo, hi time.Time
		for i, grouped := range perArchive {
			rows := grouped[g]
			first, last := rows[0].Timestamp, rows[len(rows)-1].Timestamp
			if i == 0 || first.After(lo) {
				lo = first
			}
			if i == 0 || last.Before(hi) {
				hi = last
			}
		}

		// k-way merge of the per-archive bucket lists into union and
		// intersection in one pass.
		cursors := make([]int, len(perArchive))
		for {
			var next time.Time
			found := false
			for i, grouped := range perArchive {
				rows := grouped[g]
				for cursors[i] < len(rows) && rows[cursors[i]].Timestamp.Before(lo) {
					cursors[i]++
				}
				if cursors[i] < len(rows) && !rows[cursors[i]].Timestamp.After(hi) {
					t := rows[cursors[i]].Timestamp
					if !found || t.Before(next) {
						next, found = t, true
					}
				}
			}
			if !found {
				break
			}

			b := bucket{ts: next, gran: g}
			for i, grouped := range perArchive {
				rows := grouped[g]
				if cursors[i] < len(rows) && rows[cursors[i]].Timestamp.Equal(next) {
					b.values = append(b.values, rows[cursors[i]].Value)
					cursors[i]++
				}
			}

			union++
			if len(b.values) == len(archives) {
				intersect++
			}
			buckets = append(buckets, b)
		}
	}

	if union == 0 {
		return nil, &UnAggregableTimeseries{Reason: "no overlap"}
	}

	if overlap := float64(intersect) * 100 / float64(union); overlap < neededPercentOfOverlap {
		return nil, &UnAggregableTimeseries{
			Reason: fmt.Sprintf("%.2f%% of the points are common between the requested timeseries, less than %.2f%% requested",
				overlap, neededPercentOfOverlap),
		}
	}

	result := make([]Point, len(buckets))
	for i, b := range buckets {
		result[i] = Point{Timestamp: b.ts, Granularity: b.gran, Value: combine(b.values)}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.Before(result[j].Timestamp)
		}
		return result[i].Granularity > result[j].Granularity
	})
	return result, nil
}
