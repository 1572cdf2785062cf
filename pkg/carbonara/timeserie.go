// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package carbonara

import (
	"sort"
	"time"
)

// timeSerie is a chronologically sorted sequence of samples with unique
// timestamps. It is the shared base of the raw and the aggregated
// series.
type timeSerie struct {
	samples []Sample
}

func newTimeSerie(timestamps []time.Time, values []float64) (timeSerie, error) {
	if len(timestamps) != len(values) {
		return timeSerie{}, ErrLengthMismatch
	}

	batch := make([]Sample, len(timestamps))
	for i, t := range timestamps {
		batch[i] = Sample{Timestamp: t.UTC(), Value: values[i]}
	}

	var ts timeSerie
	ts.merge(batch)
	return ts, nil
}

func (ts *timeSerie) len() int {
	return len(ts.samples)
}

// searchTimestamp returns the index of the first sample at or after t.
func (ts *timeSerie) searchTimestamp(t time.Time) int {
	return sort.Search(len(ts.samples), func(i int) bool {
		return !ts.samples[i].Timestamp.Before(t)
	})
}

// merge inserts a batch of samples. Within the batch, later entries for
// the same timestamp win; against retained samples, the batch wins.
func (ts *timeSerie) merge(batch []Sample) {
	if len(batch) == 0 {
		return
	}

	incoming := make([]Sample, len(batch))
	for i, s := range batch {
		incoming[i] = Sample{Timestamp: s.Timestamp.UTC(), Value: s.Value}
	}
	sort.SliceStable(incoming, func(i, j int) bool {
		return incoming[i].Timestamp.Before(incoming[j].Timestamp)
	})

	// Collapse duplicate timestamps, keeping the last write.
	deduped := incoming[:0]
	for _, s := range incoming {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp.Equal(s.Timestamp) {
			deduped[n-1] = s
		} else {
			deduped = append(deduped, s)
		}
	}

	merged := make([]Sample, 0, len(ts.samples)+len(deduped))
	i, j := 0, 0
	for i < len(ts.samples) && j < len(deduped) {
		switch {
		case ts.samples[i].Timestamp.Before(deduped[j].Timestamp):
			merged = append(merged, ts.samples[i])
			i++
		case deduped[j].Timestamp.Before(ts.samples[i].Timestamp):
			merged = append(merged, deduped[j])
			j++
		default:
			merged = append(merged, deduped[j])
			i++
			j++
		}
	}
	merged = append(merged, ts.samples[i:]...)
	merged = append(merged, deduped[j:]...)
	ts.samples = merged
}

// upsert sets the value for a single timestamp.
func (ts *timeSerie) upsert(t time.Time, v float64) {
	i := ts.searchTimestamp(t)
	if i < len(ts.samples) && ts.samples[i].Timestamp.Equal(t) {
		ts.samples[i].Value = v
		return
	}
	ts.samples = append(ts.samples, Sample{})
	copy(ts.samples[i+1:], ts.samples[i:])
	ts.samples[i] = Sample{Timestamp: t, Value: v}
}

// delete removes the sample at t, if present.
func (ts *timeSerie) delete(t time.Time) {
	i := ts.searchTimestamp(t)
	if i < len(ts.samples) && ts.samples[i].Timestamp.Equal(t) {
		ts.samples = append(ts.samples[:i], ts.samples[i+1:]...)
	}
}

// truncateBefore drops every sample older than t.
func (ts *timeSerie) truncateBefore(t time.Time) {
	i := ts.searchTimestamp(t)
	if i > 0 {
		ts.samples = append(ts.samples[:0], ts.samples[i:]...)
	}
}

// samplesFrom returns the retained samples at or after t. The returned
// slice aliases the series and must not be mutated.
func (ts *timeSerie) samplesFrom(t time.Time) []Sample {
	return ts.samples[ts.searchTimestamp(t):]
}

func (ts *timeSerie) first() (Sample, bool) {
	if len(ts.samples) == 0 {
		return Sample{}, false
	}
	return ts.samples[0], true
}

func (ts *timeSerie) last() (Sample, bool) {
	if len(ts.samples) == 0 {
		return Sample{}, false
	}
	return ts.samples[len(ts.samples)-1], true
}

// BoundTimeSerie is the raw measurement buffer. A block size together
// with a back window define the retention horizon: after any mutation,
// every retained timestamp t satisfies
//
//	t >= align(t_max, blockSize) - backWindow*blockSize
//
// and an ingest reaching below the horizon of the series as it stood
// before the merge fails with BackWindowViolation.
type BoundTimeSerie struct {
	ts         timeSerie
	blockSize  time.Duration
	backWindow int
}

// NewBoundTimeSerie constructs a raw series from parallel timestamp and
// value slices. A zero blockSize disables retention. The retention rule
// is applied once at the end; initial samples are never gated.
func NewBoundTimeSerie(timestamps []time.Time, values []float64, blockSize time.Duration, backWindow int) (*BoundTimeSerie, error) {
	ts, err := newTimeSerie(timestamps, values)
	if err != nil {
		return nil, err
	}

	b := &BoundTimeSerie{ts: ts, blockSize: blockSize, backWindow: backWindow}
	b.truncate()
	return b, nil
}

// BlockSize reports the retention alignment unit; zero when unbounded.
func (b *BoundTimeSerie) BlockSize() time.Duration { return b.blockSize }

// BackWindow reports how many blocks before the newest one are retained.
func (b *BoundTimeSerie) BackWindow() int { return b.backWindow }

func (b *BoundTimeSerie) Len() int { return b.ts.len() }

// First returns the oldest retained sample.
func (b *BoundTimeSerie) First() (Sample, bool) { return b.ts.first() }

// Last returns the newest retained sample.
func (b *BoundTimeSerie) Last() (Sample, bool) { return b.ts.last() }

// Samples returns a chronological copy of the retained samples.
func (b *BoundTimeSerie) Samples() []Sample {
	out := make([]Sample, len(b.ts.samples))
	copy(out, b.ts.samples)
	return out
}

// SetValues merges an unordered batch of samples, all-or-nothing.
func (b *BoundTimeSerie) SetValues(samples []Sample) error {
	return b.setValues(samples, nil)
}

// setValues merges a batch, invoking beforeTruncate between the merge
// and the pruning of samples below the new horizon. The archive uses
// the callback to recompute aggregates over the full merged raw state.
func (b *BoundTimeSerie) setValues(samples []Sample, beforeTruncate func() error) error {
	if len(samples) == 0 {
		return nil
	}

	if b.blockSize > 0 && b.ts.len() > 0 {
		smallest := samples[0].Timestamp
		for _, s := range samples[1:] {
			if s.Timestamp.Before(smallest) {
				smallest = s.Timestamp
			}
		}
		if first := b.firstBlockTimestamp(); smallest.Before(first) {
			return &BackWindowViolation{BadTimestamp: smallest.UTC(), FirstTimestamp: first}
		}
	}

	b.ts.merge(samples)

	if beforeTruncate != nil {
		if err := beforeTruncate(); err != nil {
			return err
		}
	}

	b.truncate()
	return nil
}

// firstBlockTimestamp is the oldest timestamp an ingest may still reach,
// derived from the newest retained sample.
func (b *BoundTimeSerie) firstBlockTimestamp() time.Time {
	newest := b.ts.samples[len(b.ts.samples)-1].Timestamp
	rounded := alignTimestamp(newest, b.blockSize)
	return rounded.Add(-time.Duration(b.backWindow) * b.blockSize)
}

func (b *BoundTimeSerie) truncate() {
	if b.blockSize <= 0 || b.ts.len() == 0 {
		return
	}
	b.ts.truncateBefore(b.firstBlockTimestamp())
}
