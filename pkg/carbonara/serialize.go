// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package carbonara

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
)

// TimeSerieDict is the interoperable form of the raw series. Timespan
// is blockSize * (backWindow+1); the optional back_window key is only
// produced by the binary serializer so that wide-gate series round-trip.
type TimeSerieDict struct {
	Values     map[string]float64 `json:"values"`
	Timespan   string             `json:"timespan,omitempty"`
	BackWindow int                `json:"back_window,omitempty"`
}

// AggregatedDict is the interoperable form of one aggregated series.
type AggregatedDict struct {
	AggregationMethod string             `json:"aggregation_method"`
	Sampling          string             `json:"sampling"`
	MaxSize           int                `json:"max_size,omitempty"`
	Values            map[string]float64 `json:"values"`
}

// ArchiveDict is the interoperable form of a whole archive. This shape
// must be preserved exactly for migration.
type ArchiveDict struct {
	TimeSerie TimeSerieDict    `json:"timeserie"`
	Archives  []AggregatedDict `json:"archives"`
}

// ToDict exposes the archive in its interoperable form.
func (c *TimeSerieArchive) ToDict() *ArchiveDict {
	raw := c.timeserie
	d := &ArchiveDict{
		TimeSerie: TimeSerieDict{Values: samplesToDict(raw.ts.samples)},
		Archives:  make([]AggregatedDict, len(c.aggTimeseries)),
	}
	if raw.blockSize > 0 {
		d.TimeSerie.Timespan = FormatTimespan(raw.blockSize * time.Duration(raw.backWindow+1))
	}

	for i, agg := range c.aggTimeseries {
		d.Archives[i] = AggregatedDict{
			AggregationMethod: agg.method,
			Sampling:          FormatTimespan(agg.sampling),
			MaxSize:           agg.maxSize,
			Values:            samplesToDict(agg.ts.samples),
		}
	}
	return d
}

// FromDict reconstructs an archive from its interoperable form.
func FromDict(d *ArchiveDict) (*TimeSerieArchive, error) {
	var blockSize time.Duration
	if d.TimeSerie.Timespan != "" {
		timespan, err := ParseTimespan(d.TimeSerie.Timespan)
		if err != nil {
			return nil, err
		}
		blockSize = timespan / time.Duration(d.TimeSerie.BackWindow+1)
	}

	rawSamples, err := dictToSamples(d.TimeSerie.Values)
	if err != nil {
		return nil, err
	}
	raw := &BoundTimeSerie{blockSize: blockSize, backWindow: d.TimeSerie.BackWindow}
	raw.ts.merge(rawSamples)
	raw.truncate()

	aggs := make([]*AggregatedTimeSerie, len(d.Archives))
	for i, ad := range d.Archives {
		sampling, err := ParseTimespan(ad.Sampling)
		if err != nil {
			return nil, err
		}
		agg := NewAggregatedTimeSerie(sampling, ad.AggregationMethod, ad.MaxSize)
		samples, err := dictToSamples(ad.Values)
		if err != nil {
			return nil, err
		}
		agg.ts.merge(samples)
		aggs[i] = agg
	}
	sort.SliceStable(aggs, func(i, j int) bool { return aggs[i].sampling < aggs[j].sampling })

	return &TimeSerieArchive{timeserie: raw, aggTimeseries: aggs}, nil
}

func samplesToDict(samples []Sample) map[string]float64 {
	values := make(map[string]float64, len(samples))
	for _, s := range samples {
		values[formatTimestamp(s.Timestamp)] = s.Value
	}
	return values
}

func dictToSamples(values map[string]float64) ([]Sample, error) {
	samples := make([]Sample, 0, len(values))
	for k, v := range values {
		t, err := ParseTimestamp(k)
		if err != nil {
			return nil, err
		}
		samples = append(samples, Sample{Timestamp: t, Value: v})
	}
	return samples, nil
}

// Serialize encodes the archive to an opaque blob: the dict form as
// JSON, zstd-compressed. Map keys marshal in sorted order, so equal
// archives serialize to equal bytes.
func (c *TimeSerieArchive) Serialize() ([]byte, error) {
	d := c.ToDict()
	if c.timeserie.blockSize > 0 {
		d.TimeSerie.BackWindow = c.timeserie.backWindow
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(payload, nil), nil
}

// Unserialize decodes a blob produced by Serialize.
func Unserialize(blob []byte) (*TimeSerieArchive, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	payload, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("carbonara: corrupt archive blob: %w", err)
	}

	var d ArchiveDict
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("carbonara: corrupt archive payload: %w", err)
	}
	return FromDict(&d)
}
