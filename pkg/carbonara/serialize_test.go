// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package carbonara

import (
	"math"
	"reflect"
	"testing"
	"time"
)

func TestSerializeRoundTrip(t *testing.T) {
	tsc, err := FromDefinitions([]ArchiveDefinition{
		{500 * time.Millisecond, 0},
		{2 * time.Second, 0},
	}, "mean")
	if err != nil {
		t.Fatal(err)
	}

	if err := tsc.SetValues([]Sample{
		{tm(12, 0, 0, 1234), 3},
		{tm(12, 0, 0, 321), 6},
		{tm(12, 1, 4, 234), 5},
		{tm(12, 1, 9, 32), 7},
		{tm(12, 2, 12, 532), 1},
	}); err != nil {
		t.Fatal(err)
	}

	blob, err := tsc.Serialize()
	if err != nil {
		t.Fatal(err)
	}

	back, err := Unserialize(blob)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(tsc.ToDict(), back.ToDict()) {
		t.Fatalf("round trip altered the archive:\n%+v\n%+v", tsc.ToDict(), back.ToDict())
	}
	if back.Raw().BlockSize() != tsc.Raw().BlockSize() || back.Raw().BackWindow() != tsc.Raw().BackWindow() {
		t.Fatal("round trip altered the raw series bounds")
	}

	// Serialization is deterministic.
	again, err := tsc.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(blob, again) {
		t.Fatal("serialization is not deterministic")
	}
}

func TestSerializeRoundTripBackWindow(t *testing.T) {
	raw, err := NewBoundTimeSerie(nil, nil, 5*time.Second, 2)
	if err != nil {
		t.Fatal(err)
	}
	tsc := &TimeSerieArchive{
		timeserie:     raw,
		aggTimeseries: []*AggregatedTimeSerie{NewAggregatedTimeSerie(5*time.Second, "mean", 10)},
	}
	if err := tsc.SetValues([]Sample{
		{tm(12, 0, 0, 0), 1},
		{tm(12, 0, 7, 0), 2},
	}); err != nil {
		t.Fatal(err)
	}

	back, err := Unserialize(mustSerialize(t, tsc))
	if err != nil {
		t.Fatal(err)
	}
	if back.Raw().BlockSize() != 5*time.Second || back.Raw().BackWindow() != 2 {
		t.Fatalf("back window lost: block=%v window=%d", back.Raw().BlockSize(), back.Raw().BackWindow())
	}
}

func mustSerialize(t *testing.T, tsc *TimeSerieArchive) []byte {
	t.Helper()
	blob, err := tsc.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	return blob
}

func TestFromDictResamplingStddev(t *testing.T) {
	d := &ArchiveDict{
		TimeSerie: TimeSerieDict{
			Values: map[string]float64{
				"2013-01-01 23:45:01.182000": 1,
				"2013-01-01 23:45:02.975000": 2,
				"2013-01-01 23:45:03.689000": 3,
				"2013-01-01 23:45:04.292000": 4,
				"2013-01-01 23:45:05.416000": 5,
				"2013-01-01 23:45:06.995000": 6,
				"2013-01-01 23:45:07.065000": 7,
				"2013-01-01 23:45:08.634000": 8,
				"2013-01-01 23:45:09.572000": 9,
				"2013-01-01 23:45:10.672000": 10,
			},
			Timespan: "120S",
		},
		Archives: []AggregatedDict{{
			AggregationMethod: "std",
			Sampling:          "60S",
			MaxSize:           3600,
			Values: map[string]float64{
				"2013-01-01 23:40:00": 3.0276503540974917,
				"2013-01-01 23:45:00": 3.0276503540974917,
			},
		}},
	}

	tsc, err := FromDict(d)
	if err != nil {
		t.Fatal(err)
	}

	points := tsc.Fetch(nil, nil)
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}

	from := time.Date(2013, 1, 1, 23, 45, 0, 0, time.UTC)
	to := time.Date(2013, 1, 1, 23, 46, 0, 0, time.UTC)
	points = tsc.Fetch(&from, &to)
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	if !points[0].Timestamp.Equal(from) {
		t.Fatalf("unexpected timestamp: %v", points[0].Timestamp)
	}
	if math.Abs(points[0].Value-3.0276503540974917) > 1e-12 {
		t.Fatalf("unexpected value: %v", points[0].Value)
	}
}

func TestTruncationWithSerialization(t *testing.T) {
	d := &ArchiveDict{
		TimeSerie: TimeSerieDict{Values: map[string]float64{}, Timespan: "120S"},
		Archives: []AggregatedDict{{
			AggregationMethod: "mean",
			Sampling:          "60S",
			MaxSize:           3600,
			Values:            map[string]float64{},
		}},
	}

	// Inject single points 61s apart, round-tripping through the
	// storage representation on each iteration; every aggregated
	// bucket must survive even though the raw series is truncated.
	for i := 1; i <= 10; i++ {
		tsc, err := FromDict(d)
		if err != nil {
			t.Fatal(err)
		}
		if got := len(tsc.Fetch(nil, nil)); got != i-1 {
			t.Fatalf("iteration %d: expected %d buckets, got %d", i, i-1, got)
		}
		if err := tsc.SetValues([]Sample{{tm(12, i, i, 0), float64(i)}}); err != nil {
			t.Fatal(err)
		}
		d = tsc.ToDict()
		if got := len(d.Archives[0].Values); got != i {
			t.Fatalf("iteration %d: expected %d archived values, got %d", i, i, got)
		}
	}
}

func TestToDictShape(t *testing.T) {
	tsc, err := FromDefinitions([]ArchiveDefinition{{60 * time.Second, 10}}, "max")
	if err != nil {
		t.Fatal(err)
	}
	if err := tsc.SetValues([]Sample{{tm(12, 0, 30, 0), 42}}); err != nil {
		t.Fatal(err)
	}

	d := tsc.ToDict()
	if d.TimeSerie.Timespan != "60s" {
		t.Fatalf("unexpected timespan: %q", d.TimeSerie.Timespan)
	}
	if len(d.Archives) != 1 {
		t.Fatalf("expected one archive, got %d", len(d.Archives))
	}
	a := d.Archives[0]
	if a.AggregationMethod != "max" || a.Sampling != "60s" || a.MaxSize != 10 {
		t.Fatalf("unexpected archive header: %+v", a)
	}
	if v, ok := a.Values["2014-01-01 12:00:00"]; !ok || v != 42 {
		t.Fatalf("unexpected archive values: %+v", a.Values)
	}
	if v, ok := d.TimeSerie.Values["2014-01-01 12:00:30"]; !ok || v != 42 {
		t.Fatalf("unexpected raw values: %+v", d.TimeSerie.Values)
	}
}
