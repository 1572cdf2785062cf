// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// carbonara-dump prints a text report of a serialized archive file.
//
// Usage: carbonara-dump <filename>
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/lawrancejing/gnocchi/pkg/carbonara"
	"github.com/lawrancejing/gnocchi/tools/internal/carbonaracli"
)

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: carbonara-dump <filename>")
		os.Exit(1)
	}

	tsc, err := carbonaracli.ReadArchive(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	dump(tsc)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func measureTable(samples []carbonara.Sample) {
	w := tablewriter.NewWriter(os.Stdout)
	w.SetHeader([]string{"Timestamp", "Value"})
	for _, s := range samples {
		w.Append([]string{s.Timestamp.UTC().Format("2006-01-02 15:04:05.999999999"), formatValue(s.Value)})
	}
	w.Render()
}

func dump(tsc *carbonara.TimeSerieArchive) {
	raw := tsc.Raw()

	fmt.Printf("Aggregation method: %s\n", tsc.AggregationMethod())
	fmt.Printf("Number of aggregated timeseries: %d\n", len(tsc.AggregatedTimeSeries()))
	fmt.Printf("Back window: %d × %ss = %ss\n",
		raw.BackWindow(),
		formatValue(raw.BlockSize().Seconds()),
		formatValue(float64(raw.BackWindow())*raw.BlockSize().Seconds()))
	fmt.Println()

	fmt.Printf("Number of full resolution measures: %d\n", raw.Len())
	measureTable(raw.Samples())

	for i, agg := range tsc.AggregatedTimeSeries() {
		fmt.Println()
		fmt.Printf("Aggregated timeserie #%d: %ss × %d\n",
			i+1, formatValue(agg.Sampling().Seconds()), agg.MaxSize())
		fmt.Printf("Number of measures: %d\n", agg.Len())

		points := agg.Fetch(nil, nil)
		samples := make([]carbonara.Sample, len(points))
		for j, p := range points {
			samples[j] = carbonara.Sample{Timestamp: p.Timestamp, Value: p.Value}
		}
		measureTable(samples)
	}
}
