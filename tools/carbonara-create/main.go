// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// carbonara-create writes an empty serialized archive to a file.
//
// Usage: carbonara-create <granularity_seconds,points>... <filename>
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lawrancejing/gnocchi/pkg/carbonara"
	"github.com/lawrancejing/gnocchi/tools/internal/carbonaracli"
)

func main() {
	var aggregationMethod string
	flag.StringVar(&aggregationMethod, "m", "mean", "Aggregation method shared by all aggregated timeseries")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: carbonara-create [-m method] <granularity_seconds,points>... <filename>")
		os.Exit(1)
	}

	defs, err := carbonaracli.ParseDefinitions(args[:len(args)-1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	tsc, err := carbonara.FromDefinitions(defs, aggregationMethod)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := carbonaracli.WriteArchive(args[len(args)-1], tsc); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
