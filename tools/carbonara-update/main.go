// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// carbonara-update merges measures into a serialized archive file.
//
// Usage: carbonara-update <'YYYY-MM-DD HH:MM:SS,value'>... <filename>
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lawrancejing/gnocchi/pkg/carbonara"
	"github.com/lawrancejing/gnocchi/tools/internal/carbonaracli"
)

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: carbonara-update <'YYYY-MM-DD HH:MM:SS,value'>... <filename>")
		os.Exit(1)
	}

	samples := make([]carbonara.Sample, 0, len(args)-1)
	for _, arg := range args[:len(args)-1] {
		s, err := carbonaracli.ParseSample(arg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		samples = append(samples, s)
	}

	filename := args[len(args)-1]
	tsc, err := carbonaracli.ReadArchive(filename)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := tsc.SetValues(samples); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := carbonaracli.WriteArchive(filename, tsc); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
