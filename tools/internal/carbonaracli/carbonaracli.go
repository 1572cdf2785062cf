// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package carbonaracli carries the bits shared by the carbonara-*
// introspection tools: argument parsing and archive file I/O.
package carbonaracli

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lawrancejing/gnocchi/pkg/carbonara"
)

// ParseDefinitions parses "granularity_seconds,points" pairs.
func ParseDefinitions(args []string) ([]carbonara.ArchiveDefinition, error) {
	defs := make([]carbonara.ArchiveDefinition, 0, len(args))
	for _, arg := range args {
		parts := strings.Split(arg, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid definition %q, expected granularity_seconds,points", arg)
		}

		granularity, err := strconv.ParseFloat(parts[0], 64)
		if err != nil || granularity <= 0 {
			return nil, fmt.Errorf("invalid granularity in %q", arg)
		}
		points, err := strconv.Atoi(parts[1])
		if err != nil || points < 0 {
			return nil, fmt.Errorf("invalid points in %q", arg)
		}

		defs = append(defs, carbonara.ArchiveDefinition{
			Granularity: time.Duration(math.Round(granularity * float64(time.Second))),
			Points:      points,
		})
	}
	return defs, nil
}

// ParseSample parses a "YYYY-MM-DD HH:MM:SS,value" line.
func ParseSample(arg string) (carbonara.Sample, error) {
	i := strings.LastIndex(arg, ",")
	if i < 0 {
		return carbonara.Sample{}, fmt.Errorf("invalid sample %q, expected 'YYYY-MM-DD HH:MM:SS,value'", arg)
	}

	t, err := carbonara.ParseTimestamp(arg[:i])
	if err != nil {
		return carbonara.Sample{}, err
	}
	value, err := strconv.ParseFloat(arg[i+1:], 64)
	if err != nil {
		return carbonara.Sample{}, fmt.Errorf("invalid value in %q", arg)
	}
	return carbonara.Sample{Timestamp: t, Value: value}, nil
}

// ReadArchive loads a serialized archive from a file.
func ReadArchive(filename string) (*carbonara.TimeSerieArchive, error) {
	blob, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return carbonara.Unserialize(blob)
}

// WriteArchive stores a serialized archive to a file.
func WriteArchive(filename string, tsc *carbonara.TimeSerieArchive) error {
	blob, err := tsc.Serialize()
	if err != nil {
		return err
	}
	return os.WriteFile(filename, blob, 0o644)
}
