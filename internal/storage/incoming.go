// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/linkedin/goavro/v2"

	"github.com/lawrancejing/gnocchi/pkg/carbonara"
)

const measureSchema = `
{
  "type": "record",
  "name": "measure",
  "fields": [
    {"name": "timestamp", "type": "long", "doc": "nanoseconds since epoch"},
    {"name": "value", "type": "double"}
  ]
}`

// MeasureSpool buffers measures that arrived but were not yet folded
// into their archive. Batches are appended as Avro OCF files, one
// directory per metric, and consumed by Drain, which reads every
// batch before it removes any.
type MeasureSpool struct {
	root  string
	codec *goavro.Codec
}

func NewMeasureSpool(root string) (*MeasureSpool, error) {
	if root == "" {
		return nil, fmt.Errorf("[STORAGE]> measure spool needs a directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}

	codec, err := goavro.NewCodec(measureSchema)
	if err != nil {
		return nil, fmt.Errorf("[STORAGE]> measure schema: %w", err)
	}
	return &MeasureSpool{root: root, codec: codec}, nil
}

func (sp *MeasureSpool) dir(metricID string) string {
	return path.Join(sp.root, metricID)
}

// Append spools one batch of measures for the given metric.
func (sp *MeasureSpool) Append(metricID string, samples []carbonara.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	if err := os.MkdirAll(sp.dir(metricID), 0o755); err != nil {
		return err
	}

	records := make([]interface{}, len(samples))
	for i, s := range samples {
		records[i] = map[string]interface{}{
			"timestamp": s.Timestamp.UnixNano(),
			"value":     s.Value,
		}
	}

	file := path.Join(sp.dir(metricID), fmt.Sprintf("%d-%s.avro", time.Now().UnixNano(), uuid.New().String()))
	f, err := os.OpenFile(file, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	writer, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               f,
		Codec:           sp.codec,
		CompressionName: goavro.CompressionDeflateLabel,
	})
	if err != nil {
		f.Close()
		return fmt.Errorf("[STORAGE]> failed to create OCF writer: %w", err)
	}

	if err := writer.Append(records); err != nil {
		f.Close()
		return fmt.Errorf("[STORAGE]> failed to append measures: %w", err)
	}
	return f.Close()
}

// Drain returns all spooled measures of a metric in arrival order and
// removes them from the spool.
func (sp *MeasureSpool) Drain(metricID string) ([]carbonara.Sample, error) {
	entries, err := os.ReadDir(sp.dir(metricID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".avro" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var samples []carbonara.Sample
	for _, name := range names {
		batch, err := sp.readBatch(path.Join(sp.dir(metricID), name))
		if err != nil {
			return nil, err
		}
		samples = append(samples, batch...)
	}
	for _, name := range names {
		if err := os.Remove(path.Join(sp.dir(metricID), name)); err != nil {
			return nil, err
		}
	}
	return samples, nil
}

func (sp *MeasureSpool) readBatch(file string) ([]carbonara.Sample, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader, err := goavro.NewOCFReader(f)
	if err != nil {
		return nil, fmt.Errorf("[STORAGE]> failed to create OCF reader: %w", err)
	}

	var samples []carbonara.Sample
	for reader.Scan() {
		datum, err := reader.Read()
		if err != nil {
			return nil, err
		}
		record, ok := datum.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("[STORAGE]> unexpected OCF datum in %s", file)
		}
		samples = append(samples, carbonara.Sample{
			Timestamp: time.Unix(0, record["timestamp"].(int64)).UTC(),
			Value:     record["value"].(float64),
		})
	}
	return samples, reader.Err()
}

// Delete drops all spooled measures of a metric.
func (sp *MeasureSpool) Delete(metricID string) error {
	return os.RemoveAll(sp.dir(metricID))
}
