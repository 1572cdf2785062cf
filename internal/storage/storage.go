// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package storage persists serialized archives as opaque blobs and
// spools unprocessed measures until they are folded into an archive.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/lawrancejing/gnocchi/internal/config"
)

var ErrNotFound = errors.New("[STORAGE]> no data for this metric")

// Driver stores one opaque blob per metric.
type Driver interface {
	Get(ctx context.Context, metricID string) ([]byte, error)
	Put(ctx context.Context, metricID string, blob []byte) error
	Delete(ctx context.Context, metricID string) error
}

// NewDriver builds the configured blob driver.
func NewDriver(cfg config.StorageConfig) (Driver, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileDriver(cfg.Path)
	case "s3":
		if cfg.S3 == nil {
			return nil, fmt.Errorf("[STORAGE]> s3 driver selected but no s3 config given")
		}
		return NewS3Driver(*cfg.S3)
	default:
		return nil, fmt.Errorf("[STORAGE]> unknown storage driver: %s", cfg.Driver)
	}
}
