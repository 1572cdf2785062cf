// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// FileDriver keeps one file per metric under root, sharded by the
// first two characters of the metric id to keep directories small.
type FileDriver struct {
	root string
}

func NewFileDriver(root string) (*FileDriver, error) {
	if root == "" {
		return nil, fmt.Errorf("[STORAGE]> file driver needs a directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FileDriver{root: root}, nil
}

func (fd *FileDriver) path(metricID string) string {
	shard := metricID
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return path.Join(fd.root, shard, metricID)
}

func (fd *FileDriver) Get(ctx context.Context, metricID string) ([]byte, error) {
	blob, err := os.ReadFile(fd.path(metricID))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return blob, err
}

func (fd *FileDriver) Put(ctx context.Context, metricID string, blob []byte) error {
	file := fd.path(metricID)
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}

	// Write-rename so that readers never observe a partial blob.
	tmp := file + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, file)
}

func (fd *FileDriver) Delete(ctx context.Context, metricID string) error {
	err := os.Remove(fd.path(metricID))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}
