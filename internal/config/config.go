// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config holds the service configuration. The aggregation
// engine itself is configuration-free; everything here concerns the
// daemon around it.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
)

type StorageConfig struct {
	// 'file' or 's3'
	Driver string `json:"driver"`

	// Directory for archive blobs (file driver).
	Path string `json:"path"`

	// Directory where incoming measure batches are spooled before
	// they are processed into the archives.
	SpoolDir string `json:"spool-directory"`

	S3 *S3Config `json:"s3"`
}

type S3Config struct {
	Bucket       string `json:"bucket"`
	Region       string `json:"region"`
	Endpoint     string `json:"endpoint"`
	AccessKey    string `json:"access-key"`
	SecretKey    string `json:"secret-key"`
	UsePathStyle bool   `json:"use-path-style"`
}

type NatsConfig struct {
	// Address of the nats server
	Address string `json:"address"`

	// Username/Password, optional
	Username string `json:"username"`
	Password string `json:"password"`

	// Subject to subscribe for incoming measures
	SubscribeTo string `json:"subscribe-to"`

	// Maximum measure batches accepted per second; zero disables the limit.
	RateLimit int `json:"rate-limit"`
}

type ProgramConfig struct {
	// Address where the http server will listen on (for example: 'localhost:8041').
	Addr string `json:"addr"`

	// Filename of the sqlite3 metric index.
	DB string `json:"db"`

	Storage StorageConfig `json:"storage"`

	Nats *NatsConfig `json:"nats"`
}

var Keys ProgramConfig = ProgramConfig{
	Addr: ":8041",
	DB:   "./var/index.db",
	Storage: StorageConfig{
		Driver:   "file",
		Path:     "./var/storage",
		SpoolDir: "./var/incoming",
	},
}

func Init(flagConfigFile string) {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if !os.IsNotExist(err) {
			cclog.Abortf("Config Init: Could not read config file '%s'.\nError: %s\n", flagConfigFile, err.Error())
		}
		return
	}

	Validate(configSchema, raw)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		cclog.Abortf("Config Init: Could not decode config file '%s'.\nError: %s\n", flagConfigFile, err.Error())
	}
}
