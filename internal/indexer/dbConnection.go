// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package indexer persists the metric index: which metrics exist, which
// archive policy each one follows, and the archive policies themselves.
// Time-series data never passes through here; it lives in storage as
// opaque blobs.
package indexer

import (
	"database/sql"
	"fmt"
	"sync"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
)

var (
	dbConnOnce     sync.Once
	dbConnInstance *DBConnection
)

type DBConnection struct {
	DB *sqlx.DB
}

func Connect(db string) {
	var err error
	var dbHandle *sqlx.DB

	dbConnOnce.Do(func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &Hooks{}))
		dbHandle, err = sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", db))
		if err != nil {
			cclog.Fatalf("sqlx.Open() error: %v", err)
		}

		// sqlite does not multithread. Having more than one connection open
		// would just mean waiting for locks.
		dbHandle.SetMaxOpenConns(1)

		dbConnInstance = &DBConnection{DB: dbHandle}
		if err := MigrateDB(db); err != nil {
			cclog.Fatalf("migrating the metric index failed: %v", err)
		}
	})
}

func GetConnection() *DBConnection {
	if dbConnInstance == nil {
		cclog.Fatalf("Database connection not initialized!")
	}

	return dbConnInstance
}
