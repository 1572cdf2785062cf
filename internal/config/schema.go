// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

var configSchema = `
{
  "type": "object",
  "properties": {
    "addr": {
      "description": "Address where the http server will listen on (for example: 'localhost:8041').",
      "type": "string"
    },
    "db": {
      "description": "Filename of the sqlite3 metric index.",
      "type": "string"
    },
    "storage": {
      "description": "Where serialized archives and incoming measures are stored.",
      "type": "object",
      "properties": {
        "driver": {
          "description": "Blob storage driver to use.",
          "type": "string",
          "enum": ["file", "s3"]
        },
        "path": {
          "description": "Directory for archive blobs (file driver).",
          "type": "string"
        },
        "spool-directory": {
          "description": "Directory where incoming measure batches are spooled.",
          "type": "string"
        },
        "s3": {
          "description": "S3 driver settings.",
          "type": "object",
          "properties": {
            "bucket": { "type": "string" },
            "region": { "type": "string" },
            "endpoint": { "type": "string" },
            "access-key": { "type": "string" },
            "secret-key": { "type": "string" },
            "use-path-style": { "type": "boolean" }
          },
          "required": ["bucket"]
        }
      }
    },
    "nats": {
      "description": "Ingest measures from a NATS subscription.",
      "type": "object",
      "properties": {
        "address": {
          "description": "Address of the nats server.",
          "type": "string"
        },
        "username": { "type": "string" },
        "password": { "type": "string" },
        "subscribe-to": {
          "description": "Subject to subscribe for incoming measures.",
          "type": "string"
        },
        "rate-limit": {
          "description": "Maximum measure batches accepted per second; zero disables the limit.",
          "type": "integer"
        }
      },
      "required": ["address", "subscribe-to"]
    }
  }
}`
