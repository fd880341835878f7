// Package db provides the embedded schema for the Postgres state medium.
package db

import _ "embed"

// Schema contains the DDL for the catalog_state table.
//
//go:embed migrations/001_schema.sql
var Schema string
