// Package database manages the PostgreSQL connection pool used by the
// frame recorder.
package database
