// Package postgres implements the task store on PostgreSQL through
// database/sql and the pgx driver, and carries the embedded goose migrations
// that create its schema.
package postgres
