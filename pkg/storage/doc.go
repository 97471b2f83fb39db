// Package storage opens the databases and caches behind the user directory.
//
// # Drivers
//
// Three drivers are supported:
//
//	memory    in-process maps, no persistence (development only)
//	postgres  github.com/lib/pq
//	sqlite3   github.com/mattn/go-sqlite3 (single node)
//
// # Schema
//
// The users table is created by embedded golang-migrate migrations, one set per
// dialect under migrations/. Email carries a unique index: concurrent signups for
// the same email produce one row and one unique-violation error, which the user
// directory reports as users.ErrEmailTaken.
//
//	db, err := storage.Open(ctx, cfg)
//	if err := storage.Migrate(db, cfg.Driver); err != nil { ... }
//
// # Redis
//
// NewRedisClient parses a redis:// URL, applies pool overrides and pings the
// server before returning.
package storage
