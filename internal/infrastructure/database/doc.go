// Package database manages the SQLite connection and schema migrations.
//
// The hub uses SQLite for the small amount of durable state it carries
// (push notification tokens). Migrations are embedded into the binary by
// the top-level migrations package and applied on startup, each in its
// own transaction.
package database
