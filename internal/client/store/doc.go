// Package store is the client's local persistent store: a single SQLite
// database holding one table per entity type, the mutation queue and the
// settings table.
//
// Open applies the embedded goose migrations and refuses to run against a
// database written by a newer schema. All writes go through Transaction,
// which serializes writers and notifies Watch subscribers after commit.
package store
