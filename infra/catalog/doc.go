// Package catalog persists sequence definitions and their current values.
//
// Rows live twice: as MVCC versions in an in-memory table, which is what
// transactions read and write, and in pebble under seq/<scope>/<id>, which
// is what survives a restart. A transaction's pebble writes are collected
// by a commit participant and applied as one synced batch right before the
// transaction's commit id is assigned. DDL changes also append a record to
// an outbox in the same batch; jobs/broadcaster drains it.
package catalog
