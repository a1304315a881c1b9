// Package pebble provides a persistent implementation of the db.KVDB interface
// backed by github.com/cockroachdb/pebble.
//
// Keys are stored as raw bytes, so pebble's default bytewise comparer gives the
// ordering required by db.KVDB. Save reads from a pebble snapshot and therefore
// does not block writers. Load applies the whole snapshot in one batch.
//
// Tests run the engine on pebble's in-memory file system (vfs.NewMem).
package pebble
