// Package memory provides an ordered in-memory implementation of the db.KVDB
// interface backed by a B-tree (github.com/google/btree).
//
// All operations are guarded by a single read/write mutex. Reads (Get, Iterate,
// Save) run concurrently with each other. Values are copied on the way in and
// on the way out, so callers never share memory with the tree.
//
// This engine is the default for the single node store (lstore) and for tests.
package memory
