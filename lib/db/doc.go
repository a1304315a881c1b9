// Package db provides a standardized interface for ordered key-value storage engines.
// The replicated state machine of the store (lib/store) keeps its data in a KVDB
// and never talks to a concrete engine directly.
//
// Key Components:
//
//   - KVDB Interface: The core interface that all engines must satisfy.
//     It provides point operations (Put, Get, Delete), ordered iteration over
//     a half open key interval (Iterate), metadata retrieval (GetInfo, Len)
//     and persistence operations (Save, Load).
//
//   - Feature Flags: The Feature type defines capability flags that engines
//     advertise through SupportsFeature.
//
//   - Snapshot Format: SaveEntries and LoadEntries implement the single snapshot
//     format shared by all engines: a flat sequence of length prefixed key/value
//     pairs followed by an end marker.
//
// Ordering:
//
// Keys are compared bytewise (Go string comparison). Iterate visits keys in
// ascending order, which is the order returned by range and search queries.
//
// Related Packages:
//
//   - engines/memory: an in-memory engine on top of a B-tree (github.com/google/btree)
//   - engines/pebble: a persistent engine on top of github.com/cockroachdb/pebble
//   - testing: RunKVDBTests and RunKVDBBenchmarks, a conformance suite run against every engine
//   - util: MapHeap and hash helpers used by the store and the client
package db
