// Package testing provides standardised tests and benchmarks for
// storage engines that satisfy the db.KVDB interface.
//
// The package contains:
//   - testing: A conformance suite for the KVDB contract (point operations, ordered
//     iteration with half open bounds, snapshots, concurrent use)
//   - benchmark: Performance tests for measuring throughput of common operations
//
// Example usage:
//
//	factory := func() db.KVDB {
//		return NewMyDatabase()
//	}
//
//	dbtesting.RunKVDBTests(t, "MyDatabase", factory)
//	dbtesting.RunKVDBBenchmarks(b, "MyDatabase", factory)
package testing
