// Package util provides small data structures and helpers shared by the
// storage layer, the replicated state machine and the client runtime.
//
// The package contains:
//   - mapheap: a keyed min-heap used for session expiry on the server and for
//     the set of outstanding sequence numbers on the client
//   - functions: hash functions and other helpers
package util
