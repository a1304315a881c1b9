// Package store defines the replicated key-value store: the operations applications
// use (IStore), the commands and queries the replicated state machine executes,
// and the shared result model.
//
// Key Components:
//
//   - Result Model: StatusCode and Result describe the outcome of every operation.
//     An OK result never carries an error message, every other status does.
//     StatusFromWire maps codes received from a peer, turning unknown codes into
//     INVALID_ARGUMENT. Error wraps a status for code that works with Go errors.
//
//   - Commands and Queries: Command is a single raft log entry (open/close session,
//     write, remove). Write-class commands carry an ExactlyOnceTag so the state
//     machine can answer retries from its response cache instead of applying them
//     twice. Query describes read-only requests (read, range, search, stat, info).
//
//   - IShard: the server side view of one replicated state machine. The RPC server
//     proposes commands and runs queries through it.
//
//   - IStore: the client side view, implemented by the RPC client (rpc/client).
//
// Implementations:
//
//   - Local Store (lstore): a single node shard that applies commands directly.
//     Suitable for development and tests.
//
//   - Distributed Store (dstore): a shard built on the Dragonboat RAFT library.
//
// Both shards use the same state machine (store/internal), so sessions, duplicate
// detection and session expiry behave identically.
package store
