// Package transport defines the interfaces of the RPC transport layer.
//
// Key Components:
//
//   - IRPCClientTransport: sends a request to a named endpoint and waits for the
//     response until the context is done. Choosing the endpoint and retrying is
//     left to the caller (the leader dispatcher of rpc/client).
//
//   - IRPCServerTransport: receives requests and passes them to the registered
//     ServerHandleFunc together with the shard ID.
//
// Implementations: base (shared framing for tcp and unix), tcp, unix, http and
// loopback (in-process, for tests and embedded use).
package transport
