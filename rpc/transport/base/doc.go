// Package base provides the stream transport shared by the tcp and unix
// transports. Protocol specifics are injected through IClientConnector and
// IServerConnector.
//
// Frame Format:
//
//	8 bytes shard ID, 8 bytes request ID, 4 bytes length (all big endian),
//	followed by the payload. Header and payload are written with net.Buffers in
//	a single call.
//
// Client:
//
//   - Connections are pooled per endpoint (ConnectionsPerEndpoint slots,
//     round robin) and dialed lazily on the first request to that endpoint.
//   - Requests are multiplexed over a connection and matched to responses by
//     request ID.
//   - A broken connection fails all requests waiting on it and is redialed by
//     the next request. The transport itself never retries.
//
// Server:
//
//   - One goroutine per connection reads frames. Each request is handled in its
//     own worker, at most WorkersPerConn per connection, and responses are
//     written as they complete.
//   - Read buffers are reused through a sync.Pool.
package base
