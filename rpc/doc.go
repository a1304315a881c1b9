// Package rpc connects raftstore clients to the servers of a cluster.
//
// The package is organized into several subpackages:
//
//   - common: the Message protocol, configuration structures and logging.
//
//   - transport: network communication with pluggable implementations
//     (TCP, Unix sockets, HTTP and an in-process loopback).
//
//   - serializer: message serialization (Binary, JSON, GOB).
//
//   - client: the client runtime, a store.IStore with leader tracking,
//     exactly-once sessions and cluster UUID pinning.
//
//   - server: routes requests to the shards of a server and answers with
//     leader hints when it does not lead a shard.
//
//   - gateway: an HTTP facade on top of a store.IStore.
package rpc
