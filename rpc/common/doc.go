// Package common provides the types shared by the RPC client, server and
// transports.
//
// Key Components:
//
//   - Message: the single structure used for every request and response, with
//     factory methods per operation. A response carries two independent
//     outcomes: the RPCStatus of the RPC layer (OK, NOT_LEADER,
//     INVALID_REQUEST, UNAVAILABLE) and the store result (Status, Err). Every
//     response also carries the UUID of the answering cluster.
//
//   - MessageType: the operations, grouped into session, store, configuration
//     and control messages. Control messages (server info and stats) are
//     answered by any server, all others only by the leader of the shard.
//
//   - ServerConfig / ClientConfig: configuration of the server and client, with
//     helpers to build the Dragonboat configuration.
//
//   - Logger: a dragonboat logger.ILogger implementation with a uniform format,
//     installed by InitLoggers.
package common
