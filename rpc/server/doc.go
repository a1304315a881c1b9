// Package server implements the RPC server of raftstore. It routes requests
// from a transport to its shards and answers every request with the cluster
// UUID, so clients can detect that they were pointed at the wrong cluster.
//
// Key Components:
//
//   - RPCServer: creates the shards described by common.ServerConfig, registers
//     its handler at the transport and serves until Close is called.
//
//   - IRPCServerAdapter: translates a common.Message into operations of a
//     store.IShard. NewIStoreServerAdapter handles session, store and
//     configuration messages.
//
// Request handling:
//
//   - Session, store and configuration messages need the shard leader. A
//     follower answers NOT_LEADER with the client endpoint of the leader as
//     hint, a shard without leader answers UNAVAILABLE.
//   - SERVER_INFO and SERVER_STATS are answered by every server.
//   - Messages that can not be decoded, unknown message types and unknown shards
//     are answered with INVALID_REQUEST.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeLocalStore},
//	  },
//	  Engine:        common.EngineMemory,
//	  TimeoutSecond: 5,
//	  Transport:     common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	  LogLevel:      "info",
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Remote store shards (common.ShardTypeRemoteStore) are replicated with
// dragonboat and need the RAFT parameters of the configuration (ReplicaID,
// ClusterMembers, DataDir, RTTMillisecond). Local and remote shards can be
// mixed within a single server.
package server
