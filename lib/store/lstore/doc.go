// Package lstore implements a single-node, non-replicated store.IShard.
//
// Commands are applied to the state machine in the order they arrive and the
// arrival position is used as log index, so sessions, duplicate detection and
// session expiry behave exactly like on a replicated shard. Membership changes
// only bump the configuration id, there are no peers to inform.
//
// The local shard is used for tests, for single-node deployments and for
// remote-store shards that are served without consensus:
//
//	shard := lstore.NewLocalShard(1, func() db.KVDB { return memory.NewMemoryDB(nil) }, nil)
//	defer shard.Close()
//
//	resp, err := shard.Propose(ctx, store.Command{Type: store.CommandTOpenSession})
//
// For replicated shards see the dstore package.
package lstore
