// Package dstore implements a replicated store.IShard on top of the Dragonboat
// RAFT library.
//
// Architecture:
//
//   - Shard: implements store.IShard for the replica hosted on the local NodeHost.
//     Commands are serialized and proposed with SyncPropose, queries run through
//     SyncRead. Both only succeed on the leader, followers answer with
//     store.ErrNotLeader so that clients can follow the leader hint.
//
//   - State Machine: a Dragonboat IConcurrentStateMachine (KVStateMachine) that
//     decodes raft entries and applies them to the shared store machine. The raft
//     log index of an entry is its index in the machine, so every replica assigns
//     the same client ids and expires the same sessions.
//
// Error Handling and Retries:
//
//	When Dragonboat returns ErrSystemBusy, proposals and reads are retried after
//	a short delay, up to 5 times. Timeouts and cancellations are reported as
//	context errors, a missing or closed shard as store.ErrUnavailable.
//
// Snapshotting and Recovery:
//
//	PrepareSnapshot captures the session table while updates are paused, the
//	database is then dumped without blocking updates. Such a fuzzy snapshot may
//	contain writes of entries after the snapshot index. Replaying these entries is
//	harmless, writes and removes are idempotent and duplicates are answered from
//	the response cache.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	dbFactory := func() db.KVDB { return memory.NewMemoryDB(nil) }
//	err = nh.StartConcurrentReplica(
//	    members,
//	    false,
//	    dstore.CreateStateMachineFactory(dbFactory, nil),
//	    shardConfig)
//	if err != nil { ... }
//
//	shard := dstore.NewDistributedShard(nh, shardID, replicaID, 5*time.Second)
//
// Deploy an odd number of replicas (3, 5 or 7), a shard needs a majority to
// make progress.
package dstore
