package dstore

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/ValentinKolb/raftstore/lib/store/internal"
	"github.com/VictoriaMetrics/metrics"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// Options configures the state machines created by CreateStateMachineFactory
type Options struct {
	// SessionTimeout is the idle time after which client sessions expire (0 = default)
	SessionTimeout time.Duration
	// Metrics is the set the store counters are registered in (nil = private set per replica)
	Metrics *metrics.Set
}

// KVStateMachine is the dragonboat state machine of a replicated shard.
// It decodes raft entries and hands them to the shared store machine.
type KVStateMachine struct {
	ShardID   uint64
	ReplicaID uint64
	machine   *internal.Machine
}

// CreateStateMachineFactory returns a factory for dragonboat's StartConcurrentReplica.
// Every replica gets its own database from dbFactory.
func CreateStateMachineFactory(dbFactory store.DBFactory, opts *Options) sm.CreateConcurrentStateMachineFunc {
	if opts == nil {
		opts = &Options{}
	}
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &KVStateMachine{
			ShardID:   shardID,
			ReplicaID: replicaID,
			machine: internal.NewMachine(dbFactory(), &internal.Options{
				SessionTimeout: opts.SessionTimeout,
				Metrics:        opts.Metrics,
				Labels:         fmt.Sprintf(`shard="%d"`, shardID),
			}),
		}
	}
}

// Lookup answers a store.Query with a store.Response
func (s *KVStateMachine) Lookup(query interface{}) (interface{}, error) {
	q, ok := query.(store.Query)
	if !ok {
		return nil, fmt.Errorf("invalid query type: %T", query)
	}
	return s.machine.Query(q), nil
}

// Update applies committed entries. The result value is the status code,
// the result data the serialized store.Response.
func (s *KVStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	for i, entry := range entries {
		var cmd store.Command
		var resp store.Response
		if err := cmd.Deserialize(entry.Cmd); err != nil {
			resp = store.NewResponse(store.StatusInvalidArgument, "malformed command: %v", err)
		} else {
			resp = s.machine.Apply(entry.Index, cmd)
		}
		entries[i].Result = sm.Result{Value: uint64(resp.Status), Data: resp.Serialize()}
	}
	return entries, nil
}

// PrepareSnapshot captures the session table, the database is dumped fuzzily in SaveSnapshot
func (s *KVStateMachine) PrepareSnapshot() (interface{}, error) {
	return s.machine.PrepareSnapshot(), nil
}

// SaveSnapshot writes the prepared session table and the database to w
func (s *KVStateMachine) SaveSnapshot(ctx interface{}, w io.Writer, _ sm.ISnapshotFileCollection, done <-chan struct{}) error {
	prepared, ok := ctx.([]byte)
	if !ok {
		return fmt.Errorf("invalid snapshot context: %T", ctx)
	}
	select {
	case <-done:
		return sm.ErrSnapshotStopped
	default:
	}
	return s.machine.SaveSnapshot(prepared, w)
}

// RecoverFromSnapshot replaces the state of the replica with the snapshot in r
func (s *KVStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, done <-chan struct{}) error {
	select {
	case <-done:
		return sm.ErrSnapshotStopped
	default:
	}
	return s.machine.RecoverFromSnapshot(r)
}

// Close closes the database of the replica
func (s *KVStateMachine) Close() error {
	return s.machine.Close()
}
