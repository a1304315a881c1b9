package lstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/ValentinKolb/raftstore/lib/store/internal"
	"github.com/VictoriaMetrics/metrics"
)

// localReplicaID is the replica id the local shard reports for itself
const localReplicaID = 1

// Options configures a local shard
type Options struct {
	// SessionTimeout is the idle time after which client sessions expire (0 = default)
	SessionTimeout time.Duration
	// Metrics is the set the store counters are registered in (nil = private set)
	Metrics *metrics.Set
}

type shardImpl struct {
	shardID uint64

	mu      sync.Mutex // serializes Apply, the machine requires it
	index   uint64     // log index of the last applied command
	machine *internal.Machine

	confMu sync.RWMutex
	conf   store.Configuration

	closed atomic.Bool
}

// NewLocalShard creates a new local shard.
// This shard is not replicated and only works on a single node. Commands are applied
// directly in the order they arrive, the position in that order acts as log index.
func NewLocalShard(shardID uint64, factory store.DBFactory, opts *Options) store.IShard {
	if opts == nil {
		opts = &Options{}
	}
	return &shardImpl{
		shardID: shardID,
		machine: internal.NewMachine(factory(), &internal.Options{
			SessionTimeout: opts.SessionTimeout,
			Metrics:        opts.Metrics,
			Labels:         fmt.Sprintf(`shard="%d"`, shardID),
		}),
		conf: store.Configuration{Servers: []store.Server{}},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *shardImpl) Propose(ctx context.Context, cmd store.Command) (store.Response, error) {
	if err := ctx.Err(); err != nil {
		return store.Response{}, err
	}
	if s.closed.Load() {
		return store.Response{}, store.ErrUnavailable
	}
	if cmd.Timestamp == 0 {
		cmd.Timestamp = uint64(time.Now().UnixNano())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index++
	return s.machine.Apply(s.index, cmd), nil
}

func (s *shardImpl) Read(ctx context.Context, q store.Query) (store.Response, error) {
	if err := ctx.Err(); err != nil {
		return store.Response{}, err
	}
	if s.closed.Load() {
		return store.Response{}, store.ErrUnavailable
	}
	return s.machine.Query(q), nil
}

func (s *shardImpl) Leader() (uint64, bool, bool) {
	return localReplicaID, true, true
}

func (s *shardImpl) Membership(context.Context) (store.Configuration, error) {
	s.confMu.RLock()
	defer s.confMu.RUnlock()
	return store.Configuration{
		ID:      s.conf.ID,
		Servers: append([]store.Server{}, s.conf.Servers...),
	}, nil
}

func (s *shardImpl) ChangeMembership(_ context.Context, oldID uint64, servers []store.Server) store.ConfigurationResult {
	s.confMu.Lock()
	defer s.confMu.Unlock()

	if oldID != s.conf.ID {
		return store.ConfigurationResult{
			Status: store.ConfigChanged,
			Error:  fmt.Sprintf("%sexpected id %d, current id %d", store.ConfigChangedMessage, oldID, s.conf.ID),
		}
	}

	// a single node accepts every configuration, there is nobody to catch up
	s.conf = store.Configuration{
		ID:      s.conf.ID + 1,
		Servers: append([]store.Server{}, servers...),
	}
	return store.ConfigurationResult{Status: store.ConfigOK}
}

func (s *shardImpl) Info() store.ShardInfo {
	return store.ShardInfo{
		ShardID:   s.shardID,
		ReplicaID: localReplicaID,
		Type:      "lstore",
		LeaderID:  localReplicaID,
		IsLeader:  true,
		Database:  s.machine.Database().GetInfo(),
	}
}

func (s *shardImpl) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Close()
}
