package dstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ValentinKolb/raftstore/lib/db"
	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// shardImpl is a store.IShard backed by a dragonboat replica on the local NodeHost.
type shardImpl struct {
	nh        *dragonboat.NodeHost
	shardID   uint64
	replicaID uint64
	cs        *client.Session
	timeout   time.Duration
}

// NewDistributedShard wraps the replica replicaID of shardID that was started on nh.
// Exactly-once semantics come from the client sessions of the state machine, so
// proposals use dragonboat's no-op session.
func NewDistributedShard(nh *dragonboat.NodeHost, shardID, replicaID uint64, timeout time.Duration) store.IShard {
	return &shardImpl{
		nh:        nh,
		shardID:   shardID,
		replicaID: replicaID,
		cs:        nh.GetNoOPSession(shardID),
		timeout:   timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// translateErr maps dragonboat errors to shard errors
func translateErr(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, dragonboat.ErrTimeout), errors.Is(err, dragonboat.ErrCanceled):
		return context.DeadlineExceeded
	case errors.Is(err, dragonboat.ErrShardNotFound),
		errors.Is(err, dragonboat.ErrShardNotReady),
		errors.Is(err, dragonboat.ErrShardClosed),
		errors.Is(err, dragonboat.ErrClosed),
		errors.Is(err, dragonboat.ErrAborted),
		errors.Is(err, dragonboat.ErrSystemBusy):
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	default:
		return err
	}
}

// withTimeout bounds ctx by the shard timeout
func (s *shardImpl) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// write proposes the serialized command and decodes the response of the state machine.
// If the node host is busy, the proposal is retried up to 5 times.
func (s *shardImpl) write(ctx context.Context, cmd store.Command) (store.Response, error) {
	data := cmd.Serialize()
	var err error
	for i := 0; i < retries; i++ {
		pctx, cancel := s.withTimeout(ctx)
		var res sm.Result
		res, err = s.nh.SyncPropose(pctx, s.cs, data)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}
		if err != nil {
			return store.Response{}, translateErr(ctx, err)
		}

		var resp store.Response
		if err := resp.Deserialize(res.Data); err != nil {
			return store.Response{}, err
		}
		return resp, nil
	}
	return store.Response{}, translateErr(ctx, err)
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// This function uses the SyncRead function (dragonboat) by default to query the state machine.
// If linearizability is not required, the stale parameter can be set to true to use the faster StaleRead function.
//
// If the read operation fails due to a system busy error, the function retries up to 5 times.
func read[R any](ctx context.Context, s *shardImpl, q store.Query, stale bool) (R, error) {
	var zero R
	var err error
	for i := 0; i < retries; i++ {
		var res interface{}

		if stale {
			res, err = s.nh.StaleRead(s.shardID, q)
		} else {
			rctx, cancel := s.withTimeout(ctx)
			res, err = s.nh.SyncRead(rctx, s.shardID, q)
			cancel()
		}

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}
		if err != nil {
			return zero, translateErr(ctx, err)
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, fmt.Errorf("unexpected type: received %T, expected %T", res, zero)
		}
		return casted, nil
	}
	return zero, translateErr(ctx, err)
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *shardImpl) Propose(ctx context.Context, cmd store.Command) (store.Response, error) {
	if _, local, ok := s.Leader(); !ok || !local {
		return store.Response{}, store.ErrNotLeader
	}
	if cmd.Timestamp == 0 {
		cmd.Timestamp = uint64(time.Now().UnixNano())
	}
	return s.write(ctx, cmd)
}

func (s *shardImpl) Read(ctx context.Context, q store.Query) (store.Response, error) {
	if _, local, ok := s.Leader(); !ok || !local {
		return store.Response{}, store.ErrNotLeader
	}
	return read[store.Response](ctx, s, q, false)
}

func (s *shardImpl) Leader() (uint64, bool, bool) {
	leaderID, _, valid, err := s.nh.GetLeaderID(s.shardID)
	if err != nil || !valid {
		return 0, false, false
	}
	return leaderID, leaderID == s.replicaID, true
}

func (s *shardImpl) Membership(ctx context.Context) (store.Configuration, error) {
	mctx, cancel := s.withTimeout(ctx)
	defer cancel()
	m, err := s.nh.SyncGetShardMembership(mctx, s.shardID)
	if err != nil {
		return store.Configuration{}, translateErr(ctx, err)
	}
	return toConfiguration(m), nil
}

func (s *shardImpl) ChangeMembership(ctx context.Context, oldID uint64, servers []store.Server) store.ConfigurationResult {
	current, err := s.Membership(ctx)
	if err != nil {
		return store.ConfigurationResult{Status: store.ConfigBad, Error: err.Error()}
	}
	if current.ID != oldID {
		return store.ConfigurationResult{
			Status: store.ConfigChanged,
			Error:  fmt.Sprintf("%sexpected id %d, current id %d", store.ConfigChangedMessage, oldID, current.ID),
		}
	}

	existing := make(map[uint64]string, len(current.Servers))
	for _, srv := range current.Servers {
		existing[srv.ID] = srv.Address
	}
	wanted := make(map[uint64]string, len(servers))
	for _, srv := range servers {
		wanted[srv.ID] = srv.Address
	}

	// only the first change is ordered against oldID
	ccid := oldID
	var bad []store.Server
	var lastErr error

	apply := func(srv store.Server, change func(context.Context) error) bool {
		cctx, cancel := s.withTimeout(ctx)
		defer cancel()
		err := change(cctx)
		if errors.Is(err, dragonboat.ErrRejected) {
			return false
		}
		if err != nil {
			log.Warningf("membership change of %s failed: %v", srv, err)
			bad = append(bad, srv)
			lastErr = err
			return true
		}
		// ccid of the next change, 0 disables the ordering check
		ccid = 0
		return true
	}

	changed := store.ConfigurationResult{
		Status: store.ConfigChanged,
		Error:  fmt.Sprintf("%sconcurrent membership change", store.ConfigChangedMessage),
	}

	// removals first, a changed address is a removal followed by an add
	for _, srv := range current.Servers {
		if addr, ok := wanted[srv.ID]; ok && addr == srv.Address {
			continue
		}
		id := srv.ID
		if !apply(srv, func(c context.Context) error {
			return s.nh.SyncRequestDeleteReplica(c, s.shardID, id, ccid)
		}) {
			return changed
		}
	}
	for _, srv := range servers {
		if addr, ok := existing[srv.ID]; ok && addr == srv.Address {
			continue
		}
		srv := srv
		if !apply(srv, func(c context.Context) error {
			return s.nh.SyncRequestAddReplica(c, s.shardID, srv.ID, srv.Address, ccid)
		}) {
			return changed
		}
	}

	if len(bad) > 0 {
		return store.ConfigurationResult{
			Status:     store.ConfigBad,
			BadServers: bad,
			Error:      fmt.Sprintf("%s: %v", store.ConfigBadMessage, lastErr),
		}
	}
	return store.ConfigurationResult{Status: store.ConfigOK}
}

func (s *shardImpl) Info() store.ShardInfo {
	leaderID, local, _ := s.Leader()
	info := store.ShardInfo{
		ShardID:   s.shardID,
		ReplicaID: s.replicaID,
		Type:      "dstore",
		LeaderID:  leaderID,
		IsLeader:  local,
	}
	// Note: allow for stale reads
	resp, err := read[store.Response](context.Background(), s, store.Query{Type: store.QueryTInfo}, true)
	if err != nil {
		log.Warningf("failed to read database info of shard %d: %v", s.shardID, err)
		return info
	}
	if dbInfo, ok := resp.Info.(db.DatabaseInfo); ok {
		info.Database = dbInfo
	}
	return info
}

func (s *shardImpl) Close() error {
	err := s.nh.StopShard(s.shardID)
	if errors.Is(err, dragonboat.ErrShardNotFound) {
		return nil
	}
	return err
}

// toConfiguration converts a dragonboat membership, servers are sorted by id
func toConfiguration(m *dragonboat.Membership) store.Configuration {
	conf := store.Configuration{ID: m.ConfigChangeID, Servers: make([]store.Server, 0, len(m.Nodes))}
	for id, addr := range m.Nodes {
		conf.Servers = append(conf.Servers, store.Server{ID: id, Address: addr})
	}
	sort.Slice(conf.Servers, func(i, j int) bool { return conf.Servers[i].ID < conf.Servers[j].ID })
	return conf
}
